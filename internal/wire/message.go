package wire

import "github.com/confd-io/confd/internal/yang"

// Operation names the request bodies of spec §6.
type Operation string

const (
	OpSessionStart     Operation = "session-start"
	OpSessionStop      Operation = "session-stop"
	OpListSchemas      Operation = "list-schemas"
	OpGetSchema        Operation = "get-schema"
	OpGetItem          Operation = "get-item"
	OpGetItems         Operation = "get-items"
	OpGetItemsIter     Operation = "get-items-iter"
	OpSetItem          Operation = "set-item"
	OpDeleteItem       Operation = "delete-item"
	OpMoveItem         Operation = "move-item"
	OpValidate         Operation = "validate"
	OpCommit           Operation = "commit"
	OpDiscardChanges   Operation = "discard-changes"
	OpLockModule       Operation = "lock-module"
	OpUnlockModule     Operation = "unlock-module"
	OpLockDatastore    Operation = "lock-datastore"
	OpUnlockDatastore  Operation = "unlock-datastore"
	OpFeatureEnable    Operation = "feature-enable"
	OpModuleInstall    Operation = "module-install"
	OpSubscribe        Operation = "subscribe"
	OpUnsubscribe      Operation = "unsubscribe"
	OpGetLastErrors    Operation = "get-last-errors"
)

// Direction is move-item's up/down argument.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// EventKind names what a subscription or notification concerns.
type EventKind string

const (
	EventModuleInstall EventKind = "module-install"
	EventFeatureEnable EventKind = "feature-enable"
	EventModuleChange  EventKind = "module-change"
)

// Datastore is one of the three logical configuration views (GLOSSARY).
type Datastore string

const (
	DatastoreStartup   Datastore = "startup"
	DatastoreRunning   Datastore = "running"
	DatastoreCandidate Datastore = "candidate"
)

// EditOptions mirrors yang.EditOptions across the wire.
type EditOptions struct {
	Default      bool `json:"default,omitempty"`
	Strict       bool `json:"strict,omitempty"`
	NonRecursive bool `json:"non_recursive,omitempty"`
}

func (o EditOptions) ToYANG() yang.EditOptions {
	return yang.EditOptions{Default: o.Default, Strict: o.Strict, NonRecursive: o.NonRecursive}
}

// Request is the single envelope shape carrying every operation's body.
// Fields not meaningful to Operation are left zero; per-operation
// well-formedness is enforced by codec.go's CheckWellFormed, not by the
// Go type system, matching the wire contract's tagged-record design.
type Request struct {
	SessionID uint32    `json:"session_id"`
	Operation Operation `json:"operation"`

	Datastore Datastore `json:"datastore,omitempty"`
	UserName  string    `json:"user_name,omitempty"`

	Module     string `json:"module,omitempty"`
	Revision   string `json:"revision,omitempty"`
	Submodule  string `json:"submodule,omitempty"`
	YinOrYang  string `json:"yin_or_yang,omitempty"`

	XPath     string       `json:"xpath,omitempty"`
	Value     *yang.Value  `json:"value,omitempty"`
	Options   EditOptions  `json:"options,omitempty"`
	Direction Direction    `json:"direction,omitempty"`

	Offset    int  `json:"offset,omitempty"`
	Limit     int  `json:"limit,omitempty"`
	Recursive bool `json:"recursive,omitempty"`

	Feature string `json:"feature,omitempty"`
	Enable  bool   `json:"enable,omitempty"`
	Install bool   `json:"install,omitempty"`

	EventKind           EventKind `json:"event_kind,omitempty"`
	DestinationAddress  string    `json:"destination_address,omitempty"`
	DestinationID       uint32    `json:"destination_id,omitempty"`
}

// SchemaInfo is one entry of list-schemas' result, per spec §6.
type SchemaInfo struct {
	ModuleName string   `json:"module_name"`
	Namespace  string   `json:"namespace"`
	Prefix     string   `json:"prefix"`
	Revision   Revision `json:"revision"`
	Submodules []string `json:"submodules,omitempty"`
}

type Revision struct {
	Version  string `json:"version,omitempty"`
	YangPath string `json:"yang_path,omitempty"`
	YinPath  string `json:"yin_path,omitempty"`
}

// ValidationErrorInfo is one path-scoped commit/validate failure.
type ValidationErrorInfo struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// LastErrorInfo is one entry of get-last-errors' bounded per-session
// history (spec §7: "the session accumulates the last N error entries").
type LastErrorInfo struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Response answers a Request with matching SessionID and Operation.
type Response struct {
	SessionID    uint32    `json:"session_id"`
	Operation    Operation `json:"operation"`
	ResultCode   string    `json:"result_code"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Path         string    `json:"path,omitempty"`

	Schemas       []SchemaInfo          `json:"schemas,omitempty"`
	SchemaContent []byte                `json:"schema_content,omitempty"`
	Value         *yang.Value           `json:"value,omitempty"`
	Values        []yang.Value          `json:"values,omitempty"`
	Errors        []ValidationErrorInfo `json:"errors,omitempty"`
	LastErrors    []LastErrorInfo       `json:"last_errors,omitempty"`
}

// Notification is a server-to-client push. The server keeps no
// acknowledgment bookkeeping for notifications (see internal/conn's
// sequencer.go); a notification is considered delivered once written.
type Notification struct {
	EventKind          EventKind `json:"event_kind"`
	DestinationAddress string    `json:"destination_address"`
	DestinationID      uint32    `json:"destination_id"`
	Module             string    `json:"module,omitempty"`
	XPath              string    `json:"xpath,omitempty"`
}
