package wire

import (
	"encoding/json"

	"github.com/confd-io/confd/internal/protoerr"
)

// Kind discriminates the three payload variants of spec §4.1.
type Kind uint8

const (
	KindRequest Kind = iota + 1
	KindResponse
	KindNotification
)

// envelope is the on-wire shape: a kind tag plus exactly one populated
// payload. Encoding as a single JSON object (rather than three separate
// frame formats) keeps the 4-byte length prefix the only framing detail a
// reader needs to know before dispatching on Kind.
type envelope struct {
	Kind         Kind          `json:"kind"`
	Request      *Request      `json:"request,omitempty"`
	Response     *Response     `json:"response,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
}

// EncodeRequest, EncodeResponse, EncodeNotification produce the frame
// payload (not yet length-prefixed; see WriteFrame) for each variant.
func EncodeRequest(r *Request) ([]byte, error) {
	return json.Marshal(envelope{Kind: KindRequest, Request: r})
}

func EncodeResponse(r *Response) ([]byte, error) {
	return json.Marshal(envelope{Kind: KindResponse, Response: r})
}

func EncodeNotification(n *Notification) ([]byte, error) {
	return json.Marshal(envelope{Kind: KindNotification, Notification: n})
}

// Decode parses a frame payload into its Kind and one of Request/Response/
// Notification. A payload that doesn't decode to a valid variant, or whose
// Kind doesn't match the populated field, is MalformedMessage.
func Decode(payload []byte) (Kind, *Request, *Response, *Notification, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return 0, nil, nil, nil, protoerr.Newf(protoerr.MalformedMessage, "undecodable payload: "+err.Error())
	}
	switch env.Kind {
	case KindRequest:
		if env.Request == nil {
			return 0, nil, nil, nil, protoerr.Newf(protoerr.MalformedMessage, "request kind with no request body")
		}
		return KindRequest, env.Request, nil, nil, nil
	case KindResponse:
		if env.Response == nil {
			return 0, nil, nil, nil, protoerr.Newf(protoerr.MalformedMessage, "response kind with no response body")
		}
		return KindResponse, nil, env.Response, nil, nil
	case KindNotification:
		if env.Notification == nil {
			return 0, nil, nil, nil, protoerr.Newf(protoerr.MalformedMessage, "notification kind with no notification body")
		}
		return KindNotification, nil, nil, env.Notification, nil
	default:
		return 0, nil, nil, nil, protoerr.Newf(protoerr.MalformedMessage, "unknown envelope kind")
	}
}

// CheckWellFormed rejects a decoded Request missing the sub-fields its
// Operation requires, per spec §4.1 ("a per-operation well-formedness
// check rejects messages missing required sub-fields").
func CheckWellFormed(r *Request) error {
	missing := func(field string) error {
		return protoerr.Newf(protoerr.MalformedMessage, "operation "+string(r.Operation)+" missing required field "+field)
	}
	switch r.Operation {
	case OpSessionStart:
		if r.Datastore == "" {
			return missing("datastore")
		}
	case OpSessionStop:
		// session_id alone suffices; zero is a valid (if rejected downstream) id
	case OpListSchemas:
		// no body
	case OpGetSchema:
		if r.Module == "" {
			return missing("module")
		}
	case OpGetItem, OpGetItems:
		if r.XPath == "" {
			return missing("xpath")
		}
	case OpGetItemsIter:
		if r.XPath == "" {
			return missing("xpath")
		}
	case OpSetItem:
		if r.XPath == "" {
			return missing("xpath")
		}
	case OpDeleteItem:
		if r.XPath == "" {
			return missing("xpath")
		}
	case OpMoveItem:
		if r.XPath == "" {
			return missing("xpath")
		}
		if r.Direction != DirectionUp && r.Direction != DirectionDown {
			return missing("direction")
		}
	case OpValidate, OpCommit, OpDiscardChanges:
		// no body
	case OpLockModule, OpUnlockModule:
		if r.Module == "" {
			return missing("module")
		}
	case OpLockDatastore, OpUnlockDatastore:
		// no body
	case OpFeatureEnable:
		if r.Module == "" {
			return missing("module")
		}
		if r.Feature == "" {
			return missing("feature")
		}
	case OpModuleInstall:
		if r.Module == "" {
			return missing("module")
		}
		if r.Revision == "" {
			return missing("revision")
		}
	case OpGetLastErrors:
		// no body
	case OpSubscribe, OpUnsubscribe:
		if r.EventKind == "" {
			return missing("event_kind")
		}
		if r.DestinationAddress == "" {
			return missing("destination_address")
		}
	default:
		return protoerr.Newf(protoerr.MalformedMessage, "unknown operation "+string(r.Operation))
	}
	return nil
}
