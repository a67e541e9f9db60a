package yang

import "sync"

// NodeKind identifies the structural role of a schema node.
type NodeKind uint8

const (
	KindContainer NodeKind = iota
	KindList
	KindLeaf
	KindLeafList
)

// EnableState is a schema node's running-datastore visibility, per spec
// §4.5.4. It is mutable (unlike the rest of the schema) and lives on the
// Module, not the immutable SchemaNode, because enabling a node is a
// runtime configuration act, not a schema-compile-time one.
type EnableState uint8

const (
	Disabled EnableState = iota
	Enabled
	EnabledWithChildren
)

// SchemaNode is one node of a module's immutable schema tree.
type SchemaNode struct {
	Name      string
	Kind      NodeKind
	Type      *TypeSpec          // set for KindLeaf / KindLeafList
	Keys      []string           // set for KindList: ordered key leaf names
	UserOrdered bool             // KindList: true if entries may be moved (ordered-by user)
	Mandatory bool               // KindLeaf: must be present for validation to pass
	Children  map[string]*SchemaNode
	Order     []string // child names in schema declaration order
}

func newSchemaNode(name string, kind NodeKind) *SchemaNode {
	return &SchemaNode{Name: name, Kind: kind, Children: map[string]*SchemaNode{}}
}

// AddChild registers a child schema node, preserving declaration order.
func (n *SchemaNode) AddChild(child *SchemaNode) *SchemaNode {
	if _, exists := n.Children[child.Name]; !exists {
		n.Order = append(n.Order, child.Name)
	}
	n.Children[child.Name] = child
	return n
}

// Revision identifies one (name, revision) pair of a loaded module, per the
// GLOSSARY.
type Revision struct {
	Version string
	YangPath string
	YinPath  string
}

// Module is a loaded YANG module: immutable schema plus the module-scoped
// runtime state (enabled features and running-datastore enablement) that
// the Data Manager and Persistence Manager mutate.
type Module struct {
	Name      string
	Namespace string
	Prefix    string
	Revision  Revision
	Submodules []string
	Root      *SchemaNode // synthetic root container holding top-level nodes

	mu         sync.RWMutex
	features   map[string]bool
	enablement map[string]EnableState // keyed by schema path (see SchemaPath)
}

// NewModule constructs an empty module with a synthetic root container.
func NewModule(name, namespace, prefix string) *Module {
	return &Module{
		Name:       name,
		Namespace:  namespace,
		Prefix:     prefix,
		Root:       newSchemaNode("", KindContainer),
		features:   map[string]bool{},
		enablement: map[string]EnableState{},
	}
}

// Find resolves a schema node by dotted child-name path relative to the
// module root (used internally by the xpath resolver once it has split a
// path into per-module segments).
func (m *Module) Find(names []string) *SchemaNode {
	n := m.Root
	for _, name := range names {
		child, ok := n.Children[name]
		if !ok {
			return nil
		}
		n = child
	}
	return n
}

// EnableFeature marks a YANG feature as active. Idempotent.
func (m *Module) EnableFeature(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[name] = true
}

// DisableFeature marks a YANG feature as inactive. Idempotent.
func (m *Module) DisableFeature(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.features, name)
}

// Features returns the currently enabled feature names.
func (m *Module) Features() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.features))
	for name := range m.features {
		out = append(out, name)
	}
	return out
}

// SetEnableState records the running-datastore enablement state for the
// given schema path (see SchemaPath), per spec §4.5.4 ("Enabling an XPath
// ... walks upward enabling every ancestor").
func (m *Module) SetEnableState(xpath string, state EnableState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enablement[xpath] = state
}

// EnableStateOf returns the recorded state for xpath, defaulting to
// Disabled when never set.
func (m *Module) EnableStateOf(xpath string) EnableState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enablement[xpath]
}

// VisibleInRunning reports whether xpath (and, transitively, its
// ancestors at the given prefixes) is visible in the running datastore:
// directly enabled, or a strict ancestor is EnabledWithChildren.
func (m *Module) VisibleInRunning(ancestorXPaths []string, xpath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.enablement[xpath] != Disabled {
		return true
	}
	for _, a := range ancestorXPaths {
		if m.enablement[a] == EnabledWithChildren {
			return true
		}
	}
	return false
}
