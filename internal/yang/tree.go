package yang

// Node is one node of a session's (or the on-disk) data tree. Containers
// and lists carry Children; list entries additionally carry Keys; leaves
// and leaf-list entries carry a Value.
type Node struct {
	Name     string
	Schema   *SchemaNode
	Keys     map[string]Value // set on list-entry nodes
	Value    *Value           // set on leaf / leaf-list-entry nodes
	Children []*Node          // ordered; order is significant for user-ordered lists
	Parent   *Node
}

// Tree is one module's data tree as held by a session's working copy or
// loaded fresh from disk during commit.
type Tree struct {
	Module *Module
	Root   *Node
}

// NewTree returns an empty tree rooted at a synthetic container.
func NewTree(module *Module) *Tree {
	return &Tree{Module: module, Root: &Node{Name: "", Schema: module.Root}}
}

// Clone deep-copies the tree, used when a session needs an independent
// working copy distinct from another session's view or from the on-disk
// snapshot loaded during commit replay.
func (t *Tree) Clone() *Tree {
	return &Tree{Module: t.Module, Root: cloneNode(t.Root, nil)}
}

func cloneNode(n *Node, parent *Node) *Node {
	cp := &Node{Name: n.Name, Schema: n.Schema, Parent: parent}
	if n.Value != nil {
		v := *n.Value
		cp.Value = &v
	}
	if n.Keys != nil {
		cp.Keys = make(map[string]Value, len(n.Keys))
		for k, v := range n.Keys {
			cp.Keys[k] = v
		}
	}
	for _, c := range n.Children {
		cp.Children = append(cp.Children, cloneNode(c, cp))
	}
	return cp
}

// ChildByName returns the first child with the given name (container /
// leaf / leaf-list lookup; not for keyed list-entry lookup).
func (n *Node) ChildByName(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ListEntry returns the list-entry child matching the given key values.
func (n *Node) ListEntry(name string, keys map[string]Value) *Node {
	for _, c := range n.Children {
		if c.Name != name || c.Keys == nil {
			continue
		}
		if keysEqual(c.Keys, keys) {
			return c
		}
	}
	return nil
}

func keysEqual(a, b map[string]Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !valuesEqual(v, ov) {
			return false
		}
	}
	return true
}

// valuesEqual compares two leaf values. A predicate's literal value is
// parsed with no schema in hand (see literalValue) and always lands on
// KindInt64 for anything that looks like a number, so an int/uint-family
// pair compares by numeric value rather than by exact Kind; every other
// pairing requires an exact Kind match.
func valuesEqual(a, b Value) bool {
	if isIntFamily(a.Kind) && isIntFamily(b.Kind) {
		return intFamilyValue(a) == intFamilyValue(b)
	}
	return a.Kind == b.Kind && a.Int == b.Int && a.Uint == b.Uint &&
		a.Dec64 == b.Dec64 && a.Bool == b.Bool && a.Str == b.Str
}

func isIntFamily(k Kind) bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64,
		KindUint8, KindUint16, KindUint32, KindUint64:
		return true
	default:
		return false
	}
}

func intFamilyValue(v Value) int64 {
	switch v.Kind {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return v.Int
	default:
		return int64(v.Uint)
	}
}

// RemoveChild removes the given child node, preserving the order of the
// rest. Returns true if found and removed.
func (n *Node) RemoveChild(target *Node) bool {
	for i, c := range n.Children {
		if c == target {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return true
		}
	}
	return false
}

// IndexOf returns the index of child within its parent's Children, or -1.
func (n *Node) IndexOf(child *Node) int {
	for i, c := range n.Children {
		if c == child {
			return i
		}
	}
	return -1
}
