package yang

import (
	"strings"

	"github.com/confd-io/confd/internal/protoerr"
)

// Resolve evaluates xpath against tree and returns every matching node.
// A plain path with no list predicates matches at most one node; a path
// whose final step omits required list keys returns every entry.
func Resolve(tree *Tree, xpath string) ([]*Node, error) {
	steps, err := parsePath(tree.Module.Name, xpath)
	if err != nil {
		return nil, err
	}
	if err := validateSteps(tree.Module, steps); err != nil {
		return nil, err
	}
	return resolveSteps(tree.Root, steps)
}

// validateSteps rejects unknown schema elements up front (BadElement),
// before any tree walk, per spec §8 "XPath referencing an unknown module
// returns UnknownModel without any I/O to disk" (enforced earlier, at
// parsePath) and the analogous contract for unknown elements within a
// known module.
func validateSteps(module *Module, steps []step) error {
	n := module.Root
	for _, s := range steps {
		child, ok := n.Children[s.name]
		if !ok {
			return protoerr.Newf(protoerr.BadElement, "unknown node: "+s.name)
		}
		n = child
	}
	return nil
}

func resolveSteps(node *Node, steps []step) ([]*Node, error) {
	if len(steps) == 0 {
		return []*Node{node}, nil
	}
	s := steps[0]
	rest := steps[1:]

	var matches []*Node
	for _, c := range node.Children {
		if c.Name != s.name {
			continue
		}
		if !matchesPredicates(c, s.preds) {
			continue
		}
		matches = append(matches, c)
	}

	var out []*Node
	for _, m := range matches {
		sub, err := resolveSteps(m, rest)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func matchesPredicates(node *Node, preds map[string]Value) bool {
	if len(preds) == 0 {
		return true
	}
	if v, ok := preds["."]; ok {
		return node.Value != nil && valuesEqual(*node.Value, v)
	}
	for k, v := range preds {
		kv, ok := node.Keys[k]
		if !ok || !valuesEqual(kv, v) {
			return false
		}
	}
	return true
}

// CanonicalXPath reconstructs a fully-keyed absolute XPath for node, used
// to echo back on Value reads and to name validation-error paths.
// Running-datastore enablement is recorded under SchemaPath instead.
func CanonicalXPath(moduleName string, node *Node) string {
	var segs []string
	for n := node; n != nil && n.Name != ""; n = n.Parent {
		seg := n.Name
		if len(n.Keys) > 0 {
			var b strings.Builder
			b.WriteString(seg)
			for _, k := range sortedKeys(n.Keys) {
				b.WriteString("[")
				b.WriteString(k)
				b.WriteString("='")
				b.WriteString(n.Keys[k].String())
				b.WriteString("']")
			}
			seg = b.String()
		}
		segs = append([]string{seg}, segs...)
	}
	if len(segs) == 0 {
		return "/" + moduleName + ":"
	}
	segs[0] = moduleName + ":" + segs[0]
	return "/" + strings.Join(segs, "/")
}

// SchemaPath reconstructs node's schema-level path: module-qualified node
// names with no list-key predicates. Running-datastore enablement (spec
// §4.5.4) is recorded and looked up under this form rather than under
// CanonicalXPath's fully-keyed form, since enabling a schema node makes
// every one of its instances visible, not just the one resolved when the
// enabling request was made.
func SchemaPath(moduleName string, node *Node) string {
	var names []string
	for n := node; n != nil && n.Name != ""; n = n.Parent {
		names = append([]string{n.Name}, names...)
	}
	return schemaPathString(moduleName, names)
}

func schemaPathString(moduleName string, names []string) string {
	if len(names) == 0 {
		return "/" + moduleName + ":"
	}
	segs := make([]string, len(names))
	copy(segs, names)
	segs[0] = moduleName + ":" + segs[0]
	return "/" + strings.Join(segs, "/")
}

func sortedKeys(m map[string]Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
