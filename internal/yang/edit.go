package yang

import "github.com/confd-io/confd/internal/protoerr"

// EditOptions are the edit-option flags of spec §4.5.2.
type EditOptions struct {
	Default      bool // set/delete idempotently
	Strict       bool // set: DataExists if present; delete: DataMissing if absent
	NonRecursive bool // delete: refuse containers/lists with children
}

// Set resolves xpath, creating any missing ancestor containers/list
// entries along the way, and sets the target leaf/leaf-list value (or, for
// a container/list target, simply ensures the node exists). It returns the
// node that was created or updated.
func Set(tree *Tree, xpath string, value *Value, opts EditOptions) (*Node, error) {
	steps, err := parsePath(tree.Module.Name, xpath)
	if err != nil {
		return nil, err
	}
	if err := validateSteps(tree.Module, steps); err != nil {
		return nil, err
	}
	if err := rejectKeyLeafEdit(tree.Module, steps); err != nil {
		return nil, err
	}

	node := tree.Root
	schema := tree.Module.Root
	for i, s := range steps {
		childSchema := schema.Children[s.name]
		last := i == len(steps)-1

		if childSchema.Kind == KindLeafList {
			if value == nil {
				return nil, protoerr.Newf(protoerr.InvalidArg, "leaf-list set requires a value").WithPath(xpath)
			}
			for _, c := range node.Children {
				if c.Name == s.name && c.Value != nil && valuesEqual(*c.Value, *value) {
					if opts.Strict {
						return nil, protoerr.Newf(protoerr.DataExists, "node already exists").WithPath(xpath)
					}
					return c, nil
				}
			}
			entry := &Node{Name: s.name, Schema: childSchema, Parent: node}
			v := *value
			entry.Value = &v
			node.Children = append(node.Children, entry)
			return entry, nil
		}

		existing := findChild(node, childSchema, s)
		if existing == nil {
			created, err := createChild(node, childSchema, s, xpath)
			if err != nil {
				return nil, err
			}
			existing = created
		} else if last && opts.Strict {
			return nil, protoerr.Newf(protoerr.DataExists, "node already exists").WithPath(xpath)
		}

		node = existing
		schema = childSchema

		if last {
			if childSchema.Kind == KindLeaf {
				if value == nil {
					return nil, protoerr.Newf(protoerr.InvalidArg, "leaf set requires a value").WithPath(xpath)
				}
				v := *value
				node.Value = &v
			}
			return node, nil
		}
	}
	return node, nil
}

// Delete removes the node(s) matching xpath.
func Delete(tree *Tree, xpath string, opts EditOptions) error {
	steps, err := parsePath(tree.Module.Name, xpath)
	if err != nil {
		return err
	}
	if err := validateSteps(tree.Module, steps); err != nil {
		return err
	}
	if err := rejectKeyLeafEdit(tree.Module, steps); err != nil {
		return err
	}

	parentSteps, lastStep := steps[:len(steps)-1], steps[len(steps)-1]
	parents, err := resolveSteps(tree.Root, parentSteps)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		if opts.Strict {
			return protoerr.Newf(protoerr.DataMissing, "node does not exist").WithPath(xpath)
		}
		return nil
	}

	type match struct{ parent, node *Node }
	var matches []match
	for _, parent := range parents {
		for _, c := range parent.Children {
			if c.Name != lastStep.name || !matchesPredicates(c, lastStep.preds) {
				continue
			}
			if opts.NonRecursive && len(c.Children) > 0 {
				return protoerr.Newf(protoerr.InvalidArg, "node has children and non-recursive was requested").WithPath(xpath)
			}
			matches = append(matches, match{parent, c})
		}
	}
	if len(matches) == 0 && opts.Strict {
		return protoerr.Newf(protoerr.DataMissing, "node does not exist").WithPath(xpath)
	}
	for _, mt := range matches {
		mt.parent.RemoveChild(mt.node)
	}
	return nil
}

// MoveUp/MoveDown reorder a user-ordered list entry among its siblings, a
// no-op at the extremities (spec §4.5.2, §8).
func MoveUp(tree *Tree, xpath string) error   { return move(tree, xpath, -1) }
func MoveDown(tree *Tree, xpath string) error { return move(tree, xpath, +1) }

func move(tree *Tree, xpath string, delta int) error {
	steps, err := parsePath(tree.Module.Name, xpath)
	if err != nil {
		return err
	}
	if err := validateSteps(tree.Module, steps); err != nil {
		return err
	}
	last := steps[len(steps)-1]
	schema := tree.Module.Find(stepNames(steps))
	if schema == nil || schema.Kind != KindList || !schema.UserOrdered {
		return protoerr.Newf(protoerr.InvalidArg, "move applies only to user-ordered list entries").WithPath(xpath)
	}

	parents, err := resolveSteps(tree.Root, steps[:len(steps)-1])
	if err != nil {
		return err
	}
	if len(parents) != 1 {
		return protoerr.Newf(protoerr.NotFound, "list entry not found").WithPath(xpath)
	}
	parent := parents[0]

	var entry *Node
	for _, c := range parent.Children {
		if c.Name == last.name && matchesPredicates(c, last.preds) {
			entry = c
			break
		}
	}
	if entry == nil {
		return protoerr.Newf(protoerr.NotFound, "list entry not found").WithPath(xpath)
	}

	idx := parent.IndexOf(entry)
	newIdx := idx + delta
	if newIdx < 0 || newIdx >= len(parent.Children) {
		return nil // no-op at extremities
	}
	parent.Children[idx], parent.Children[newIdx] = parent.Children[newIdx], parent.Children[idx]
	return nil
}

func stepNames(steps []step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.name
	}
	return names
}

func rejectKeyLeafEdit(module *Module, steps []step) error {
	if len(steps) < 2 {
		return nil
	}
	parentSchema := module.Find(stepNames(steps[:len(steps)-1]))
	if parentSchema == nil || parentSchema.Kind != KindList {
		return nil
	}
	last := steps[len(steps)-1].name
	for _, k := range parentSchema.Keys {
		if k == last {
			return protoerr.Newf(protoerr.InvalidArg, "list key leaves may not be set or deleted directly")
		}
	}
	return nil
}

func findChild(node *Node, schema *SchemaNode, s step) *Node {
	if schema.Kind == KindList {
		return node.ListEntry(s.name, s.preds)
	}
	return node.ChildByName(s.name)
}

func createChild(node *Node, schema *SchemaNode, s step, xpath string) (*Node, error) {
	child := &Node{Name: s.name, Schema: schema, Parent: node}
	if schema.Kind == KindList {
		if len(s.preds) != len(schema.Keys) {
			return nil, protoerr.Newf(protoerr.InvalidArg, "list entry requires all key values").WithPath(xpath)
		}
		child.Keys = map[string]Value{}
		for _, k := range schema.Keys {
			v, ok := s.preds[k]
			if !ok {
				return nil, protoerr.Newf(protoerr.InvalidArg, "missing key "+k).WithPath(xpath)
			}
			child.Keys[k] = v
			keySchema, ok := schema.Children[k]
			if ok {
				keyLeaf := &Node{Name: k, Schema: keySchema, Parent: child}
				kv := v
				keyLeaf.Value = &kv
				child.Children = append(child.Children, keyLeaf)
			}
		}
	}
	node.Children = append(node.Children, child)
	return child, nil
}
