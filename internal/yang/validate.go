package yang

// ValidationError is one path-scoped failure from Validate, per spec §4.5.3
// phase 1/5 ("a per-error path list").
type ValidationError struct {
	Path    string
	Message string
}

// Validate walks every data node actually present in tree and reports a
// ValidationError for each mandatory leaf missing from an instantiated
// container or list entry. A container that was never touched does not
// force its descendants into existence (non-presence absence is valid).
func Validate(tree *Tree) []ValidationError {
	var errs []ValidationError
	walkValidate(tree.Module.Name, tree.Root, &errs)
	return errs
}

func walkValidate(moduleName string, node *Node, errs *[]ValidationError) {
	if node.Schema == nil {
		return
	}
	for _, childName := range node.Schema.Order {
		childSchema := node.Schema.Children[childName]
		if childSchema.Kind == KindLeaf && childSchema.Mandatory {
			if node.ChildByName(childName) == nil {
				*errs = append(*errs, ValidationError{
					Path:    CanonicalXPath(moduleName, node) + "/" + childName,
					Message: "mandatory node is missing",
				})
			}
		}
	}
	for _, child := range node.Children {
		walkValidate(moduleName, child, errs)
	}
}
