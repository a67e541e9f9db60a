package yang

// EnableXPath implements the running-datastore enablement walk of spec
// §4.5.4. It operates purely on the schema, not on any one data instance
// tree: xpath's matched node becomes EnabledWithChildren (container/list)
// or Enabled (leaf/leaf-list), every ancestor along the way that isn't
// already enabled becomes Enabled too, and a newly-enabled list ancestor
// has its key leaves enabled alongside it.
func EnableXPath(module *Module, xpath string) error {
	steps, err := parsePath(module.Name, xpath)
	if err != nil {
		return err
	}
	if err := validateSteps(module, steps); err != nil {
		return err
	}

	n := module.Root
	var names []string
	for i, s := range steps {
		n = n.Children[s.name]
		names = append(names, s.name)
		path := schemaPathString(module.Name, names)

		if i == len(steps)-1 {
			if n.Kind == KindContainer || n.Kind == KindList {
				module.SetEnableState(path, EnabledWithChildren)
			} else {
				module.SetEnableState(path, Enabled)
			}
			continue
		}

		if module.EnableStateOf(path) != Disabled {
			continue
		}
		module.SetEnableState(path, Enabled)
		if n.Kind == KindList {
			for _, key := range n.Keys {
				module.SetEnableState(path+"/"+key, Enabled)
			}
		}
	}
	return nil
}
