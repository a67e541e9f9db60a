package yang

// buildInterfacesModule builds a minimal stand-in for ietf-interfaces:
// interfaces/interface[name]/{name,enabled}.
func buildInterfacesModule() *Module {
	m := NewModule("ietf-interfaces", "urn:ietf:params:xml:ns:yang:ietf-interfaces", "if")

	interfaces := newSchemaNode("interfaces", KindContainer)
	iface := newSchemaNode("interface", KindList)
	iface.Keys = []string{"name"}
	iface.UserOrdered = true

	name := newSchemaNode("name", KindLeaf)
	name.Type = &TypeSpec{Kind: KindString}
	enabled := newSchemaNode("enabled", KindLeaf)
	enabled.Type = &TypeSpec{Kind: KindBool}

	iface.AddChild(name)
	iface.AddChild(enabled)
	interfaces.AddChild(iface)
	m.Root.AddChild(interfaces)
	return m
}

// buildTestModule builds a stand-in for test-module:location with two
// mandatory leaves, matching spec §8 scenario 2.
func buildTestModule() *Module {
	m := NewModule("test-module", "urn:test-module", "tm")

	location := newSchemaNode("location", KindContainer)
	nameLeaf := newSchemaNode("name", KindLeaf)
	nameLeaf.Type = &TypeSpec{Kind: KindString}
	lat := newSchemaNode("latitude", KindLeaf)
	lat.Type = &TypeSpec{Kind: KindString}
	lat.Mandatory = true
	lon := newSchemaNode("longitude", KindLeaf)
	lon.Type = &TypeSpec{Kind: KindString}
	lon.Mandatory = true

	location.AddChild(nameLeaf)
	location.AddChild(lat)
	location.AddChild(lon)
	m.Root.AddChild(location)
	return m
}

// buildUserListModule builds a stand-in for a plain user-ordered list of
// named entries, used for the move-up/move-down scenario.
func buildUserListModule() *Module {
	m := NewModule("example-module", "urn:example-module", "ex")
	user := newSchemaNode("user", KindList)
	user.Keys = []string{"name"}
	user.UserOrdered = true
	nameLeaf := newSchemaNode("name", KindLeaf)
	nameLeaf.Type = &TypeSpec{Kind: KindString}
	user.AddChild(nameLeaf)
	m.Root.AddChild(user)
	return m
}
