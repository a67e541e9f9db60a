// Package builtin defines the YANG modules confd ships compiled in: a
// minimal system configuration module exercising every schema node kind
// (container, list, leaf, leaf-list) so the commit pipeline, list
// iteration, and move-item operations all have a real module to run
// against without a YANG-text compiler.
package builtin

import (
	"path/filepath"

	"github.com/confd-io/confd/internal/yang"
)

// Modules returns fresh instances of every module confd bundles. Called
// once per consumer at startup; the Data Manager and the Connection Manager's schema
// catalog each get their own copy so neither shares mutable module state
// (enabled features, running-datastore enablement) with the other.
func Modules(schemaDir string) map[string]*yang.Module {
	out := make(map[string]*yang.Module)
	for _, build := range []func(string) *yang.Module{systemModule, interfacesModule} {
		m := build(schemaDir)
		out[m.Name] = m
	}
	return out
}

// systemModule models hostname and a list of NTP servers: a leaf and a
// user-ordered leaf-list under a top-level container.
func systemModule(schemaDir string) *yang.Module {
	m := yang.NewModule("confd-system", "urn:confd:system", "sys")
	m.Revision = yang.Revision{
		Version:  "2026-01-01",
		YangPath: filepath.Join(schemaDir, "confd-system.yang"),
		YinPath:  filepath.Join(schemaDir, "confd-system.yin"),
	}

	system := &yang.SchemaNode{Name: "system", Kind: yang.KindContainer, Children: map[string]*yang.SchemaNode{}}

	hostname := &yang.SchemaNode{
		Name: "hostname", Kind: yang.KindLeaf,
		Type:     &yang.TypeSpec{Kind: yang.KindString},
		Children: map[string]*yang.SchemaNode{},
	}
	contact := &yang.SchemaNode{
		Name: "contact", Kind: yang.KindLeaf,
		Type:     &yang.TypeSpec{Kind: yang.KindString},
		Children: map[string]*yang.SchemaNode{},
	}
	ntpServer := &yang.SchemaNode{
		Name: "ntp-server", Kind: yang.KindLeafList,
		Type:        &yang.TypeSpec{Kind: yang.KindString},
		UserOrdered: true,
		Children:    map[string]*yang.SchemaNode{},
	}

	system.AddChild(hostname)
	system.AddChild(contact)
	system.AddChild(ntpServer)
	m.Root.AddChild(system)

	return m
}

// interfacesModule models a keyed list of network interfaces, each with
// an enabled leaf and an MTU leaf, exercising list create/delete and
// move-item (ordered-by user).
func interfacesModule(schemaDir string) *yang.Module {
	m := yang.NewModule("confd-interfaces", "urn:confd:interfaces", "if")
	m.Revision = yang.Revision{
		Version:  "2026-01-01",
		YangPath: filepath.Join(schemaDir, "confd-interfaces.yang"),
		YinPath:  filepath.Join(schemaDir, "confd-interfaces.yin"),
	}

	interfaces := &yang.SchemaNode{Name: "interfaces", Kind: yang.KindContainer, Children: map[string]*yang.SchemaNode{}}

	iface := &yang.SchemaNode{
		Name: "interface", Kind: yang.KindList,
		Keys:        []string{"name"},
		UserOrdered: true,
		Children:    map[string]*yang.SchemaNode{},
	}
	name := &yang.SchemaNode{
		Name: "name", Kind: yang.KindLeaf, Mandatory: true,
		Type:     &yang.TypeSpec{Kind: yang.KindString},
		Children: map[string]*yang.SchemaNode{},
	}
	enabled := &yang.SchemaNode{
		Name: "enabled", Kind: yang.KindLeaf,
		Type:     &yang.TypeSpec{Kind: yang.KindBool},
		Children: map[string]*yang.SchemaNode{},
	}
	mtu := &yang.SchemaNode{
		Name: "mtu", Kind: yang.KindLeaf,
		Type:     &yang.TypeSpec{Kind: yang.KindUint16},
		Children: map[string]*yang.SchemaNode{},
	}

	iface.AddChild(name)
	iface.AddChild(enabled)
	iface.AddChild(mtu)
	interfaces.AddChild(iface)
	m.Root.AddChild(interfaces)

	return m
}
