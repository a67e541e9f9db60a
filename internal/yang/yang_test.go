package yang

import (
	"testing"

	"github.com/confd-io/confd/internal/protoerr"
	"github.com/stretchr/testify/require"
)

func TestGetBooleanLeaf(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)

	_, err := Set(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled", ptr(BoolValue(true)), EditOptions{})
	require.NoError(t, err)

	nodes, err := Resolve(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.True(t, nodes[0].Value.Bool)
}

func TestCommitMandatoryLeafOmission(t *testing.T) {
	module := buildTestModule()
	tree := NewTree(module)

	_, err := Set(tree, "/test-module:location/name", ptr(StringValue("Banska Bystrica")), EditOptions{})
	require.NoError(t, err)

	errs := Validate(tree)
	require.Len(t, errs, 2)

	_, err = Set(tree, "/test-module:location/latitude", ptr(StringValue("48.73")), EditOptions{})
	require.NoError(t, err)
	_, err = Set(tree, "/test-module:location/longitude", ptr(StringValue("19.14")), EditOptions{})
	require.NoError(t, err)

	require.Empty(t, Validate(tree))
}

func TestUserOrderedMove(t *testing.T) {
	module := buildUserListModule()
	tree := NewTree(module)

	for _, name := range []string{"nameA", "nameB", "nameC"} {
		_, err := Set(tree, "/example-module:user[name='"+name+"']", nil, EditOptions{})
		require.NoError(t, err)
	}

	require.NoError(t, MoveDown(tree, "/example-module:user[name='nameA']"))
	require.NoError(t, MoveUp(tree, "/example-module:user[name='nameC']"))

	order := userOrder(tree)
	require.Equal(t, []string{"nameB", "nameC", "nameA"}, order)
}

func TestMoveUpOnLeftmostIsNoOp(t *testing.T) {
	module := buildUserListModule()
	tree := NewTree(module)
	for _, name := range []string{"a", "b"} {
		_, err := Set(tree, "/example-module:user[name='"+name+"']", nil, EditOptions{})
		require.NoError(t, err)
	}
	require.NoError(t, MoveUp(tree, "/example-module:user[name='a']"))
	require.Equal(t, []string{"a", "b"}, userOrder(tree))
}

func TestSetDefaultIsIdempotent(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"

	_, err := Set(tree, xpath, ptr(BoolValue(true)), EditOptions{Default: true})
	require.NoError(t, err)
	_, err = Set(tree, xpath, ptr(BoolValue(true)), EditOptions{Default: true})
	require.NoError(t, err)

	nodes, err := Resolve(tree, xpath)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
}

func TestSetStrictFailsOnSecondCall(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"

	_, err := Set(tree, xpath, ptr(BoolValue(true)), EditOptions{Strict: true})
	require.NoError(t, err)
	_, err = Set(tree, xpath, ptr(BoolValue(true)), EditOptions{Strict: true})
	require.Error(t, err)
	require.Equal(t, protoerr.DataExists, protoerr.CodeOf(err))
}

func TestDeleteDefaultOnAbsentSucceeds(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	require.NoError(t, Delete(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled", EditOptions{}))
}

func TestDeleteStrictOnAbsentFails(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	err := Delete(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled", EditOptions{Strict: true})
	require.Error(t, err)
	require.Equal(t, protoerr.DataMissing, protoerr.CodeOf(err))
}

func TestDeleteNonRecursiveRefusesContainerWithChildren(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	_, err := Set(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled", ptr(BoolValue(true)), EditOptions{})
	require.NoError(t, err)

	err = Delete(tree, "/ietf-interfaces:interfaces/interface[name='eth0']", EditOptions{NonRecursive: true})
	require.Error(t, err)
	require.Equal(t, protoerr.InvalidArg, protoerr.CodeOf(err))
}

func TestUnknownModuleReturnsUnknownModel(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	_, err := Resolve(tree, "/bogus-module:foo")
	require.Error(t, err)
	require.Equal(t, protoerr.UnknownModel, protoerr.CodeOf(err))
}

func TestDirectKeyLeafEditIsInvalidArg(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	_, err := Set(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/name", ptr(StringValue("eth1")), EditOptions{})
	require.Error(t, err)
	require.Equal(t, protoerr.InvalidArg, protoerr.CodeOf(err))
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	module := buildInterfacesModule()
	tree := NewTree(module)
	_, err := Set(tree, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled", ptr(BoolValue(true)), EditOptions{})
	require.NoError(t, err)

	data, err := Marshal(tree)
	require.NoError(t, err)

	restored, err := Unmarshal(module, data)
	require.NoError(t, err)

	nodes, err := Resolve(restored, "/ietf-interfaces:interfaces/interface[name='eth0']/enabled")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.True(t, nodes[0].Value.Bool)
}

func ptr(v Value) *Value { return &v }

func userOrder(tree *Tree) []string {
	var order []string
	for _, c := range tree.Root.Children {
		if c.Name == "user" {
			order = append(order, c.Keys["name"].Str)
		}
	}
	return order
}
