package datamgr

import (
	"testing"

	"github.com/confd-io/confd/internal/wire"
	"github.com/confd-io/confd/internal/yang"
	"github.com/stretchr/testify/require"
)

func buildInterfacesModule() *yang.Module {
	m := yang.NewModule("ietf-interfaces", "urn:ietf:params:xml:ns:yang:ietf-interfaces", "if")
	interfaces := &yang.SchemaNode{Name: "interfaces", Kind: yang.KindContainer, Children: map[string]*yang.SchemaNode{}}
	iface := &yang.SchemaNode{Name: "interface", Kind: yang.KindList, Keys: []string{"name"}, UserOrdered: true, Children: map[string]*yang.SchemaNode{}}
	name := &yang.SchemaNode{Name: "name", Kind: yang.KindLeaf, Type: &yang.TypeSpec{Kind: yang.KindString}, Children: map[string]*yang.SchemaNode{}}
	enabled := &yang.SchemaNode{Name: "enabled", Kind: yang.KindLeaf, Type: &yang.TypeSpec{Kind: yang.KindBool}, Children: map[string]*yang.SchemaNode{}}
	iface.AddChild(name)
	iface.AddChild(enabled)
	interfaces.AddChild(iface)
	m.Root.AddChild(interfaces)
	return m
}

type fakeNotifier struct{ notified []string }

func (f *fakeNotifier) NotifyModuleChange(module string) { f.notified = append(f.notified, module) }

func newTestManager(t *testing.T) (*Manager, *fakeNotifier) {
	t.Helper()
	module := buildInterfacesModule()
	notifier := &fakeNotifier{}
	m := NewManager(map[string]*yang.Module{"ietf-interfaces": module}, t.TempDir(), notifier)
	return m, notifier
}

func TestSetAndGetItemRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)

	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	require.NoError(t, m.SetItem(1, xpath, valuePtr(yang.BoolValue(true)), yang.EditOptions{}))

	v, err := m.GetValue(1, xpath)
	require.NoError(t, err)
	require.True(t, v.Bool)
}

func TestCommitPersistsAndNotifies(t *testing.T) {
	m, notifier := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)

	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	require.NoError(t, m.SetItem(1, xpath, valuePtr(yang.BoolValue(true)), yang.EditOptions{}))

	errs, err := m.Commit(1)
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Contains(t, notifier.notified, "ietf-interfaces")

	m.StartSession(2, wire.DatastoreCandidate)
	v, err := m.GetValue(2, xpath)
	require.NoError(t, err)
	require.True(t, v.Bool)
}

func TestCommitWithNoEditsIsNoOp(t *testing.T) {
	m, notifier := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)
	errs, err := m.Commit(1)
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Empty(t, notifier.notified)
}

func TestLockModuleExclusivity(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)
	m.StartSession(2, wire.DatastoreCandidate)

	require.NoError(t, m.LockModule(1, "ietf-interfaces"))
	err := m.LockModule(2, "ietf-interfaces")
	require.Error(t, err)

	require.NoError(t, m.UnlockModule(1, "ietf-interfaces"))
	require.NoError(t, m.LockModule(2, "ietf-interfaces"))
}

func TestLockDatastoreConflictsWithModuleLock(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)
	m.StartSession(2, wire.DatastoreCandidate)

	require.NoError(t, m.LockDatastore(1))
	err := m.LockModule(2, "ietf-interfaces")
	require.Error(t, err)
	require.NoError(t, m.UnlockDatastore(1))
	require.NoError(t, m.LockModule(2, "ietf-interfaces"))
}

func TestDiscardChangesDropsOperationLog(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)
	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	require.NoError(t, m.SetItem(1, xpath, valuePtr(yang.BoolValue(true)), yang.EditOptions{}))

	require.NoError(t, m.DiscardChanges(1))

	_, err := m.GetValue(1, xpath)
	require.Error(t, err) // fresh load from disk: never committed, so absent
}

func TestRunningDatastoreHidesUntilEnabled(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)

	xpath := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	require.NoError(t, m.SetItem(1, xpath, valuePtr(yang.BoolValue(true)), yang.EditOptions{}))
	_, err := m.Commit(1)
	require.NoError(t, err)

	m.StartSession(2, wire.DatastoreRunning)
	_, err = m.GetValue(2, xpath)
	require.Error(t, err) // not yet enabled: invisible to a running-scoped session

	require.NoError(t, m.EnableRunning("/ietf-interfaces:interfaces/interface/enabled"))

	v, err := m.GetValue(2, xpath)
	require.NoError(t, err)
	require.True(t, v.Bool)
}

func TestRunningDatastoreEnablingListEnablesEveryEntry(t *testing.T) {
	m, _ := newTestManager(t)
	m.StartSession(1, wire.DatastoreCandidate)

	eth0 := "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	eth1 := "/ietf-interfaces:interfaces/interface[name='eth1']/enabled"
	require.NoError(t, m.SetItem(1, eth0, valuePtr(yang.BoolValue(true)), yang.EditOptions{}))
	require.NoError(t, m.SetItem(1, eth1, valuePtr(yang.BoolValue(false)), yang.EditOptions{}))
	_, err := m.Commit(1)
	require.NoError(t, err)

	require.NoError(t, m.EnableRunning("/ietf-interfaces:interfaces"))

	m.StartSession(2, wire.DatastoreRunning)
	v0, err := m.GetValue(2, eth0)
	require.NoError(t, err)
	require.True(t, v0.Bool)

	v1, err := m.GetValue(2, eth1)
	require.NoError(t, err)
	require.False(t, v1.Bool)
}

func valuePtr(v yang.Value) *yang.Value { return &v }
