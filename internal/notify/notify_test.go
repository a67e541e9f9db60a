package notify

import (
	"testing"

	"github.com/confd-io/confd/internal/persist"
	"github.com/confd-io/confd/internal/wire"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	sent []*wire.Notification
}

func (r *recordingSender) Send(n *wire.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func TestModuleInstallNotifyFansOutToMatchingSubscribers(t *testing.T) {
	pm := persist.NewManager(t.TempDir())
	sender := &recordingSender{}
	p := NewProcessor(pm, sender)

	require.NoError(t, p.Subscribe(wire.EventModuleInstall, "", "/tmp/a.sock", 1, ""))
	require.NoError(t, p.Subscribe(wire.EventModuleInstall, "foo", "/tmp/b.sock", 2, ""))

	p.ModuleInstallNotify("foo")

	require.Len(t, sender.sent, 2)
}

func TestModuleInstallNotifyFiltersByModule(t *testing.T) {
	pm := persist.NewManager(t.TempDir())
	sender := &recordingSender{}
	p := NewProcessor(pm, sender)

	require.NoError(t, p.Subscribe(wire.EventModuleInstall, "bar", "/tmp/a.sock", 1, ""))

	p.ModuleInstallNotify("foo")
	require.Empty(t, sender.sent)
}

func TestNotifyModuleChangeDeliversPersistentSubs(t *testing.T) {
	pm := persist.NewManager(t.TempDir())
	sender := &recordingSender{}
	p := NewProcessor(pm, sender)

	require.NoError(t, p.Subscribe(wire.EventModuleChange, "foo", "/tmp/d.sock", 1, "/foo:x"))

	p.NotifyModuleChange("foo")
	require.Len(t, sender.sent, 1)
	require.Equal(t, wire.EventModuleChange, sender.sent[0].EventKind)
}

func TestUnsubscribeDestinationPurgesBothKinds(t *testing.T) {
	pm := persist.NewManager(t.TempDir())
	sender := &recordingSender{}
	p := NewProcessor(pm, sender)

	require.NoError(t, p.Subscribe(wire.EventModuleInstall, "", "/tmp/d.sock", 1, ""))
	require.NoError(t, p.Subscribe(wire.EventModuleChange, "foo", "/tmp/d.sock", 2, ""))

	p.UnsubscribeDestination("/tmp/d.sock")

	sender.sent = nil
	p.ModuleInstallNotify("anything")
	require.Empty(t, sender.sent)

	p.NotifyModuleChange("foo")
	require.Empty(t, sender.sent)
}
