package persist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnableFeatureIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.EnableFeature("example-module", "turbo"))
	require.NoError(t, m.EnableFeature("example-module", "turbo"))

	features, err := m.GetFeatures("example-module")
	require.NoError(t, err)
	require.Equal(t, []string{"turbo"}, features)
}

func TestGetFeaturesOnMissingFileIsEmpty(t *testing.T) {
	m := NewManager(t.TempDir())
	features, err := m.GetFeatures("never-touched")
	require.NoError(t, err)
	require.Empty(t, features)
}

func TestAddSubscriptionIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir())
	sub := Subscription{DestinationAddress: "/tmp/sub.sock", DestinationID: 1, XPath: "/example-module:x"}
	require.NoError(t, m.AddSubscription("example-module", sub))
	require.NoError(t, m.AddSubscription("example-module", sub))

	subs, err := m.GetSubscriptions("example-module")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, sub, subs[0])
}

func TestRemoveSubscriptionsForDestination(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.AddSubscription("example-module", Subscription{DestinationAddress: "/tmp/a.sock", DestinationID: 1}))
	require.NoError(t, m.AddSubscription("example-module", Subscription{DestinationAddress: "/tmp/a.sock", DestinationID: 2}))
	require.NoError(t, m.AddSubscription("example-module", Subscription{DestinationAddress: "/tmp/b.sock", DestinationID: 1}))

	require.NoError(t, m.RemoveSubscriptionsForDestination("example-module", "/tmp/a.sock"))

	subs, err := m.GetSubscriptions("example-module")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.Equal(t, "/tmp/b.sock", subs[0].DestinationAddress)
}

func TestDisableFeatureThenGetFeaturesEmpty(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.EnableFeature("example-module", "turbo"))
	require.NoError(t, m.DisableFeature("example-module", "turbo"))

	features, err := m.GetFeatures("example-module")
	require.NoError(t, err)
	require.Empty(t, features)
}

func TestSideDataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	m1 := NewManager(dir)
	require.NoError(t, m1.EnableFeature("example-module", "turbo"))

	m2 := NewManager(dir)
	features, err := m2.GetFeatures("example-module")
	require.NoError(t, err)
	require.Equal(t, []string{"turbo"}, features)
}
