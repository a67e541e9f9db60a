package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReturnsNilWhenDisabled(t *testing.T) {
	registry = nil
	enabled = false

	r := New()
	assert.Nil(t, r)
	assert.NotPanics(t, func() {
		r.RecordCommit("success", time.Millisecond)
		r.RecordOperation("set-item", "ok", time.Millisecond)
		r.SetActiveSessions(3)
	})
}

func TestNewRegistersAllCollectors(t *testing.T) {
	InitRegistry()
	t.Cleanup(func() { registry = nil; enabled = false })

	r := New()
	require.NotNil(t, r)
	require.NotNil(t, r.commitsTotal)
	require.NotNil(t, r.commitDuration)
	require.NotNil(t, r.commitPhaseDuration)
	require.NotNil(t, r.operationsTotal)
	require.NotNil(t, r.operationDuration)
	require.NotNil(t, r.validationErrors)
	require.NotNil(t, r.activeSessions)
	require.NotNil(t, r.moduleLockWaits)
	require.NotNil(t, r.notificationsTotal)
}

func TestRecordCommitIncrementsCounter(t *testing.T) {
	InitRegistry()
	t.Cleanup(func() { registry = nil; enabled = false })

	r := New()
	r.RecordCommit("success", 5*time.Millisecond)
	r.RecordCommitPhase("persist", time.Millisecond)
	r.RecordValidationError("interfaces")
	r.SetActiveSessions(2)
	r.RecordModuleLockWait("interfaces")
	r.RecordNotification(true)
	r.RecordNotification(false)

	mfs, err := GetRegistry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["confd_commits_total"])
	assert.True(t, names["confd_notifications_total"])
}

func TestHandlerReturnsNotFoundWhenDisabled(t *testing.T) {
	registry = nil
	enabled = false

	h := Handler()
	require.NotNil(t, h)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
