package session

import (
	"testing"

	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestCreateSessionRejectsRealUserMismatch(t *testing.T) {
	m := NewManager()
	conn := m.ConnectionStart(1000, 1000)
	_, err := m.CreateSession(conn, wire.DatastoreCandidate, "bob", "", "alice")
	require.Error(t, err)
	require.Equal(t, protoerr.Unauthorized, protoerr.CodeOf(err))
}

func TestCreateSessionRejectsUnprivilegedEffectiveUser(t *testing.T) {
	m := NewManager()
	conn := m.ConnectionStart(1000, 1000)
	_, err := m.CreateSession(conn, wire.DatastoreCandidate, "alice", "root", "alice")
	require.Error(t, err)
	require.Equal(t, protoerr.Unauthorized, protoerr.CodeOf(err))
}

func TestCreateSessionAllowsPrivilegedEffectiveUser(t *testing.T) {
	m := NewManager()
	conn := m.ConnectionStart(0, 0)
	s, err := m.CreateSession(conn, wire.DatastoreCandidate, "root", "alice", "root")
	require.NoError(t, err)
	require.Equal(t, "alice", s.EffectiveUser)
}

func TestFindSessionRejectsForeignConnection(t *testing.T) {
	m := NewManager()
	connA := m.ConnectionStart(1000, 1000)
	connB := m.ConnectionStart(1001, 1001)
	s, err := m.CreateSession(connA, wire.DatastoreRunning, "alice", "", "alice")
	require.NoError(t, err)

	_, err = m.FindSession(s.ID, connB.ID)
	require.Error(t, err)
	require.Equal(t, protoerr.Unauthorized, protoerr.CodeOf(err))

	found, err := m.FindSession(s.ID, connA.ID)
	require.NoError(t, err)
	require.Equal(t, s.ID, found.ID)
}

func TestCloseConnectionStopsOwnedSessions(t *testing.T) {
	m := NewManager()
	conn := m.ConnectionStart(1000, 1000)
	s1, err := m.CreateSession(conn, wire.DatastoreRunning, "alice", "", "alice")
	require.NoError(t, err)
	s2, err := m.CreateSession(conn, wire.DatastoreRunning, "alice", "", "alice")
	require.NoError(t, err)

	var destroyed []uint32
	m.OnSessionDestroy(func(id uint32) { destroyed = append(destroyed, id) })

	m.CloseConnection(conn.ID)

	require.ElementsMatch(t, []uint32{s1.ID, s2.ID}, destroyed)
	_, err = m.FindSession(s1.ID, conn.ID)
	require.Error(t, err)
}

func TestSessionIDsNeverWrapIntoLiveCollision(t *testing.T) {
	m := NewManager()
	conn := m.ConnectionStart(1000, 1000)
	m.nextSessID = ^uint32(0) // force imminent wraparound
	s, err := m.CreateSession(conn, wire.DatastoreRunning, "alice", "", "alice")
	require.NoError(t, err)
	require.Equal(t, uint32(1), s.ID) // counter wraps past 0 straight to 1
}

func TestSessionRecordsBoundedErrorHistory(t *testing.T) {
	s := &Session{ID: 1}
	for i := 0; i < maxLastErrors+5; i++ {
		s.RecordError(SessionError{Path: "/x", Message: "boom", Code: protoerr.Internal})
	}
	require.Len(t, s.LastErrors(), maxLastErrors)
}
