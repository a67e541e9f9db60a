// Package session is the registry of live Connections and Sessions: a
// Session Manager in the sense of spec §4.4, keyed by integer handles
// rather than the cyclic back-pointers the source used (spec §9).
package session

import (
	"sync"

	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/wire"
	"github.com/google/uuid"
)

// ConnectionID identifies one accepted transport connection.
type ConnectionID uint64

// Connection is SM's record of one accepted peer, including the
// credentials read at accept time for the session_create privilege check.
type Connection struct {
	ID         ConnectionID
	PeerUID    uint32
	PeerGID    uint32
	TraceID    string // google/uuid, correlates log lines and telemetry spans for this peer
	SessionIDs map[uint32]struct{}
}

// Session is one session-start .. session-stop lifetime, scoped to a
// datastore and owned by exactly one Connection.
type Session struct {
	ID           uint32
	ConnectionID ConnectionID
	Datastore    wire.Datastore
	RealUser     string
	EffectiveUser string
	TraceID      string

	mu         sync.Mutex
	lastErrors []SessionError
}

// SessionError is one entry of a session's bounded error history, per
// spec §7 ("the session accumulates the last N error entries").
type SessionError struct {
	Path    string
	Message string
	Code    protoerr.Code
}

const maxLastErrors = 16

// RecordError appends err to the session's bounded history, evicting the
// oldest entry once full.
func (s *Session) RecordError(e SessionError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrors = append(s.lastErrors, e)
	if len(s.lastErrors) > maxLastErrors {
		s.lastErrors = s.lastErrors[len(s.lastErrors)-maxLastErrors:]
	}
}

// LastErrors returns a copy of the session's bounded error history, newest
// last, for the get-last-errors operation.
func (s *Session) LastErrors() []SessionError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionError, len(s.lastErrors))
	copy(out, s.lastErrors)
	return out
}

// DestroyCallback is invoked when a Session or Connection is torn down, so
// upper layers (DM, the notification processor) can free their own
// per-session/per-connection state without SM knowing their shape.
type DestroyCallback func(id uint32)

// Manager is SM's registry: connection-handle -> Connection and
// session-id -> Session, per spec §4.4.
type Manager struct {
	mu sync.RWMutex

	connections map[ConnectionID]*Connection
	sessions    map[uint32]*Session
	nextConnID  ConnectionID
	nextSessID  uint32

	onSessionDestroy    []DestroyCallback
	onConnectionDestroy []DestroyCallback
}

func NewManager() *Manager {
	return &Manager{
		connections: make(map[ConnectionID]*Connection),
		sessions:    make(map[uint32]*Session),
	}
}

// OnSessionDestroy registers a callback invoked with a session id whenever
// StopSession removes that session.
func (m *Manager) OnSessionDestroy(cb DestroyCallback) { m.onSessionDestroy = append(m.onSessionDestroy, cb) }

// OnConnectionDestroy registers a callback invoked with a connection id
// (converted to uint32, the DestroyCallback parameter type) whenever
// CloseConnection removes that connection.
func (m *Manager) OnConnectionDestroy(cb DestroyCallback) { m.onConnectionDestroy = append(m.onConnectionDestroy, cb) }

// ConnectionStart registers a newly accepted peer, reading its credentials
// (peerUID/peerGID as reported by the transport layer's SO_PEERCRED-style
// lookup, done by the caller in internal/conn). Implements
// sm_connection_start of spec §4.4.
func (m *Manager) ConnectionStart(peerUID, peerGID uint32) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextConnID++
	c := &Connection{
		ID:         m.nextConnID,
		PeerUID:    peerUID,
		PeerGID:    peerGID,
		TraceID:    uuid.NewString(),
		SessionIDs: make(map[uint32]struct{}),
	}
	m.connections[c.ID] = c
	return c
}

// CreateSession implements session_create of spec §4.4: realUser must
// equal the connection's peer user name, and effectiveUser may differ
// from realUser only when the connection's peer uid is 0 (privileged).
func (m *Manager) CreateSession(conn *Connection, datastore wire.Datastore, realUser, effectiveUser string, peerUserName string) (*Session, error) {
	if realUser != peerUserName {
		return nil, protoerr.Newf(protoerr.Unauthorized, "real_user does not match connection peer user")
	}
	if effectiveUser != "" && effectiveUser != realUser && conn.PeerUID != 0 {
		return nil, protoerr.Newf(protoerr.Unauthorized, "effective_user may only be set by a privileged peer")
	}
	if effectiveUser == "" {
		effectiveUser = realUser
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.allocateSessionIDLocked()
	s := &Session{
		ID:            id,
		ConnectionID:  conn.ID,
		Datastore:     datastore,
		RealUser:      realUser,
		EffectiveUser: effectiveUser,
		TraceID:       uuid.NewString(),
	}
	m.sessions[id] = s
	conn.SessionIDs[id] = struct{}{}
	return s, nil
}

// allocateSessionIDLocked assigns the next id from a monotonically
// increasing 32-bit counter, rejecting wraparound collisions with any
// still-live id (spec §4.4).
func (m *Manager) allocateSessionIDLocked() uint32 {
	for {
		m.nextSessID++
		if m.nextSessID == 0 {
			m.nextSessID = 1
		}
		if _, live := m.sessions[m.nextSessID]; !live {
			return m.nextSessID
		}
	}
}

// FindSession implements session_find_id: it also verifies callerConn
// equals the session's owning connection, enforcing the check spec §4.4
// says CM must perform at dispatch.
func (m *Manager) FindSession(id uint32, callerConn ConnectionID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, protoerr.Newf(protoerr.NotFound, "unknown session")
	}
	if s.ConnectionID != callerConn {
		return nil, protoerr.Newf(protoerr.Unauthorized, "session belongs to a different connection")
	}
	return s, nil
}

// StopSession removes id from the registry and invokes every registered
// session-destroy callback.
func (m *Manager) StopSession(id uint32) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
		if conn, ok := m.connections[s.ConnectionID]; ok {
			delete(conn.SessionIDs, id)
		}
	}
	m.mu.Unlock()
	if ok {
		for _, cb := range m.onSessionDestroy {
			cb(id)
		}
	}
}

// CloseConnection stops every session the connection owns, then removes
// the connection itself, per spec §4.2 close policy ("drops all sessions
// it owns by calling DM's per-session stop for each").
func (m *Manager) CloseConnection(id ConnectionID) {
	m.mu.Lock()
	conn, ok := m.connections[id]
	var owned []uint32
	if ok {
		for sid := range conn.SessionIDs {
			owned = append(owned, sid)
		}
		delete(m.connections, id)
	}
	m.mu.Unlock()

	for _, sid := range owned {
		m.StopSession(sid)
	}
	if ok {
		for _, cb := range m.onConnectionDestroy {
			cb(uint32(id))
		}
	}
}

// Connection looks up a registered connection by id.
func (m *Manager) Connection(id ConnectionID) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	return c, ok
}
