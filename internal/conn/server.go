// Package conn is the Connection Manager of spec §4.2: it accepts peers
// on the local stream socket, frames and dispatches their requests, and
// enforces per-session FIFO ordering (the Request Sequencer, spec §4.3).
//
// The source reactor is a single-threaded cooperative event loop; this
// implementation instead spawns one goroutine per accepted connection and
// one dispatcher goroutine per session (see sequencer in sequencer.go).
// That is a stronger ordering guarantee than the source's, not a weaker
// one: requests across different sessions already interleave freely under
// the cooperative loop, and here they do too, while FIFO-per-session is
// still exactly enforced by routing every request for a session through
// its single dispatcher goroutine.
package conn

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/confd-io/confd/internal/bufpool"
	"github.com/confd-io/confd/internal/datamgr"
	"github.com/confd-io/confd/internal/logger"
	"github.com/confd-io/confd/internal/notify"
	"github.com/confd-io/confd/internal/persist"
	"github.com/confd-io/confd/internal/session"
	"github.com/confd-io/confd/internal/telemetry/metrics"
	"github.com/confd-io/confd/internal/wire"
	"github.com/confd-io/confd/internal/yang"
)

// Server is the accept loop plus the registries it hands off to.
type Server struct {
	listener   net.Listener
	sm         *session.Manager
	dm         *datamgr.Manager
	np         *notify.Processor
	pm         *persist.Manager
	modules    map[string]*yang.Module
	schemaDir  string
	pool       *bufpool.Pool
	maxMsgSize int
	metrics    *metrics.Recorder

	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[session.ConnectionID]*Connection
	stopping bool
}

// SetMetricsRecorder attaches a Prometheus recorder for the commit
// pipeline and per-operation counters. A nil recorder (the default) makes
// every recording call a no-op.
func (s *Server) SetMetricsRecorder(r *metrics.Recorder) {
	s.metrics = r
}

// NewServer wires the Connection Manager to its collaborators. maxMsgSize
// of 0 uses wire.DefaultMaxMsgSize.
func NewServer(listener net.Listener, sm *session.Manager, dm *datamgr.Manager, np *notify.Processor, pm *persist.Manager, modules map[string]*yang.Module, schemaDir string, maxMsgSize int) *Server {
	s := &Server{
		listener:   listener,
		sm:         sm,
		dm:         dm,
		np:         np,
		pm:         pm,
		modules:    modules,
		schemaDir:  schemaDir,
		pool:       bufpool.NewPool(0, 0, 0),
		maxMsgSize: maxMsgSize,
		conns:      make(map[session.ConnectionID]*Connection),
	}
	sm.OnSessionDestroy(dm.StopSession)
	return s
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed, matching the source's "listen watcher ... breaks the loop" on
// an async stop (here: context cancellation).
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()
		_ = s.listener.Close()
	}()

	for {
		netConn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			stopping := s.stopping
			s.mu.Unlock()
			if stopping {
				s.wg.Wait()
				return nil
			}
			return err
		}

		peerUID, peerGID, err := peerCredentials(netConn)
		if err != nil {
			logger.Warn("failed to read peer credentials, dropping connection", "error", err)
			_ = netConn.Close()
			continue
		}

		smConn := s.sm.ConnectionStart(peerUID, peerGID)
		c := newConnection(s, netConn, smConn)

		s.mu.Lock()
		s.conns[smConn.ID] = c
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			c.serve(ctx)
			s.mu.Lock()
			delete(s.conns, smConn.ID)
			s.mu.Unlock()
			s.sm.CloseConnection(smConn.ID)
			s.np.UnsubscribeDestination(netConn.RemoteAddr().String())
		}()
	}
}

// Send implements notify.Sender at the server level: it routes a
// notification to whichever live connection matches the destination
// address recorded at subscribe time (the subscriber's own remote
// address, per connection.go's Send wiring), so the Notification
// Processor can hold one Sender regardless of how many peers connect.
func (s *Server) Send(n *wire.Notification) error {
	s.mu.Lock()
	var target *Connection
	for _, c := range s.conns {
		if c.net.RemoteAddr().String() == n.DestinationAddress {
			target = c
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return fmt.Errorf("no live connection for destination %q", n.DestinationAddress)
	}
	return target.Send(n)
}

// peerCredentials reads SO_PEERCRED off a unix-domain socket connection;
// non-unix transports (e.g. in tests, net.Pipe) report uid/gid 0, which a
// caller feeding in library-mode peer checks must treat as "same as the
// server process" only when it actually is.
func peerCredentials(netConn net.Conn) (uid, gid uint32, err error) {
	unixConn, ok := netConn.(*net.UnixConn)
	if !ok {
		return 0, 0, nil
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, 0, err
	}
	var ucred *unix.Ucred
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, 0, err
	}
	if sockErr != nil {
		return 0, 0, sockErr
	}
	return ucred.Uid, ucred.Gid, nil
}
