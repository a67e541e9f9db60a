package conn

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/confd-io/confd/internal/logger"
	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/session"
	"github.com/confd-io/confd/internal/wire"
)

// Connection owns one accepted peer's read loop, write serialization, and
// per-session dispatchers (spec §3 "Connection").
type Connection struct {
	server *Server
	net    net.Conn
	sm     *session.Connection

	writeMu sync.Mutex
	seqs    *sequencerRegistry
}

func newConnection(server *Server, netConn net.Conn, smConn *session.Connection) *Connection {
	return &Connection{
		server: server,
		net:    netConn,
		sm:     smConn,
		seqs:   newSequencerRegistry(),
	}
}

// serve drains frames until the peer disconnects, a transport error
// occurs, or ctx is cancelled, matching the source's "per-connection read
// watcher" / "async stop watcher" (spec §4.2).
func (c *Connection) serve(ctx context.Context) {
	defer func() {
		c.seqs.stopAll()
		_ = c.net.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := wire.ReadFrame(c.net, c.server.pool, c.server.maxMsgSize)
		if err != nil {
			if err == io.EOF {
				logger.Debug("connection closed by peer", "address", c.net.RemoteAddr().String())
			} else if me := protoerr.CodeOf(err); me == protoerr.MalformedMessage {
				logger.Debug("malformed frame, closing connection", "address", c.net.RemoteAddr().String(), "error", err)
			} else {
				logger.Debug("read error, closing connection", "address", c.net.RemoteAddr().String(), "error", err)
			}
			return
		}

		kind, req, _, _, err := wire.Decode(payload)
		c.server.pool.Put(payload)
		if err != nil {
			logger.Debug("undecodable frame, closing connection", "error", err)
			return
		}
		if kind != wire.KindRequest {
			// Only subscribers accept Notification frames, and this server
			// never receives Response frames on a connection it opened
			// outbound for delivery; either case here is a protocol error.
			logger.Debug("unexpected non-request frame from client")
			return
		}

		if err := wire.CheckWellFormed(req); err != nil {
			c.sendResponse(&wire.Response{SessionID: req.SessionID, Operation: req.Operation, ResultCode: protoerr.MalformedMessage.String(), ErrorMessage: err.Error()})
			continue
		}

		c.dispatch(req)
	}
}

// dispatch routes req to its session's sequencer (session-start/-stop are
// handled synchronously in-line, per spec §4.3).
func (c *Connection) dispatch(req *wire.Request) {
	switch req.Operation {
	case wire.OpSessionStart:
		c.sendResponse(c.handleSessionStart(req))
		return
	case wire.OpSessionStop:
		c.sendResponse(c.handleSessionStop(req))
		c.seqs.remove(req.SessionID)
		return
	}

	seq := c.seqs.get(req.SessionID)
	seq.Submit(func() {
		c.sendResponse(c.handleOperation(req))
	})
}

func (c *Connection) sendResponse(resp *wire.Response) {
	if resp == nil {
		return
	}
	payload, err := wire.EncodeResponse(resp)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wire.WriteFrame(c.net, payload, c.server.maxMsgSize); err != nil {
		logger.Debug("write error", "address", c.net.RemoteAddr().String(), "error", err)
	}
}

// Send implements notify.Sender: a notification is framed exactly like a
// response and written on the same serialized path.
func (c *Connection) Send(n *wire.Notification) error {
	payload, err := wire.EncodeNotification(n)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wire.WriteFrame(c.net, payload, c.server.maxMsgSize)
}
