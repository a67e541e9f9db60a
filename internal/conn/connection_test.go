package conn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confd-io/confd/internal/bufpool"
	"github.com/confd-io/confd/internal/datamgr"
	"github.com/confd-io/confd/internal/notify"
	"github.com/confd-io/confd/internal/persist"
	"github.com/confd-io/confd/internal/session"
	"github.com/confd-io/confd/internal/wire"
	"github.com/confd-io/confd/internal/yang"
)

func buildTestModule() *yang.Module {
	m := yang.NewModule("example-module", "urn:example:example-module", "ex")
	top := &yang.SchemaNode{Name: "top", Kind: yang.KindContainer, Children: map[string]*yang.SchemaNode{}}
	enabled := &yang.SchemaNode{Name: "enabled", Kind: yang.KindLeaf, Type: &yang.TypeSpec{Kind: yang.KindBool}, Children: map[string]*yang.SchemaNode{}}
	top.AddChild(enabled)
	m.Root.AddChild(top)
	return m
}

type recordingSender struct{ sent []*wire.Notification }

func (s *recordingSender) Send(n *wire.Notification) error {
	s.sent = append(s.sent, n)
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	modules := map[string]*yang.Module{"example-module": buildTestModule()}
	sm := session.NewManager()
	pm := persist.NewManager(t.TempDir())
	np := notify.NewProcessor(pm, &recordingSender{})
	dm := datamgr.NewManager(modules, t.TempDir(), np)
	return NewServer(nil, sm, dm, np, pm, modules, t.TempDir(), 0)
}

// startPipeConnection drives a Connection directly over a net.Pipe, since
// net.Pipe is not a net.Listener and Server.Serve expects one.
func startPipeConnection(t *testing.T, s *Server) net.Conn {
	t.Helper()
	clientSide, serverSide := net.Pipe()
	smConn := s.sm.ConnectionStart(0, 0)
	c := newConnection(s, serverSide, smConn)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.serve(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		clientSide.Close()
		<-done
	})
	return clientSide
}

var testPool = bufpool.NewPool(0, 0, 0)

func roundTrip(t *testing.T, conn net.Conn, req *wire.Request) *wire.Response {
	t.Helper()
	payload, err := wire.EncodeRequest(req)
	require.NoError(t, err)
	require.NoError(t, wire.WriteFrame(conn, payload, wire.DefaultMaxMsgSize))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	got, err := wire.ReadFrame(conn, testPool, wire.DefaultMaxMsgSize)
	require.NoError(t, err)
	kind, _, resp, _, err := wire.Decode(got)
	require.NoError(t, err)
	require.Equal(t, wire.KindResponse, kind)
	return resp
}

func TestSessionStartThenSetAndCommit(t *testing.T) {
	s := newTestServer(t)
	client := startPipeConnection(t, s)

	startResp := roundTrip(t, client, &wire.Request{Operation: wire.OpSessionStart, Datastore: wire.DatastoreCandidate, UserName: "tester"})
	require.Equal(t, "OK", startResp.ResultCode)
	sid := startResp.SessionID
	require.NotZero(t, sid)

	xpath := "/example-module:top/enabled"
	setResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpSetItem, XPath: xpath, Value: valuePtrTest(yang.BoolValue(true))})
	require.Equal(t, "OK", setResp.ResultCode)

	getResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpGetItem, XPath: xpath})
	require.Equal(t, "OK", getResp.ResultCode)
	require.NotNil(t, getResp.Value)
	require.True(t, getResp.Value.Bool)

	commitResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpCommit})
	require.Equal(t, "OK", commitResp.ResultCode)
	require.Empty(t, commitResp.Errors)

	stopResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpSessionStop})
	require.Equal(t, "OK", stopResp.ResultCode)
}

func TestOperationOnUnknownSessionIsRejected(t *testing.T) {
	s := newTestServer(t)
	client := startPipeConnection(t, s)

	resp := roundTrip(t, client, &wire.Request{SessionID: 999, Operation: wire.OpGetItem, XPath: "/example-module:top/enabled"})
	require.Equal(t, "NotFound", resp.ResultCode)
}

func TestListSchemasReturnsInstalledModules(t *testing.T) {
	s := newTestServer(t)
	client := startPipeConnection(t, s)

	startResp := roundTrip(t, client, &wire.Request{Operation: wire.OpSessionStart, Datastore: wire.DatastoreRunning, UserName: "tester"})
	require.Equal(t, "OK", startResp.ResultCode)

	resp := roundTrip(t, client, &wire.Request{SessionID: startResp.SessionID, Operation: wire.OpListSchemas})
	require.Equal(t, "OK", resp.ResultCode)
	require.Len(t, resp.Schemas, 1)
	require.Equal(t, "example-module", resp.Schemas[0].ModuleName)
}

func TestMalformedRequestGetsRejectedWithoutClosingConnection(t *testing.T) {
	s := newTestServer(t)
	client := startPipeConnection(t, s)

	resp := roundTrip(t, client, &wire.Request{Operation: wire.OpGetItem}) // missing xpath
	require.Equal(t, "MalformedMessage", resp.ResultCode)

	startResp := roundTrip(t, client, &wire.Request{Operation: wire.OpSessionStart, Datastore: wire.DatastoreCandidate, UserName: "tester"})
	require.Equal(t, "OK", startResp.ResultCode)
}

func TestGetLastErrorsReturnsPriorOperationFailures(t *testing.T) {
	s := newTestServer(t)
	client := startPipeConnection(t, s)

	startResp := roundTrip(t, client, &wire.Request{Operation: wire.OpSessionStart, Datastore: wire.DatastoreCandidate, UserName: "tester"})
	require.Equal(t, "OK", startResp.ResultCode)
	sid := startResp.SessionID

	badResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpGetItem, XPath: "/example-module:top/missing"})
	require.Equal(t, "BadElement", badResp.ResultCode)

	lastResp := roundTrip(t, client, &wire.Request{SessionID: sid, Operation: wire.OpGetLastErrors})
	require.Equal(t, "OK", lastResp.ResultCode)
	require.Len(t, lastResp.LastErrors, 1)
	require.Equal(t, "/example-module:top/missing", lastResp.LastErrors[0].Path)
	require.Equal(t, "BadElement", lastResp.LastErrors[0].Code)
}

func valuePtrTest(v yang.Value) *yang.Value { return &v }
