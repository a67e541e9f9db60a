package wire

import (
	"bytes"
	"testing"

	"github.com/confd-io/confd/internal/bufpool"
	"github.com/confd-io/confd/internal/protoerr"
	"github.com/confd-io/confd/internal/yang"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	req := &Request{SessionID: 7, Operation: OpGetItem, XPath: "/ietf-interfaces:interfaces"}
	payload, err := EncodeRequest(req)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, payload, DefaultMaxMsgSize))

	pool := bufpool.NewPool(0, 0, 0)
	got, err := ReadFrame(&buf, pool, DefaultMaxMsgSize)
	require.NoError(t, err)

	kind, decoded, _, _, err := Decode(got)
	require.NoError(t, err)
	require.Equal(t, KindRequest, kind)
	require.Equal(t, req.SessionID, decoded.SessionID)
	require.Equal(t, req.XPath, decoded.XPath)
}

func TestReadFrameZeroLengthIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0})
	pool := bufpool.NewPool(0, 0, 0)
	_, err := ReadFrame(&buf, pool, DefaultMaxMsgSize)
	require.Error(t, err)
	require.Equal(t, protoerr.MalformedMessage, protoerr.CodeOf(err))
}

func TestReadFrameOversizeIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 5})
	buf.WriteString("abcde")
	pool := bufpool.NewPool(0, 0, 0)
	_, err := ReadFrame(&buf, pool, 4)
	require.Error(t, err)
	require.Equal(t, protoerr.MalformedMessage, protoerr.CodeOf(err))
}

func TestCheckWellFormedRejectsMissingXPath(t *testing.T) {
	err := CheckWellFormed(&Request{Operation: OpGetItem})
	require.Error(t, err)
	require.Equal(t, protoerr.MalformedMessage, protoerr.CodeOf(err))
}

func TestCheckWellFormedRejectsBadDirection(t *testing.T) {
	err := CheckWellFormed(&Request{Operation: OpMoveItem, XPath: "/x:y", Direction: "sideways"})
	require.Error(t, err)
}

func TestCheckWellFormedAcceptsValidSessionStart(t *testing.T) {
	err := CheckWellFormed(&Request{Operation: OpSessionStart, Datastore: DatastoreCandidate})
	require.NoError(t, err)
}

func TestCheckWellFormedAcceptsGetLastErrors(t *testing.T) {
	err := CheckWellFormed(&Request{SessionID: 1, Operation: OpGetLastErrors})
	require.NoError(t, err)
}

func TestDecodeRejectsUnknownPayload(t *testing.T) {
	_, _, _, _, err := Decode([]byte("not json"))
	require.Error(t, err)
	require.Equal(t, protoerr.MalformedMessage, protoerr.CodeOf(err))
}

func TestValueJSONRoundTrip(t *testing.T) {
	v := yang.BoolValue(true)
	v.XPath = "/ietf-interfaces:interfaces/interface[name='eth0']/enabled"
	resp := &Response{SessionID: 1, Operation: OpGetItem, ResultCode: "OK", Value: &v}
	payload, err := EncodeResponse(resp)
	require.NoError(t, err)

	kind, _, decoded, _, err := Decode(payload)
	require.NoError(t, err)
	require.Equal(t, KindResponse, kind)
	require.NotNil(t, decoded.Value)
	require.True(t, decoded.Value.Bool)
	require.Equal(t, v.XPath, decoded.Value.XPath)
}
