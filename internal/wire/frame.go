// Package wire implements the framing and tagged-record codec of the local
// stream-socket protocol: a 4-byte big-endian length prefix followed by a
// JSON-encoded Request, Response, or Notification.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/confd-io/confd/internal/bufpool"
	"github.com/confd-io/confd/internal/protoerr"
)

// DefaultMaxMsgSize is the default bound on a single frame's payload
// length. A frame whose declared length exceeds the bound in force is
// MalformedMessage and the connection is closed.
const DefaultMaxMsgSize = 16 << 20

// ReadFrame reads one length-prefixed frame from r, using pool for the
// payload buffer. The caller must call bufpool.Put on the returned slice
// once done decoding it.
func ReadFrame(r io.Reader, pool *bufpool.Pool, maxMsgSize int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, protoerr.Newf(protoerr.MalformedMessage, "zero-length frame")
	}
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMsgSize
	}
	if int(length) > maxMsgSize {
		return nil, protoerr.Newf(protoerr.MalformedMessage, fmt.Sprintf("frame of %d bytes exceeds max %d", length, maxMsgSize))
	}

	buf := pool.Get(int(length))
	if _, err := io.ReadFull(r, buf); err != nil {
		pool.Put(buf)
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload to w prefixed with its 4-byte big-endian
// length. payload must not exceed maxMsgSize.
func WriteFrame(w io.Writer, payload []byte, maxMsgSize int) error {
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMsgSize
	}
	if len(payload) == 0 || len(payload) > maxMsgSize {
		return protoerr.Newf(protoerr.MalformedMessage, fmt.Sprintf("refusing to send frame of %d bytes", len(payload)))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
