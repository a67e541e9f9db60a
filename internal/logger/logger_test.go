package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	output = &buf
	useColor = false
	mu.Unlock()
	require.NoError(t, Init(Config{Level: "DEBUG", Format: "json"}))

	Info("hello", "session_id", uint32(7))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "hello", line["msg"])
	require.EqualValues(t, 7, line["session_id"])
}

func TestSetLevel_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	output = &buf
	useColor = false
	mu.Unlock()
	require.NoError(t, Init(Config{Level: "WARN", Format: "text"}))

	Debug("should not appear")
	Warn("should appear")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "should appear")
}

func TestWithCtx_InjectsFields(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	output = &buf
	useColor = false
	mu.Unlock()
	require.NoError(t, Init(Config{Level: "DEBUG", Format: "text"}))

	ctx := WithSession(WithConnection(context.Background(), 42), 9)
	InfoCtx(ctx, "edit applied")

	out := buf.String()
	require.True(t, strings.Contains(out, "conn_id=42"))
	require.True(t, strings.Contains(out, "session_id=9"))
}
