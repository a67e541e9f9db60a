package persist

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatchSchemaDirReportsCreateAndRemove(t *testing.T) {
	dir := t.TempDir()

	type event struct {
		module    string
		installed bool
	}
	events := make(chan event, 8)

	w, err := WatchSchemaDir(dir, func(module string, installed bool) {
		events <- event{module, installed}
	})
	require.NoError(t, err)
	defer w.Close()

	path := filepath.Join(dir, "confd-system.yang")
	require.NoError(t, os.WriteFile(path, []byte("module confd-system {}"), 0o644))

	select {
	case e := <-events:
		require.Equal(t, "confd-system", e.module)
		require.True(t, e.installed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for create event")
	}

	require.NoError(t, os.Remove(path))

	select {
	case e := <-events:
		require.Equal(t, "confd-system", e.module)
		require.False(t, e.installed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remove event")
	}
}

func TestWatchSchemaDirIgnoresNonSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	events := make(chan string, 8)

	w, err := WatchSchemaDir(dir, func(module string, installed bool) {
		events <- module
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	select {
	case m := <-events:
		t.Fatalf("unexpected event for non-schema file: %s", m)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestModuleFromSchemaPath(t *testing.T) {
	module, ok := moduleFromSchemaPath("/tmp/schemas/confd-interfaces.yin")
	require.True(t, ok)
	require.Equal(t, "confd-interfaces", module)

	_, ok = moduleFromSchemaPath("/tmp/schemas/README.md")
	require.False(t, ok)
}
