package accesscontrol

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/confd-io/confd/internal/protoerr"
	"github.com/stretchr/testify/require"
)

func TestCheckFilePermissionsMissingFileIsOK(t *testing.T) {
	err := CheckFilePermissions(filepath.Join(t.TempDir(), "missing"), Credentials{UID: 1000, GID: 1000}, OpRead)
	require.NoError(t, err)
}

func TestCheckFilePermissionsRootBypassesChecks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o000))

	err := CheckFilePermissions(path, Credentials{UID: 0, GID: 0}, OpWrite)
	require.NoError(t, err)
}

func TestCheckFilePermissionsDeniesOtherWithoutReadBit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	err := CheckFilePermissions(path, Credentials{UID: 99999, GID: 99999}, OpRead)
	require.Error(t, err)
	require.Equal(t, protoerr.Unauthorized, protoerr.CodeOf(err))
}

func TestSetUserIdentityUnsupportedWhenUnprivileged(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("test assumes an unprivileged process")
	}
	_, err := SetUserIdentity(Credentials{UID: 1000, GID: 1000})
	require.Error(t, err)
	require.Equal(t, protoerr.Unsupported, protoerr.CodeOf(err))
}
