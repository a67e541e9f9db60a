// Package accesscontrol implements the Access Control component of spec
// §4.9: filesystem-permission checks evaluated against a session's
// effective credentials, and the privileged identity-switching wrapper
// used while the Persistence Manager writes under a caller's identity.
package accesscontrol

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/confd-io/confd/internal/protoerr"
)

// Op names the kind of access being checked.
type Op uint8

const (
	OpRead Op = iota
	OpWrite
)

// Credentials is the session's effective identity for a permission check.
type Credentials struct {
	UID uint32
	GID uint32
}

// CheckFilePermissions reduces to a filesystem permission check on path,
// evaluated against creds (spec §4.9 check_file_permissions).
func CheckFilePermissions(path string, creds Credentials, op Op) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		// A missing file is not itself a permission failure; callers that
		// require existence check that separately.
		return nil
	}
	if err != nil {
		return protoerr.Newf(protoerr.IO, err.Error())
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return protoerr.Newf(protoerr.Internal, "unable to read file ownership")
	}

	if creds.UID == 0 {
		return nil
	}

	mode := info.Mode().Perm()
	var bits os.FileMode
	switch {
	case stat.Uid == creds.UID:
		bits = (mode >> 6) & 0o7
	case stat.Gid == creds.GID:
		bits = (mode >> 3) & 0o7
	default:
		bits = mode & 0o7
	}

	needed := os.FileMode(0o4) // read
	if op == OpWrite {
		needed = 0o2
	}
	if bits&needed == 0 {
		return protoerr.Newf(protoerr.Unauthorized, "permission denied on "+path)
	}
	return nil
}

// CheckNodePermissions checks access to xpath by resolving it to its
// module's backing data file and delegating to CheckFilePermissions
// (spec §4.9 check_node_permissions); dataFilePath is supplied by the
// caller (internal/datamgr knows the module-to-file mapping).
func CheckNodePermissions(dataFilePath string, creds Credentials, op Op) error {
	return CheckFilePermissions(dataFilePath, creds, op)
}

// Identity is a scoped effective-identity switch: SetUserIdentity calls
// setresuid/setresgid, and Restore (deferred by the caller) unwinds them.
// Constructing one requires the process itself to be privileged
// (effective uid 0); a non-privileged process gets Unsupported, matching
// spec §4.9 ("otherwise a no-op with Unsupported returned").
type Identity struct {
	originalUID int
	originalGID int
	active      bool
}

// SetUserIdentity switches the process's effective uid/gid to creds,
// returning an Identity whose Restore undoes the switch.
//
// Go note: the setresuid/setresgid calls used here affect the whole
// process on Linux, not just the calling OS thread, so callers must
// serialize any code path that depends on this switch.
func SetUserIdentity(creds Credentials) (*Identity, error) {
	if os.Geteuid() != 0 {
		return nil, protoerr.Newf(protoerr.Unsupported, "identity switching requires a privileged process")
	}
	id := &Identity{originalUID: os.Geteuid(), originalGID: os.Getegid()}
	if err := unix.Setresuid(-1, int(creds.UID), -1); err != nil {
		return nil, protoerr.Newf(protoerr.Internal, "setresuid: "+err.Error())
	}
	if err := unix.Setresgid(-1, int(creds.GID), -1); err != nil {
		_ = unix.Setresuid(-1, id.originalUID, -1)
		return nil, protoerr.Newf(protoerr.Internal, "setresgid: "+err.Error())
	}
	id.active = true
	return id, nil
}

// Restore reverts the effective uid/gid set by SetUserIdentity. Safe to
// call on a nil or already-restored Identity.
func (id *Identity) Restore() error {
	if id == nil || !id.active {
		return nil
	}
	id.active = false
	if err := unix.Setresgid(-1, id.originalGID, -1); err != nil {
		return protoerr.Newf(protoerr.Internal, "restore setresgid: "+err.Error())
	}
	if err := unix.Setresuid(-1, id.originalUID, -1); err != nil {
		return protoerr.Newf(protoerr.Internal, "restore setresuid: "+err.Error())
	}
	return nil
}
