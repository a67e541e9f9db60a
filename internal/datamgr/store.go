package datamgr

import (
	"errors"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/confd-io/confd/internal/protoerr"
)

// fileStore reads and atomically writes the per-module data file described
// in spec §6 ("one per-module data file"). Writes go to a temp file in the
// same directory, fdatasync'd and renamed into place under an exclusive
// flock on a sidecar ".lock" file, so a crash mid-write never corrupts the
// previous, still-valid revision (spec §7 commit-atomicity requirement).
type fileStore struct {
	dir string
}

func newFileStore(dir string) *fileStore { return &fileStore{dir: dir} }

func (s *fileStore) path(module string) string {
	return filepath.Join(s.dir, module+".data.xml")
}

// Path exposes the module's backing data file path, for Access Control's
// check_node_permissions (spec §4.9), which checks permissions on that
// file rather than any in-memory representation.
func (s *fileStore) Path(module string) string {
	return s.path(module)
}

func (s *fileStore) lockPath(module string) string {
	return filepath.Join(s.dir, module+".data.lock")
}

// Load reads module's data file; ok is false if the file does not exist
// (an empty tree is the correct interpretation, per spec §4.5.1).
func (s *fileStore) Load(module string) (data []byte, ok bool, err error) {
	b, err := os.ReadFile(s.path(module))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// SaveAtomic writes data for module under an exclusive, non-blocking flock
// of the module's lock file, via write-to-temp-then-rename.
func (s *fileStore) SaveAtomic(module string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	lockFile, err := os.OpenFile(s.lockPath(module), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer lockFile.Close()

	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN) {
			return protoerr.Newf(protoerr.CommitFailed, "module data file is locked by another commit: "+s.lockPath(module))
		}
		return protoerr.Newf(protoerr.IO, "flock "+s.lockPath(module)+": "+err.Error())
	}
	defer unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)

	tmp, err := os.CreateTemp(s.dir, module+".data.*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path(module))
}
