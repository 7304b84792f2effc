package stores

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"community.io/pinboard/common/logging"
	"community.io/pinboard/common/retry"
	cst "community.io/pinboard/constants"
	se "community.io/pinboard/errors"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
	// bound on create attempts when concurrent writers keep claiming the resolved name first
	maxCreateRetries = 16
)

// FileStore vends scoped byte level access to the data directory tree
type FileStore interface {
	// EnsureDirectories creates the data root and its subdirectories. It is idempotent
	EnsureDirectories() *se.Err
	// WriteUnique writes data to path when overwrite is set. Otherwise data lands on a fresh name derived
	// from path's basename; the path actually written is returned and is the only record of where data went.
	WriteUnique(path string, data []byte, overwrite bool) (string, *se.Err)
	ReadBytes(path string) ([]byte, *se.Err)
	// ListEntries returns the names of dir's entries. An existing empty dir yields no names and no error
	ListEntries(dir string) ([]string, *se.Err)
	Stat(path string) (fs.FileInfo, *se.Err)
	Open(path string) (io.ReadSeekCloser, *se.Err)
	Close() *se.Err
}

// Dirs describes the data directory tree
type Dirs struct {
	Root    string
	Pins    string
	Uploads string
	// Extra holds additional directories to create alongside, e.g. the generated feeds directory
	Extra []string
}

// DirsUnder lays out the standard tree below root. extra names are resolved relative to root.
func DirsUnder(root string, extra ...string) Dirs {
	d := Dirs{
		Root:    root,
		Pins:    filepath.Join(root, cst.PinsDirName),
		Uploads: filepath.Join(root, cst.UploadsDirName),
	}
	for _, e := range extra {
		d.Extra = append(d.Extra, filepath.Join(root, e))
	}
	return d
}

func (d Dirs) all() []string {
	return append([]string{d.Root, d.Pins, d.Uploads}, d.Extra...)
}

// LocalFileStore implements FileStore backed by local file system
type LocalFileStore struct {
	dirs Dirs
}

func NewLocalFileStore(dirs Dirs) *LocalFileStore {
	return &LocalFileStore{dirs: dirs}
}

func (s *LocalFileStore) EnsureDirectories() *se.Err {
	for _, dir := range s.dirs.all() {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			logging.WithFuncName().WithError(err).WithField("dir", dir).Error("error creating data directory")
			return se.NewIO(fmt.Sprintf("error creating directory %s", dir)).WithCause(err)
		}
	}
	return nil
}

func (s *LocalFileStore) WriteUnique(path string, data []byte, overwrite bool) (string, *se.Err) {
	if overwrite {
		if err := replaceFile(path, data); err != nil {
			return "", fsErr(fmt.Sprintf("error writing %s", path), err)
		}
		return path, nil
	}
	return createUnique(path, data)
}

// createUnique resolves a free name and claims it with O_EXCL. Losing the claim to a concurrent writer
// sends it back to resolution.
func createUnique(path string, data []byte) (string, *se.Err) {
	clog := logging.WithFuncName().WithField("path", path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var actual string
	var failure *se.Err
	err := retry.Retry(func() error {
		candidate, err := UniquePath(path, base)
		if err != nil {
			failure = err
			return err
		}
		if cerr := createExclusive(candidate, data); cerr != nil {
			if errors.Is(cerr, fs.ErrExist) {
				clog.WithField("candidate", candidate).Debug("lost race on candidate name, resolving again")
				return cerr
			}
			failure = fsErr(fmt.Sprintf("error writing %s", candidate), cerr)
			return failure
		}
		actual = candidate
		return nil
	},
		retry.WithMaxAttempts(maxCreateRetries),
		retry.WithBaseDelay(time.Millisecond),
		retry.WithJitter(0.5),
		retry.WithRetryOn(func(err error) bool { return errors.Is(err, fs.ErrExist) }),
	)
	if err == nil {
		return actual, nil
	}
	if failure != nil {
		return "", failure
	}
	clog.WithError(err).Error("gave up claiming a unique name")
	return "", se.NewIO(fmt.Sprintf("could not claim a unique name for %s", path)).WithCause(err)
}

// createExclusive writes data to a file that must not exist yet. A failed write removes the file.
func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

// replaceFile writes data to a hidden temp file next to path and renames it over path, so readers see
// either the old or the new content
func replaceFile(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), "."+ksuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, filePerm); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *LocalFileStore) ReadBytes(path string) ([]byte, *se.Err) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fsErr(fmt.Sprintf("error reading %s", path), err)
	}
	return b, nil
}

func (s *LocalFileStore) ListEntries(dir string) ([]string, *se.Err) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fsErr(fmt.Sprintf("error listing %s", dir), err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (s *LocalFileStore) Stat(path string) (fs.FileInfo, *se.Err) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fsErr(fmt.Sprintf("error inspecting %s", path), err)
	}
	return info, nil
}

func (s *LocalFileStore) Open(path string) (io.ReadSeekCloser, *se.Err) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fsErr(fmt.Sprintf("error opening %s", path), err)
	}
	return f, nil
}

func (s *LocalFileStore) Close() *se.Err {
	return nil
}

// fsErr classifies an OS error, keeping it as the cause so callers can still match fs.ErrNotExist
func fsErr(msg string, err error) *se.Err {
	if errors.Is(err, fs.ErrNotExist) {
		return se.NewNotFound(msg).WithCause(err)
	}
	return se.NewIO(msg).WithCause(err)
}
