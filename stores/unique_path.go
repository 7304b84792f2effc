package stores

import (
	"fmt"
	"os"
	"path/filepath"

	se "community.io/pinboard/errors"
)

// UniquePath returns desired when nothing exists there. Otherwise it probes base-0, base-1, ... carrying
// desired's extension, in desired's directory, and returns the first free candidate. The answer is only
// valid for the directory snapshot it was computed against.
func UniquePath(desired, base string) (string, *se.Err) {
	taken, err := pathTaken(desired)
	if err != nil {
		return "", err
	}
	if !taken {
		return desired, nil
	}
	dir, ext := filepath.Dir(desired), filepath.Ext(desired)
	for i := 0; ; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", base, i, ext))
		taken, err := pathTaken(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

// pathTaken uses Lstat so that a dangling symlink still counts as taken, matching O_EXCL semantics
func pathTaken(path string) (bool, *se.Err) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, se.NewIO(fmt.Sprintf("error checking whether %s exists", path)).WithCause(err)
	}
}
