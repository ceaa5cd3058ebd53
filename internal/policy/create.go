package policy

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrExists is returned by CreateExclusive when something already occupies
// the target path, including a file created by a concurrent writer after the
// gate's check.
var ErrExists = errors.New("path already exists")

// CreateExclusive opens path for writing only if nothing exists there yet.
// Missing parent directories are created. Combined with a write_new check this
// makes check-then-create atomic per path.
func CreateExclusive(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, path)
		}
		return nil, err
	}
	return f, nil
}

// WriteExclusive writes data to a file that must not exist yet. A partially
// written file is removed, since it was created by this call.
func WriteExclusive(path string, data []byte) error {
	f, err := CreateExclusive(path)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
