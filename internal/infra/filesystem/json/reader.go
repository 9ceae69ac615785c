package json

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/compose-network/farm-deployer/internal/infra/filesystem"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// Reader handles file reading operations
type Reader struct {
	fs billy.Filesystem
}

// NewReader creates a new reader rooted at fs
func NewReader(fs billy.Filesystem) *Reader {
	return &Reader{fs: fs}
}

// ReadJSON reads and unmarshals JSON from a file.
// A missing file is reported as filesystem.ErrNotExist.
func (r *Reader) ReadJSON(path string, target any) error {
	data, err := util.ReadFile(r.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read file '%s': %w", path, filesystem.ErrNotExist)
		}
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: failed to unmarshal JSON in '%s': %w", filesystem.ErrDecode, path, err)
	}

	return nil
}

// Exists reports whether path is present
func (r *Reader) Exists(path string) (bool, error) {
	_, err := r.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat '%s': %w", path, err)
	}
}
