package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/tagwatch/pkg/types"
)

// filePerm is the permission of written state files.
const filePerm os.FileMode = 0o644

// dirPerm is the permission of state directories created on save.
const dirPerm os.FileMode = 0o755

// FileStore keeps the state in a local JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a store for the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the state file. A missing file yields an empty state.
func (s *FileStore) Load(ctx context.Context) (types.GlobalState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.WithField("file", s.path).Debug("State file does not exist, starting empty")

			return types.GlobalState{}, nil
		}

		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	state, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w from %s: %w", ErrLoadFailed, s.path, err)
	}

	logrus.WithFields(logrus.Fields{
		"file":         s.path,
		"repositories": len(state),
	}).Debug("Loaded state file")

	return state, nil
}

// Save atomically replaces the state file.
//
// The document is written to a temporary file in the same directory and renamed over the
// target, so readers see either the old or the new document.
func (s *FileStore) Save(ctx context.Context, state types.GlobalState) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	data, err := marshal(state)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("%w: %w", ErrSaveFailed, err)
		}
	}

	if err := atomicwriter.WriteFile(s.path, data, filePerm); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}

	logrus.WithFields(logrus.Fields{
		"file":         s.path,
		"repositories": len(state),
	}).Debug("Saved state file")

	return nil
}

// String returns the file path.
func (s *FileStore) String() string {
	return "file://" + s.path
}
