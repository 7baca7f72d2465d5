// Package blob stores uploaded proof files on local disk.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/warp/placement-engine/placement"
)

// ErrInvalidRef is returned for references that do not name a file in the
// store's directory.
var ErrInvalidRef = errors.New("invalid file reference")

// Local keeps each blob as one file under Dir. References are bare file
// names, so stored paths never leave Dir.
type Local struct {
	Dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &Local{Dir: dir}, nil
}

// Store copies r to a new file and returns its reference. The suggested
// name is kept as a readable suffix after a random prefix.
func (l *Local) Store(ctx context.Context, r io.Reader, suggestedName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ref := uuid.NewString() + "-" + sanitize(suggestedName)

	f, err := os.OpenFile(filepath.Join(l.Dir, ref), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to save file: %w", err)
	}
	return ref, nil
}

// Retrieve opens the blob behind ref. A missing file reports
// placement.ErrProofNotFound.
func (l *Local) Retrieve(ctx context.Context, ref string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	f, err := os.Open(filepath.Join(l.Dir, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", placement.ErrProofNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || strings.Trim(b.String(), ".") == "" {
		return "file"
	}
	return b.String()
}

var _ placement.FileStore = (*Local)(nil)
