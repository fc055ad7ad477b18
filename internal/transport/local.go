package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/templui/transit/internal/file"
)

// Local copies files into a directory tree, for mounted volumes and tests.
type Local struct {
	root      string
	publicURL string
}

func NewLocal(root, publicURL string) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: local needs directory", ErrMissingCredential)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	return &Local{root: abs, publicURL: strings.TrimSuffix(publicURL, "/")}, nil
}

func (l *Local) Transport(ctx context.Context, f *file.File, dest Destination) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	body, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer body.Close()

	dir := filepath.Join(l.root, filepath.FromSlash(strings.Trim(dest.Folder, "/")))
	copied, err := file.Create(dir, f.Basename(), body, dest.Overwrite, f.Registry())
	if err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	if l.publicURL == "" {
		return copied.Path(), nil
	}
	rel, err := filepath.Rel(l.root, copied.Path())
	if err != nil {
		return "", err
	}
	return l.publicURL + "/" + filepath.ToSlash(rel), nil
}

func (l *Local) Delete(ctx context.Context, ref string) error {
	var target string
	switch {
	case l.publicURL != "" && strings.HasPrefix(ref, l.publicURL+"/"):
		target = filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(ref, l.publicURL+"/")))
	case filepath.IsAbs(ref):
		target = filepath.Clean(ref)
	default:
		target = filepath.Join(l.root, filepath.FromSlash(KeyFromReference(ref, "")))
	}

	rel, err := filepath.Rel(l.root, target)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, ref)
	}

	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
