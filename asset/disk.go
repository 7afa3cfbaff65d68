package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	DefaultPublicPrefix = "/uploads"
	// TempDir holds partial uploads under the root.
	TempDir = ".tmp"
)

// DiskProvider keeps assets as files in a single directory.
type DiskProvider struct {
	root   string
	prefix string
}

func NewDiskProvider(root, publicPrefix string) (*DiskProvider, error) {
	if root == "" {
		return nil, errors.New("asset root is required")
	}
	if publicPrefix == "" {
		publicPrefix = DefaultPublicPrefix
	}
	if err := os.MkdirAll(filepath.Join(root, TempDir), 0o755); err != nil {
		return nil, fmt.Errorf("create asset root: %w", err)
	}
	return &DiskProvider{root: root, prefix: publicPrefix}, nil
}

func (p *DiskProvider) Root() string { return p.root }

// Put writes to a temp file and hard-links it into place, so a reader never
// sees a partial file and an existing name is never replaced.
func (p *DiskProvider) Put(_ context.Context, key string, r io.Reader) error {
	dst, err := p.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Join(p.root, TempDir), "upload-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return err
	}
	return nil
}

func (p *DiskProvider) Delete(_ context.Context, key string) error {
	dst, err := p.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *DiskProvider) AccessPath(key string) string {
	return path.Join(p.prefix, key)
}

func (p *DiskProvider) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || key != filepath.Base(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(p.root, key), nil
}
