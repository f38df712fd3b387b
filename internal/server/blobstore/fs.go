package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/chunkvault/internal/common"
	"github.com/dmitrijs2005/chunkvault/internal/filex"
)

// FSStore keeps blobs as files under a root directory. It suits single-node
// deployments and local development.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	abs, err := filex.EnsureDir(root)
	if err != nil {
		return nil, fmt.Errorf("fs store: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// resolve maps a blob path to a file under root. Paths that would leave
// root are rejected.
func (s *FSStore) resolve(p string) (string, error) {
	rel := filepath.FromSlash(p)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("blob path %q: %w", p, common.ErrInvalidArgument)
	}
	return filepath.Join(s.root, rel), nil
}

func (s *FSStore) Put(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := filex.WriteAtomic(name, data); err != nil {
		return fmt.Errorf("put blob %s: %w", path, err)
	}
	return nil
}

func (s *FSStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", path, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", path, err)
	}
	return data, nil
}

// DeleteMany removes the files and any session directories left empty.
// Missing files count as deleted.
func (s *FSStore) DeleteMany(ctx context.Context, paths []string) error {
	var (
		failed []string
		errs   []error
	)
	dirs := map[string]struct{}{}

	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			failed = append(failed, p)
			errs = append(errs, err)
			continue
		}
		name, err := s.resolve(p)
		if err == nil {
			err = os.Remove(name)
			dirs[filepath.Dir(name)] = struct{}{}
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			failed = append(failed, p)
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}

	for dir := range dirs {
		filex.RemoveEmptyParents(dir, s.root)
	}

	if len(failed) > 0 {
		return &DeleteError{Failed: failed, Err: errors.Join(errs...)}
	}
	return nil
}
