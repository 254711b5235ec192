package storage

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/USEPA-clone/nsink/internal/checksum"
)

const tempPrefix = ".nsink-tmp-"

// FS is a Provider over a directory on the local disk.
type FS struct {
	root string
	fsys fs.FS
}

// NewFS opens the existing directory root.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: open root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: %s is not a directory", abs)
	}
	return &FS{root: abs, fsys: os.DirFS(abs)}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string { return f.root }

// resolve maps a slash-separated name below the root to a disk path. Names
// that are absolute or climb out of the root are rejected.
func (f *FS) resolve(name string) (string, error) {
	if name == "" || name == "." {
		return f.root, nil
	}
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("storage: %q is outside the library", name)
	}
	return filepath.Join(f.root, local), nil
}

// List finds every directory holding a manifest. Hidden directories are
// skipped.
func (f *FS) List() ([]BundleInfo, error) {
	var out []BundleInfo
	err := fs.WalkDir(f.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && p != "." && strings.HasPrefix(d.Name(), "."):
			return fs.SkipDir
		case d.IsDir() || d.Name() != ManifestFile:
			return nil
		}
		data, err := fs.ReadFile(f.fsys, p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, BundleInfo{
			Name:      path.Dir(p),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	slices.SortFunc(out, func(a, b BundleInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Read returns the contents of name. A missing file matches fs.ErrNotExist.
func (f *FS) Read(name string) ([]byte, error) {
	p, err := f.resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write replaces name with content, creating parent directories. Readers
// see either the old or the new file, never a partial one.
func (f *FS) Write(name string, content []byte) error {
	p, err := f.resolve(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := writeAtomic(p, content); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

func writeAtomic(dst string, content []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), tempPrefix+"*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, os.Remove(tmp.Name()))
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return errors.Join(err, tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

// Sub returns a provider confined to the existing directory dir.
func (f *FS) Sub(dir string) (Provider, error) {
	p, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}
	return NewFS(p)
}
