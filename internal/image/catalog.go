package image

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/spf13/afero"
)

// Catalog finds candidate image files in a directory.
type Catalog struct {
	fs     afero.Fs
	codecs CodecTable
}

func NewCatalog(fs afero.Fs, codecs CodecTable) *Catalog {
	return &Catalog{fs: fs, codecs: codecs}
}

// Find returns the regular files directly inside dir whose base name matches
// pattern, sorted by name.
func (c *Catalog) Find(dir, pattern string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return c.find(dir, func(name string) bool {
		ok, _ := filepath.Match(pattern, name)
		return ok
	})
}

// FindAll returns every file directly inside dir with a suffix from the codec
// table.
func (c *Catalog) FindAll(dir string) ([]string, error) {
	return c.find(dir, c.Known)
}

// Known reports whether name carries a suffix from the codec table.
func (c *Catalog) Known(name string) bool {
	_, ok := c.codecs.Lookup(name)
	return ok
}

func (c *Catalog) find(dir string, match func(name string) bool) ([]string, error) {
	fi, err := c.fs.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, &burnerr.Error{Kind: burnerr.ErrDirectoryNotFound, Reason: dir}
	case err != nil:
		return nil, &burnerr.Error{Kind: burnerr.ErrDirectoryNotFound, Reason: dir, Err: err}
	case !fi.IsDir():
		return nil, &burnerr.Error{Kind: burnerr.ErrDirectoryNotFound, Reason: dir + " is not a directory"}
	}

	entries, err := afero.ReadDir(c.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if !e.Mode().IsRegular() || !match(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
