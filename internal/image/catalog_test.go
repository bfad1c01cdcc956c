package image

import (
	"testing"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range []string{
		"/out/zeta.img.xz",
		"/out/alpha.img",
		"/out/beta.img.gz",
		"/out/notes.txt",
		"/out/ubuntu.iso",
		"/out/nested/deep.img",
		"/README",
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte("x"), 0o644))
	}
	require.NoError(t, fs.MkdirAll("/out/dir.img", 0o755))
	return NewCatalog(fs, DefaultCodecTable())
}

func TestFind(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	paths, err := c.Find("/out", "*.img*")
	require.NoError(t, err)
	assert.Equal(t, []string{"/out/alpha.img", "/out/beta.img.gz", "/out/zeta.img.xz"}, paths)

	paths, err = c.Find("/out", "*")
	require.NoError(t, err)
	assert.Len(t, paths, 5, "directories and nested files are skipped")

	paths, err = c.Find("/out", "*.qcow2")
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestFindErrors(t *testing.T) {
	t.Parallel()

	c := newTestCatalog(t)

	_, err := c.Find("/missing", "*")
	assert.ErrorIs(t, err, burnerr.ErrDirectoryNotFound)

	_, err = c.Find("/README", "*")
	assert.ErrorIs(t, err, burnerr.ErrDirectoryNotFound)

	_, err = c.Find("/out", "[")
	assert.Error(t, err)
}

func TestFindAll(t *testing.T) {
	t.Parallel()

	paths, err := newTestCatalog(t).FindAll("/out")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"/out/alpha.img",
		"/out/beta.img.gz",
		"/out/ubuntu.iso",
		"/out/zeta.img.xz",
	}, paths)
}

func TestCodecTable(t *testing.T) {
	t.Parallel()

	table, err := NewCodecTable(map[string]string{
		".xz":     "xz",
		"raw":     "none",
		".img.gz": "zstd",
	})
	require.NoError(t, err)

	cases := []struct {
		name  string
		codec Codec
		ok    bool
	}{
		{name: "sd.img.xz", codec: CodecXZ, ok: true},
		{name: "rootfs.xz", codec: CodecXZ, ok: true},
		{name: "disk.raw", codec: CodecNone, ok: true},
		{name: "odd.img.gz", codec: CodecZstd, ok: true},
		{name: "UPPER.IMG.BZ2", codec: CodecBzip2, ok: true},
		{name: "debian.iso", codec: CodecNone, ok: true},
		{name: "archive.tar", codec: CodecNone, ok: false},
	}
	for _, tc := range cases {
		codec, ok := table.Lookup(tc.name)
		assert.Equal(t, tc.codec, codec, tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
	}

	assert.Equal(t, ".img.bz2", table.Suffixes()[0], "longest suffix first")
}

func TestCodecTableLongestSuffixWins(t *testing.T) {
	t.Parallel()

	table, err := NewCodecTable(map[string]string{".gz": "none"})
	require.NoError(t, err)

	codec, _ := table.Lookup("os.img.gz")
	assert.Equal(t, CodecGzip, codec)
	codec, _ = table.Lookup("os.gz")
	assert.Equal(t, CodecNone, codec)
}

func TestNewCodecTableRejectsUnknownCodec(t *testing.T) {
	t.Parallel()

	_, err := NewCodecTable(map[string]string{".lz4": "lz4"})
	assert.ErrorContains(t, err, "lz4")
}

func TestCodecString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "xz", CodecXZ.String())
	assert.Equal(t, "codec(9)", Codec(9).String())
	assert.False(t, CodecNone.Compressed())
	assert.True(t, CodecZstd.Compressed())
}
