package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2*GiB, cfg.Device.MinSize)
	assert.Equal(t, 2000*GiB, cfg.Device.MaxSize)
	assert.False(t, cfg.Device.RemovableOnly)
	assert.Equal(t, 4*MiB, cfg.Write.BlockSize)
	assert.Equal(t, 3, cfg.Write.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Write.RetryDelay)
	assert.Equal(t, 3, cfg.Unmount.Attempts)
	assert.Equal(t, 2*time.Second, cfg.Unmount.Backoff)
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := Parse([]byte(`
device:
  min_size: 4GiB
  max_size: 64G
  removable_only: true
write:
  block_size: 8MiB
  max_retries: 5
  retry_delay: 1s
  verify: false
unmount:
  method: udisks2
images:
  codecs:
    .raw.xz: xz
`), &cfg)

	require.NoError(t, err)
	assert.Equal(t, 4*GiB, cfg.Device.MinSize)
	assert.Equal(t, 64*GiB, cfg.Device.MaxSize)
	assert.True(t, cfg.Device.ExcludeBoot, "unset keys keep defaults")
	assert.True(t, cfg.Device.RemovableOnly)
	assert.Equal(t, 8*MiB, cfg.Write.BlockSize)
	assert.Equal(t, 5, cfg.Write.MaxRetries)
	assert.Equal(t, time.Second, cfg.Write.RetryDelay)
	assert.False(t, cfg.Write.Verify)
	assert.Equal(t, UnmountUDisks2, cfg.Unmount.Method)
	assert.Equal(t, map[string]string{".raw.xz": "xz"}, cfg.Images.Codecs)
}

func TestParseRejectsInvalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"inverted_bounds": "device: {min_size: 8G, max_size: 4G}",
		"zero_retries":    "write: {max_retries: 0}",
		"tiny_block":      "write: {block_size: 100}",
		"bad_method":      "unmount: {method: eject}",
		"bad_size":        "device: {min_size: lots}",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			assert.Error(t, Parse([]byte(doc), &cfg))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	t.Run("missing_optional_file_uses_defaults", func(t *testing.T) {
		t.Parallel()

		cfg, err := Load(filepath.Join(dir, "absent.yaml"), false)

		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("missing_required_file_fails", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(dir, "absent.yaml"), true)

		assert.Error(t, err)
	})

	t.Run("reads_file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("write:\n  max_retries: 7\n"), 0o600))

		cfg, err := Load(path, true)

		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Write.MaxRetries)
	})
}

func TestParseSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want ByteSize
	}{
		{"512", 512},
		{"4K", 4 * KiB},
		{"4MiB", 4 * MiB},
		{"16G", 16 * GiB},
		{"2GB", 2 * GiB},
		{"1.5G", GiB + GiB/2},
		{" 2t ", 2 * TiB},
	}

	for _, tc := range cases {
		got, err := ParseSize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseSize("-1G")
	assert.Error(t, err)
}

func TestByteSizeYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	out, err := yaml.Marshal(struct {
		Size ByteSize `yaml:"size"`
	}{Size: 4 * MiB})

	require.NoError(t, err)
	assert.Equal(t, "size: 4MiB\n", string(out))
	assert.Equal(t, "1536", ByteSize(1536).String())
}
