package image

import (
	"fmt"
	"slices"
	"strings"
)

// Codec identifies the compression wrapping an image.
type Codec int

const (
	CodecNone Codec = iota
	CodecGzip
	CodecXZ
	CodecBzip2
	CodecZstd
)

var codecNames = map[Codec]string{
	CodecNone:  "none",
	CodecGzip:  "gzip",
	CodecXZ:    "xz",
	CodecBzip2: "bzip2",
	CodecZstd:  "zstd",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return fmt.Sprintf("codec(%d)", int(c))
}

// Compressed reports whether images of this codec need decoding.
func (c Codec) Compressed() bool {
	return c != CodecNone
}

// ParseCodec maps a codec name, as used in the config file, to a Codec.
func ParseCodec(name string) (Codec, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "gz":
		return CodecGzip, nil
	case "bz2":
		return CodecBzip2, nil
	case "zst":
		return CodecZstd, nil
	case "", "raw":
		return CodecNone, nil
	}
	for c, n := range codecNames {
		if n == name {
			return c, nil
		}
	}
	return CodecNone, fmt.Errorf("unknown codec %q", name)
}

// DefaultSuffixes is the built-in suffix table.
var DefaultSuffixes = map[string]Codec{
	".img.xz":  CodecXZ,
	".img.gz":  CodecGzip,
	".img.bz2": CodecBzip2,
	".img.zst": CodecZstd,
	".img":     CodecNone,
	".iso":     CodecNone,
}

type suffixEntry struct {
	suffix string
	codec  Codec
}

// CodecTable resolves a codec from a filename suffix. The longest matching
// suffix wins, so ".img.xz" beats ".xz".
type CodecTable struct {
	entries []suffixEntry
}

// NewCodecTable builds a table from DefaultSuffixes with overrides applied on
// top. Override values are codec names.
func NewCodecTable(overrides map[string]string) (CodecTable, error) {
	merged := make(map[string]Codec, len(DefaultSuffixes)+len(overrides))
	for s, c := range DefaultSuffixes {
		merged[s] = c
	}
	for s, name := range overrides {
		c, err := ParseCodec(name)
		if err != nil {
			return CodecTable{}, fmt.Errorf("suffix %q: %w", s, err)
		}
		s = strings.ToLower(s)
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		merged[s] = c
	}

	t := CodecTable{entries: make([]suffixEntry, 0, len(merged))}
	for s, c := range merged {
		t.entries = append(t.entries, suffixEntry{suffix: s, codec: c})
	}
	slices.SortFunc(t.entries, func(a, b suffixEntry) int {
		if d := len(b.suffix) - len(a.suffix); d != 0 {
			return d
		}
		return strings.Compare(a.suffix, b.suffix)
	})
	return t, nil
}

// DefaultCodecTable returns the built-in table.
func DefaultCodecTable() CodecTable {
	t, _ := NewCodecTable(nil)
	return t
}

// Lookup returns the codec for name and whether any suffix matched.
func (t CodecTable) Lookup(name string) (Codec, bool) {
	lower := strings.ToLower(name)
	for _, e := range t.entries {
		if strings.HasSuffix(lower, e.suffix) {
			return e.codec, true
		}
	}
	return CodecNone, false
}

// Suffixes lists the known suffixes, longest first.
func (t CodecTable) Suffixes() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.suffix
	}
	return out
}
