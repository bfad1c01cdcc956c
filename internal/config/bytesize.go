package config

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ByteSize is a size in bytes that reads human sizes such as "4MiB", "2G" or
// "512K" from YAML. All units are powers of 1024.
type ByteSize uint64

const (
	KiB ByteSize = 1 << (10 * (iota + 1))
	MiB
	GiB
	TiB
)

func (b ByteSize) String() string {
	switch {
	case b >= TiB && b%TiB == 0:
		return fmt.Sprintf("%dTiB", b/TiB)
	case b >= GiB && b%GiB == 0:
		return fmt.Sprintf("%dGiB", b/GiB)
	case b >= MiB && b%MiB == 0:
		return fmt.Sprintf("%dMiB", b/MiB)
	case b >= KiB && b%KiB == 0:
		return fmt.Sprintf("%dKiB", b/KiB)
	default:
		return strconv.FormatUint(uint64(b), 10)
	}
}

func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	size, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = size
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return b.String(), nil
}

// Set and Type let ByteSize be used as a pflag value.
func (b *ByteSize) Set(s string) error {
	size, err := ParseSize(s)
	if err != nil {
		return err
	}
	*b = size
	return nil
}

func (*ByteSize) Type() string { return "size" }

// ParseSize parses sizes like "16", "1.5G", "4MiB" or "2GB".
func ParseSize(sizeStr string) (ByteSize, error) {
	s := strings.ToUpper(strings.TrimSpace(sizeStr))
	s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "I")

	var multiplier ByteSize = 1
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K':
			multiplier = KiB
		case 'M':
			multiplier = MiB
		case 'G':
			multiplier = GiB
		case 'T':
			multiplier = TiB
		}
		if multiplier != 1 {
			s = strings.TrimSpace(s[:n-1])
		}
	}

	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return ByteSize(u) * multiplier, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid size %q", sizeStr)
	}
	return ByteSize(f * float64(multiplier)), nil
}
