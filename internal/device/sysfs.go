package device

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Topology resolves the driver topology path of a block device, e.g.
// "../devices/pci0000:00/0000:00:14.0/usb2/2-1/.../block/sdb".
type Topology interface {
	Path(name string) string
	Attr(name, attr string) string
}

// Sysfs reads topology and attributes from /sys/class/block.
type Sysfs struct {
	Fs   afero.Fs
	Root string
}

func NewSysfs() *Sysfs {
	return &Sysfs{Fs: afero.NewOsFs(), Root: "/sys"}
}

func (s *Sysfs) entry(name string) string {
	return filepath.Join(s.Root, "class", "block", baseName(name))
}

// Path returns the symlink target of the device's sysfs entry, or "" when it
// cannot be resolved.
func (s *Sysfs) Path(name string) string {
	lr, ok := s.Fs.(afero.LinkReader)
	if !ok {
		return ""
	}
	target, err := lr.ReadlinkIfPossible(s.entry(name))
	if err != nil {
		return ""
	}
	return target
}

// Attr reads a device attribute such as "removable" or "device/model".
func (s *Sysfs) Attr(name, attr string) string {
	data, err := afero.ReadFile(s.Fs, filepath.Join(s.entry(name), attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
