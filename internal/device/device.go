// Package device inspects, enumerates and classifies block devices and
// decides which of them are safe write targets.
package device

import "strings"

// Kind is the attachment class of a block device.
type Kind int

const (
	KindUnknown Kind = iota
	KindUSB
	KindSD
	KindSATA
	KindNVMe
)

func (k Kind) String() string {
	switch k {
	case KindUSB:
		return "USB"
	case KindSD:
		return "SD"
	case KindSATA:
		return "SATA"
	case KindNVMe:
		return "NVMe"
	default:
		return "Unknown"
	}
}

// Device is a point-in-time snapshot of a whole-disk block device. It is
// rebuilt on every inspection because device state changes between calls.
type Device struct {
	Path        string
	Name        string
	Vendor      string
	Model       string
	Transport   string
	FSType      string
	Label       string
	MountPoints []string
	Size        uint64
	Partitions  int
	Kind        Kind
	Removable   bool
}

func (d Device) Mounted() bool {
	return len(d.MountPoints) > 0
}

// RemovableMedia reports whether the kernel flags the device removable or it
// is attached over USB or as an SD card.
func (d Device) RemovableMedia() bool {
	return d.Removable || d.Kind == KindUSB || d.Kind == KindSD
}

// Description is the vendor and model joined, or the kernel name when both
// are unknown.
func (d Device) Description() string {
	desc := strings.TrimSpace(strings.TrimSpace(d.Vendor) + " " + strings.TrimSpace(d.Model))
	if desc == "" {
		return d.Name
	}
	return desc
}

// Entry is one result of enumeration, before full inspection.
type Entry struct {
	Path      string
	Transport string
	Size      uint64
}

// Bounds are the eligibility limits for write targets. Min and Max are both
// inclusive. RemovableOnly rejects fixed disks; USB and SD devices count as
// removable even when the kernel does not flag them.
type Bounds struct {
	Min           uint64
	Max           uint64
	ExcludeBoot   bool
	RemovableOnly bool
}
