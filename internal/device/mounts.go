package device

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/disk"
)

// Mount is one mount table entry.
type Mount struct {
	Device string
	Point  string
	FSType string
}

// MountTable lists the current mounts.
type MountTable interface {
	Mounts(ctx context.Context) ([]Mount, error)
}

// SystemMounts reads the live mount table through gopsutil.
type SystemMounts struct{}

func (SystemMounts) Mounts(ctx context.Context) ([]Mount, error) {
	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to read mount table: %w", err)
	}

	mounts := make([]Mount, 0, len(parts))
	for _, p := range parts {
		mounts = append(mounts, Mount{
			Device: p.Device,
			Point:  p.Mountpoint,
			FSType: p.Fstype,
		})
	}
	return mounts, nil
}

// StaticMounts is a fixed mount table.
type StaticMounts []Mount

func (s StaticMounts) Mounts(context.Context) ([]Mount, error) {
	return s, nil
}

// belongsTo reports whether the mount source is disk itself or one of its
// partitions.
func belongsTo(source, disk string) bool {
	return source == disk || StripPartition(source) == disk
}

// MountsOf filters mounts down to those backed by disk or its partitions.
func MountsOf(mounts []Mount, disk string) []Mount {
	var res []Mount
	for _, m := range mounts {
		if belongsTo(m.Device, disk) {
			res = append(res, m)
		}
	}
	return res
}
