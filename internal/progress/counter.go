package progress

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/shirou/gopsutil/v4/disk"
)

// Counter reports a device's cumulative bytes written. Only differences
// between readings are meaningful.
type Counter interface {
	BytesWritten(ctx context.Context) (uint64, error)
}

// DiskStats reads the kernel's per-device write counter through gopsutil.
// It counts bytes that reached the device, not bytes handed to write(2).
type DiskStats struct {
	name string
}

// NewDiskStats returns a counter for the block device at path.
func NewDiskStats(path string) *DiskStats {
	return &DiskStats{name: filepath.Base(path)}
}

func (d *DiskStats) BytesWritten(ctx context.Context) (uint64, error) {
	stats, err := disk.IOCountersWithContext(ctx, d.name)
	if err != nil {
		return 0, fmt.Errorf("failed to read io counters for %s: %w", d.name, err)
	}
	s, ok := stats[d.name]
	if !ok {
		return 0, fmt.Errorf("no io counters for %s", d.name)
	}
	return s.WriteBytes, nil
}

// AtomicCounter is fed by the writer itself. It is used where the kernel
// counter is unavailable, such as when the target is a regular file.
type AtomicCounter struct {
	n atomic.Uint64
}

func (c *AtomicCounter) Add(n int) {
	c.n.Add(uint64(n))
}

func (c *AtomicCounter) BytesWritten(context.Context) (uint64, error) {
	return c.n.Load(), nil
}
