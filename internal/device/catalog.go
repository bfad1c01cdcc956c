package device

import (
	"context"
	"fmt"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/fcjr/sdburn/internal/command"
	"github.com/rs/zerolog/log"
)

// Catalog enumerates disks and filters them down to eligible write targets.
type Catalog struct {
	exec      command.Executor
	inspector *Inspector
}

func NewCatalog(exec command.Executor, inspector *Inspector) *Catalog {
	return &Catalog{exec: exec, inspector: inspector}
}

// Enumerate lists whole disks only; partitions are never returned.
func (c *Catalog) Enumerate(ctx context.Context) ([]Entry, error) {
	out, err := runLsblk(ctx, c.exec, lsblkEnumerate())
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, d := range out.BlockDevices {
		if d.Type != typeDisk {
			continue
		}
		entries = append(entries, Entry{
			Path:      d.devPath(),
			Size:      uint64(d.Size),
			Transport: d.Tran,
		})
	}
	return entries, nil
}

// Classify determines the kind of the device at path given its transport hint.
func (c *Catalog) Classify(path, transport string) Kind {
	return Classify(path, c.inspector.topology.Path(baseName(path)), transport)
}

// Eligibility returns nil if dev is an acceptable write target, or an
// burnerr.ErrDeviceUnsuitable error naming the reason. A failed boot-device
// lookup makes the device ineligible.
func (c *Catalog) Eligibility(ctx context.Context, dev Device, b Bounds) error {
	switch {
	case IsPseudo(dev.Path):
		return burnerr.Unsuitable(dev.Path, "virtual device")
	case dev.Size < b.Min:
		return burnerr.Unsuitable(dev.Path, fmt.Sprintf("too small (%d < %d bytes)", dev.Size, b.Min))
	case dev.Size > b.Max:
		return burnerr.Unsuitable(dev.Path, fmt.Sprintf("too large (%d > %d bytes)", dev.Size, b.Max))
	case b.RemovableOnly && !dev.RemovableMedia():
		return burnerr.Unsuitable(dev.Path, "fixed disk")
	}

	if b.ExcludeBoot {
		boot, err := c.inspector.IsBootDevice(ctx, dev.Path)
		if err != nil {
			e := burnerr.Unsuitable(dev.Path, "cannot determine boot device")
			e.Err = err
			return e
		}
		if boot {
			return burnerr.Unsuitable(dev.Path, "boot device")
		}
	}
	return nil
}

func (c *Catalog) IsEligible(ctx context.Context, dev Device, b Bounds) bool {
	err := c.Eligibility(ctx, dev, b)
	if err != nil {
		log.Debug().Err(err).Str("device", dev.Path).Msg("device not eligible")
	}
	return err == nil
}

// List inspects every disk. Disks that vanish or fail inspection between
// enumeration and inspection are skipped.
func (c *Catalog) List(ctx context.Context) ([]Device, error) {
	entries, err := c.Enumerate(ctx)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(entries))
	for _, e := range entries {
		dev, err := c.inspector.Inspect(ctx, e.Path)
		if err != nil {
			log.Warn().Err(err).Str("device", e.Path).Msg("skipping device")
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func (c *Catalog) ListEligible(ctx context.Context, b Bounds) ([]Device, error) {
	devices, err := c.List(ctx)
	if err != nil {
		return nil, err
	}

	var eligible []Device
	for _, dev := range devices {
		if c.IsEligible(ctx, dev, b) {
			eligible = append(eligible, dev)
		}
	}
	return eligible, nil
}
