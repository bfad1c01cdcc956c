package device

import (
	"context"
	"fmt"
	"slices"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/fcjr/sdburn/internal/command"
)

// Inspector queries the attributes of individual block devices.
type Inspector struct {
	exec     command.Executor
	mounts   MountTable
	topology Topology
}

func NewInspector(exec command.Executor, mounts MountTable, topology Topology) *Inspector {
	return &Inspector{exec: exec, mounts: mounts, topology: topology}
}

// Inspect returns a fresh snapshot of the whole disk at path. It fails with
// burnerr.ErrDeviceNotFound when path is not a block device and with
// burnerr.ErrDeviceUnsuitable when it is a partition rather than a disk.
func (i *Inspector) Inspect(ctx context.Context, path string) (Device, error) {
	out, err := runLsblk(ctx, i.exec, lsblkInspect(path))
	if err != nil {
		return Device{}, &burnerr.Error{Kind: burnerr.ErrDeviceNotFound, Device: path, Err: err}
	}
	if len(out.BlockDevices) == 0 {
		return Device{}, &burnerr.Error{Kind: burnerr.ErrDeviceNotFound, Device: path}
	}

	d := out.BlockDevices[0]
	if d.Type != typeDisk {
		return Device{}, burnerr.Unsuitable(path, fmt.Sprintf("not a whole disk (type %s)", d.Type))
	}

	dev := Device{
		Path:      d.devPath(),
		Name:      d.Name,
		Size:      uint64(d.Size),
		Vendor:    d.Vendor,
		Model:     d.Model,
		Transport: d.Tran,
		FSType:    d.FSType,
		Label:     d.Label,
		Removable: bool(d.RM),
	}
	if dev.Vendor == "" {
		dev.Vendor = i.topology.Attr(d.Name, "device/vendor")
	}
	if dev.Model == "" {
		dev.Model = i.topology.Attr(d.Name, "device/model")
	}

	var points []string
	d.walk(nil, func(n lsblkDevice, _ []lsblkDevice) bool {
		if n.MountPoint != "" {
			points = append(points, n.MountPoint)
		}
		return false
	})
	for _, child := range d.Children {
		if child.Type != typePart {
			continue
		}
		dev.Partitions++
		if dev.FSType == "" {
			dev.FSType = child.FSType
			dev.Label = child.Label
		}
	}

	mounts, err := i.mounts.Mounts(ctx)
	if err != nil {
		return Device{}, err
	}
	for _, m := range MountsOf(mounts, dev.Path) {
		points = append(points, m.Point)
	}
	dev.MountPoints = compactSorted(points)

	dev.Kind = Classify(dev.Name, i.topology.Path(dev.Name), dev.Transport)
	return dev, nil
}

// MountPoints lists where path or any of its partitions is mounted.
func (i *Inspector) MountPoints(ctx context.Context, path string) ([]string, error) {
	mounts, err := i.mounts.Mounts(ctx)
	if err != nil {
		return nil, err
	}

	var points []string
	for _, m := range MountsOf(mounts, StripPartition(path)) {
		points = append(points, m.Point)
	}
	return compactSorted(points), nil
}

func (i *Inspector) IsMounted(ctx context.Context, path string) (bool, error) {
	points, err := i.MountPoints(ctx, path)
	return len(points) > 0, err
}

// IsBootDevice reports whether path hosts a partition mounted at / or /boot,
// or is the disk backing the root filesystem. Both checks are needed because
// the root mount may name a partition while callers pass the bare disk.
func (i *Inspector) IsBootDevice(ctx context.Context, path string) (bool, error) {
	disk := StripPartition(path)

	mounts, err := i.mounts.Mounts(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range mounts {
		if isBootMountPoint(m.Point) && belongsTo(m.Device, disk) {
			return true, nil
		}
	}

	root, err := i.rootDevice(ctx, mounts)
	if err != nil {
		return false, err
	}
	return root != "" && root == disk, nil
}

// RootDevice returns the whole disk backing the root filesystem, or "" if it
// cannot be determined.
func (i *Inspector) RootDevice(ctx context.Context) (string, error) {
	mounts, err := i.mounts.Mounts(ctx)
	if err != nil {
		return "", err
	}
	return i.rootDevice(ctx, mounts)
}

func (i *Inspector) rootDevice(ctx context.Context, mounts []Mount) (string, error) {
	for _, m := range mounts {
		if m.Point == "/" && isDiskName(baseName(StripPartition(m.Device))) {
			return StripPartition(m.Device), nil
		}
	}

	// /dev/root, device-mapper and overlay sources: lsblk resolves the real
	// device tree from major:minor numbers.
	tree, err := runLsblk(ctx, i.exec, lsblkTree())
	if err != nil {
		return "", err
	}
	for _, top := range tree.BlockDevices {
		found := top.walk(nil, func(n lsblkDevice, _ []lsblkDevice) bool {
			return n.MountPoint == "/"
		})
		if found {
			return top.devPath(), nil
		}
	}
	return "", nil
}

func isDiskName(name string) bool {
	return sdName.MatchString(name) || nvmeName.MatchString(name) || sataName.MatchString(name)
}

func compactSorted(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	slices.Sort(s)
	return slices.Compact(s)
}
