package safety

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fcjr/sdburn/internal/command"
	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/device"
	"github.com/godbus/dbus/v5"
)

const (
	udisks2Service       = "org.freedesktop.UDisks2"
	udisks2BlockDevices  = "/org/freedesktop/UDisks2/block_devices/"
	udisks2FSUnmount     = "org.freedesktop.UDisks2.Filesystem.Unmount"
	udisks2ForceOptionID = "force"
)

// Unmounter releases a single mount.
type Unmounter interface {
	Unmount(ctx context.Context, m device.Mount) error
}

// NewUnmounter returns the unmount backend for method.
func NewUnmounter(method string, exec command.Executor) (Unmounter, error) {
	switch method {
	case "", config.UnmountCommand:
		return &CommandUnmounter{exec: exec}, nil
	case config.UnmountUDisks2:
		return NewUDisksUnmounter(), nil
	default:
		return nil, fmt.Errorf("unknown unmount method %q", method)
	}
}

// CommandUnmounter runs umount(8) on the mount point.
type CommandUnmounter struct {
	exec command.Executor
}

func NewCommandUnmounter(exec command.Executor) *CommandUnmounter {
	return &CommandUnmounter{exec: exec}
}

func (u *CommandUnmounter) Unmount(ctx context.Context, m device.Mount) error {
	if err := u.exec.Run(ctx, command.New("umount", m.Point)); err != nil {
		return fmt.Errorf("failed to unmount %s: %w", m.Point, err)
	}
	return nil
}

// busCaller invokes a method on a UDisks2 object.
type busCaller func(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error

// UDisksUnmounter asks UDisks2 over the system bus to unmount the filesystem
// of the mount's block device. It works without root for user mounts.
type UDisksUnmounter struct {
	call  busCaller
	Force bool
}

func NewUDisksUnmounter() *UDisksUnmounter {
	return &UDisksUnmounter{call: systemBusCall}
}

func (u *UDisksUnmounter) Unmount(ctx context.Context, m device.Mount) error {
	options := map[string]dbus.Variant{}
	if u.Force {
		options[udisks2ForceOptionID] = dbus.MakeVariant(true)
	}
	if err := u.call(ctx, blockObjectPath(m.Device), udisks2FSUnmount, options); err != nil {
		return fmt.Errorf("failed to unmount %s via udisks2: %w", m.Point, err)
	}
	return nil
}

// blockObjectPath maps /dev/sdb1 to /org/freedesktop/UDisks2/block_devices/sdb1.
func blockObjectPath(dev string) dbus.ObjectPath {
	return dbus.ObjectPath(udisks2BlockDevices + filepath.Base(dev))
}

func systemBusCall(ctx context.Context, path dbus.ObjectPath, method string, args ...any) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	return conn.Object(udisks2Service, path).CallWithContext(ctx, method, 0, args...).Err
}
