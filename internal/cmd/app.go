package cmd

import (
	"fmt"

	"github.com/fcjr/sdburn/internal/burn"
	"github.com/fcjr/sdburn/internal/command"
	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/image"
	"github.com/fcjr/sdburn/internal/safety"
	"github.com/fcjr/sdburn/internal/verify"
	"github.com/spf13/afero"
)

// app wires the components for one command invocation.
type app struct {
	cfg      config.Config
	devices  *device.Catalog
	inspect  *device.Inspector
	images   *image.Inspector
	catalog  *image.Catalog
	gate     *safety.Gate
	verifier *verify.Verifier
	writer   *burn.Writer
}

func newApp(cfg config.Config) (*app, error) {
	fs := afero.NewOsFs()
	exec := &command.RealExecutor{}

	codecs, err := image.NewCodecTable(cfg.Images.Codecs)
	if err != nil {
		return nil, fmt.Errorf("invalid codec table: %w", err)
	}

	unmounter, err := safety.NewUnmounter(cfg.Unmount.Method, exec)
	if err != nil {
		return nil, err
	}

	mounts := device.SystemMounts{}
	inspector := device.NewInspector(exec, mounts, device.NewSysfs())
	images := image.NewInspector(fs, codecs)
	gate := safety.NewGate(mounts, unmounter, safety.NewProcessEvictor(), cfg.Unmount)
	verifier := verify.New(fs, images)

	return &app{
		cfg:      cfg,
		devices:  device.NewCatalog(exec, inspector),
		inspect:  inspector,
		images:   images,
		catalog:  image.NewCatalog(fs, codecs),
		gate:     gate,
		verifier: verifier,
		writer:   burn.NewWriter(images, gate, verifier, burn.OpenDevice(fs)),
	}, nil
}

func (a *app) bounds() device.Bounds {
	return device.Bounds{
		Min:           uint64(a.cfg.Device.MinSize),
		Max:           uint64(a.cfg.Device.MaxSize),
		ExcludeBoot:   a.cfg.Device.ExcludeBoot,
		RemovableOnly: a.cfg.Device.RemovableOnly,
	}
}
