package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fcjr/sdburn/internal/burn"
	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/device"
	"github.com/fcjr/sdburn/internal/image"
	"github.com/spf13/cobra"
)

var burnCmd = &cobra.Command{
	Use:   "burn [image-file]",
	Short: "Write a disk image to an SD card or USB drive",
	Long: `Interactive tool to safely write a disk image to removable storage.
Detects eligible SD cards and USB drives, unmounts them, writes the image
(decompressing gzip, xz, bzip2 and zstd on the fly) and verifies the result.

If no image file is specified, it looks for images in the configured
directory (the current directory by default).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBurn,
}

var burnFlags struct {
	device       string
	force        bool
	noVerify     bool
	allowMounted bool
	listDisks    bool
	retries      int
	blockSize    config.ByteSize
}

func init() {
	rootCmd.AddCommand(burnCmd)
	burnCmd.Flags().StringVarP(&burnFlags.device, "device", "d", "", "Target device path (e.g. /dev/sdb)")
	burnCmd.Flags().BoolVar(&burnFlags.force, "force", false, "Skip confirmation prompts (use with caution)")
	burnCmd.Flags().BoolVar(&burnFlags.noVerify, "no-verify", false, "Skip read-back verification")
	burnCmd.Flags().BoolVar(&burnFlags.allowMounted, "allow-mounted", false, "Write even if the device is mounted")
	burnCmd.Flags().BoolVar(&burnFlags.listDisks, "list-disks", false, "List eligible disks and exit")
	burnCmd.Flags().IntVar(&burnFlags.retries, "retries", 0, "Maximum write attempts (default from config)")
	burnCmd.Flags().Var(&burnFlags.blockSize, "block-size", "Write block size, e.g. 4M (default from config)")
}

func runBurn(cmd *cobra.Command, args []string) error {
	if runtime.GOOS != "linux" {
		return fmt.Errorf("burn command is currently only supported on Linux")
	}
	ctx := cmd.Context()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	if burnFlags.listDisks {
		return listEligible(cmd, a)
	}

	imagePath, err := findImageFile(a, args)
	if err != nil {
		return err
	}

	info, err := a.images.Inspect(ctx, imagePath)
	if err != nil {
		return err
	}
	printHeader(os.Stdout, info)

	dev, err := pickDevice(cmd, a)
	if err != nil {
		return err
	}

	opts := burnOptions(cmd)
	if burnFlags.force {
		opts.Confirm = func(string) bool { return true }
	} else {
		opts.Confirm = confirmErase
	}
	handler, _ := newProgressBar(info.DecompressedSize)
	opts.Progress = handler

	fmt.Printf("\n%sWriting image to %s...%s\n", Bold, dev.Path, Reset)
	op, err := a.writer.WriteInspected(ctx, info, dev, opts)
	if err != nil {
		if errors.Is(err, burnerr.ErrCancelled) {
			fmt.Printf("Operation cancelled.\n")
		}
		return fmt.Errorf("failed to burn image: %w", err)
	}

	avg := int64(0)
	if op.Elapsed.Seconds() > 0 {
		avg = int64(float64(op.BytesWritten) / op.Elapsed.Seconds())
	}
	fmt.Printf("%s✓ Wrote %s in %s (avg: %s/s, %d attempt(s))%s\n",
		Green, FormatBytes(op.BytesWritten), FormatDuration(op.Elapsed), FormatBytes(avg), op.Attempts, Reset)
	if op.DeviceChecksum != "" {
		fmt.Printf("%s✓ Verified sha256 %s%s\n", Green, op.SourceChecksum, Reset)
	}
	fmt.Printf("\n%s%s✅ Successfully burned image to %s!%s\n", Bold, Green, dev.Path, Reset)
	fmt.Printf("%sYou can now safely remove the device.%s\n", Green, Reset)
	return nil
}

// burnOptions layers command-line flags over the configured write options.
func burnOptions(cmd *cobra.Command) burn.Options {
	opts := burn.OptionsFromConfig(cfg)
	if cmd.Flags().Changed("retries") {
		opts.MaxRetries = burnFlags.retries
	}
	if cmd.Flags().Changed("block-size") {
		opts.BlockSize = int(burnFlags.blockSize)
	}
	if burnFlags.noVerify {
		opts.Verify = false
	}
	if burnFlags.allowMounted {
		opts.AllowMounted = true
	}
	return opts
}

func findImageFile(a *app, args []string) (string, error) {
	if len(args) > 0 {
		return filepath.Abs(args[0])
	}

	found, err := a.catalog.Find(cfg.Images.Dir, cfg.Images.Pattern)
	if err != nil {
		return "", err
	}
	var images []string
	for _, path := range found {
		if a.catalog.Known(path) {
			images = append(images, path)
		}
	}

	switch len(images) {
	case 0:
		return "", fmt.Errorf("no image files found in %s\n"+
			"Hint: specify an image file directly", cfg.Images.Dir)
	case 1:
		fmt.Printf("%sUsing found image file: %s%s\n", Green, images[0], Reset)
		return filepath.Abs(images[0])
	}

	fmt.Printf("Multiple image files found:\n")
	for i, path := range images {
		fmt.Printf("  %d. %s\n", i+1, filepath.Base(path))
	}
	choice, err := choose("image file", len(images))
	if err != nil {
		return "", err
	}
	return filepath.Abs(images[choice])
}

// pickDevice returns the --device target after checking it is eligible, or
// lets the user choose among the eligible devices.
func pickDevice(cmd *cobra.Command, a *app) (device.Device, error) {
	ctx := cmd.Context()

	if burnFlags.device != "" {
		dev, err := a.inspect.Inspect(ctx, burnFlags.device)
		if err != nil {
			return device.Device{}, err
		}
		if err := a.devices.Eligibility(ctx, dev, a.bounds()); err != nil {
			return device.Device{}, err
		}
		return dev, nil
	}

	fmt.Printf("%sDetecting available storage devices...%s\n", Bold, Reset)
	devices, err := a.devices.ListEligible(ctx, a.bounds())
	if err != nil {
		return device.Device{}, fmt.Errorf("failed to detect disks: %w", err)
	}
	if len(devices) == 0 {
		return device.Device{}, fmt.Errorf("no suitable removable storage devices found\n" +
			"Please insert an SD card or USB drive and try again")
	}

	displayDevices(os.Stdout, devices)

	if burnFlags.force {
		if len(devices) == 1 {
			return devices[0], nil
		}
		return device.Device{}, fmt.Errorf("multiple disks available, cannot use --force without --device")
	}
	choice, err := choose("a disk to burn to", len(devices))
	if err != nil {
		return device.Device{}, err
	}
	return devices[choice], nil
}

func listEligible(cmd *cobra.Command, a *app) error {
	devices, err := a.devices.ListEligible(cmd.Context(), a.bounds())
	if err != nil {
		return fmt.Errorf("failed to detect disks: %w", err)
	}
	if len(devices) == 0 {
		fmt.Printf("No removable storage devices found.\n")
		return nil
	}
	displayDevices(os.Stdout, devices)
	return nil
}

// imageSizeLabel renders a decompressed size, marking estimates with "~".
func imageSizeLabel(info image.Info) string {
	if info.SizeExact {
		return FormatBytes(info.DecompressedSize)
	}
	return "~" + FormatBytes(info.DecompressedSize)
}
