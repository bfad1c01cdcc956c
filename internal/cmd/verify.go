package cmd

import (
	"fmt"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <image-file> <device>",
	Short: "Check that a device holds an image",
	Long: `Compare the SHA-256 of the decompressed image with the same number of
bytes read from the start of the device.`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	imagePath, devicePath := args[0], args[1]

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	info, err := a.images.Inspect(ctx, imagePath)
	if err != nil {
		return err
	}
	size := info.DecompressedSize

	fmt.Printf("%sVerifying %s (%s) against %s...%s\n", Bold, devicePath, FormatBytes(size), imagePath, Reset)
	res, err := a.verifier.Verify(ctx, imagePath, devicePath, size)
	if err != nil {
		return fmt.Errorf("failed to verify: %w", err)
	}

	fmt.Printf("  image:  %s\n  device: %s\n", res.SourceSum, res.DeviceSum)
	if !res.Match {
		return &burnerr.Error{Kind: burnerr.ErrVerifyMismatch, Device: devicePath, Image: imagePath}
	}
	fmt.Printf("%s✓ Device matches image%s\n", Green, Reset)
	return nil
}
