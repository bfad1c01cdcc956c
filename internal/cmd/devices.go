package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fcjr/sdburn/internal/burnerr"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List storage devices that can be written to",
	Long: `List removable storage devices within the configured size bounds.
With --all every whole-disk device is shown along with the reason it is
not a valid target.`,
	Args: cobra.NoArgs,
	RunE: runDevices,
}

func init() {
	rootCmd.AddCommand(devicesCmd)
	devicesCmd.Flags().Bool("all", false, "Show ineligible devices and why")
}

func runDevices(cmd *cobra.Command, _ []string) error {
	all, _ := cmd.Flags().GetBool("all")

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	if !all {
		return listEligible(cmd, a)
	}

	ctx := cmd.Context()
	devices, err := a.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to detect disks: %w", err)
	}
	if len(devices) == 0 {
		fmt.Printf("No storage devices found.\n")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n%sStorage devices:%s\n", Bold, Reset)
	for _, d := range devices {
		err := a.devices.Eligibility(ctx, d, a.bounds())
		var be *burnerr.Error
		switch {
		case err == nil:
			fmt.Printf("  %s✓%s %s\n", Green, Reset, deviceLine(d))
		case errors.As(err, &be) && be.Reason != "":
			fmt.Printf("  %s✗%s %s %s[%s]%s\n", Red, Reset, deviceLine(d), Yellow, be.Reason, Reset)
		default:
			fmt.Printf("  %s✗%s %s %s[%v]%s\n", Red, Reset, deviceLine(d), Yellow, err, Reset)
		}
	}
	return nil
}
