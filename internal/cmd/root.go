package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fcjr/sdburn/internal/config"
	"github.com/fcjr/sdburn/internal/logging"
	"github.com/fcjr/sdburn/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:               "sdburn",
	Short:             "sdburn safely writes disk images to SD cards and USB drives",
	Version:           version.Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	configPath string
	debug      bool
	cfg        = config.Default()
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl-C cancels the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.CheckErr(rootCmd.ExecuteContext(ctx))
}

func init() {
	rootCmd.SetVersionTemplate(version.String())

	// Root Flags
	rootCmd.Flags().BoolP("version", "v", false, "Get the version of sdburn") // overrides default msg
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/sdburn/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func loadConfig(_ *cobra.Command, _ []string) error {
	path, err := config.Path(configPath)
	if err != nil {
		return err
	}
	loaded, err := config.Load(path, configPath != "")
	if err != nil {
		return err
	}
	cfg = loaded
	return logging.Setup(cfg.Log, debug)
}
