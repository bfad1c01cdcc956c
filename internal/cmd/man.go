package cmd

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

var manCmd = &cobra.Command{
	Use:                   "man",
	Short:                 "Generate the sdburn man page",
	Args:                  cobra.NoArgs,
	Hidden:                true,
	DisableFlagsInUseLine: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		manPage, err := mcobra.NewManPage(1, rootCmd)
		if err != nil {
			return fmt.Errorf("failed to generate man page: %w", err)
		}
		manPage = manPage.WithSection("Safety", "sdburn only offers removable devices within the configured\n"+
			"size bounds, refuses the device holding the root filesystem, unmounts\n"+
			"targets before writing and asks for confirmation unless --force is given.")
		_, err = fmt.Fprint(cmd.OutOrStdout(), manPage.Build(roff.NewDocument()))
		return err
	},
}

func init() {
	rootCmd.AddCommand(manCmd)
}
