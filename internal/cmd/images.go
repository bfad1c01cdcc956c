package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images [dir]",
	Short: "List disk images in a directory",
	Long: `List files with a known image suffix in dir (the configured images
directory by default), with their codec and expanded size. Sizes prefixed
with "~" are estimates; run verify or burn for an exact figure.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImages,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
}

func runImages(_ *cobra.Command, args []string) error {
	dir := cfg.Images.Dir
	if len(args) > 0 {
		dir = args[0]
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	paths, err := a.catalog.FindAll(dir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Printf("No image files found in %s.\n", dir)
		return nil
	}

	fmt.Printf("\n%sImages in %s:%s\n", Bold, dir, Reset)
	for _, path := range paths {
		info, err := a.images.Estimate(path)
		if err != nil {
			fmt.Printf("  %s%s%s - %s%v%s\n", Cyan, filepath.Base(path), Reset, Red, err, Reset)
			continue
		}
		fmt.Printf("  %s%s%s - %s - %s -> %s\n", Cyan, filepath.Base(path), Reset,
			info.Codec, FormatBytes(info.Size), imageSizeLabel(info))
	}
	return nil
}
