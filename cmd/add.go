package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/facematch"
)

var addCmd = &cobra.Command{
	Use:   "add <name> <image>",
	Short: "Add a photo of a person to the dataset and sync",
	Long: `Copy a photo into the dataset directory of a person and sync the section.
The name is normalized (lowercase, no diacritics) and used as the
directory name. A person already in the gallery keeps its embedding until
it is re-extracted with "sync --force <name>".

Examples:
  face-gallery add "Jiří Novák" portrait.jpg`,
	Args: cobra.ExactArgs(2),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	name := facematch.NormalizePersonName(args[0])
	if !facematch.ValidPersonName(name) {
		return fmt.Errorf("invalid person name %q", args[0])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	img, err := dataset.DecodeFile(args[1])
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, section, err := openSection(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	path, err := dataset.SavePhoto(cfg.Dataset.Path, name, img)
	if err != nil {
		return err
	}
	fmt.Printf("Saved %s\n", path)

	existed := sess.Has(name)
	report, err := sess.Sync(ctx, cfg.Dataset.Path, newSynchronizer(cfg, nil))
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	switch {
	case existed:
		fmt.Printf("%s is already in %s; run \"sync --force %s\" to include the new photo\n", name, section, name)
	case sess.Has(name):
		fmt.Printf("Added %s to %s\n", name, section)
	default:
		fmt.Printf("Sync: %s\n", report)
		return errors.New("no usable face found in the photo")
	}
	return nil
}
