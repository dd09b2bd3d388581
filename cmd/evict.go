package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

var evictCmd = &cobra.Command{
	Use:   "evict <identity>...",
	Short: "Remove identities from a gallery section",
	Long: `Remove identities from a gallery section. The dataset is not touched, so an
evicted identity whose photos are still in the dataset is added again by the
next sync.

Examples:
  face-gallery evict alice
  face-gallery evict --section family alice bob`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEvict,
}

func init() {
	rootCmd.AddCommand(evictCmd)
}

func runEvict(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sess, section, err := openSection(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	removed, err := sess.Evict(ctx, args...)
	if err != nil {
		return fmt.Errorf("evict failed: %w", err)
	}

	for _, name := range args {
		if slices.Contains(removed, name) {
			fmt.Printf("Evicted %s from %s\n", name, section)
		} else {
			fmt.Printf("Warning: %s is not in %s\n", name, section)
		}
	}
	return nil
}
