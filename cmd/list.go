package cmd

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/session"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the identities of a gallery section",
	Long: `List the identities stored in a gallery section.

Examples:
  # List the default section
  face-gallery list

  # List all sections
  face-gallery list --sections

  # Also show identity pairs that are easily confused
  face-gallery list --lookalikes

  # JSON output
  face-gallery list --section family --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Bool("sections", false, "List the gallery sections instead of identities")
	listCmd.Flags().Bool("lookalikes", false, "Also list identity pairs closer than the confidence threshold")
	listCmd.Flags().Bool("json", false, "Output as JSON")
}

// ListOutput is the JSON output of the list command.
type ListOutput struct {
	Section    string              `json:"section"`
	Dim        int                 `json:"dim"`
	Identities []string            `json:"identities"`
	Lookalikes []session.Lookalike `json:"lookalikes,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "sections") {
		sections, err := newRegistry(cfg).Sections()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(sections)
		}
		if len(sections) == 0 {
			fmt.Printf("No sections in %s\n", cfg.Gallery.Dir)
			return nil
		}
		for _, s := range sections {
			fmt.Println(s)
		}
		return nil
	}

	sess, section, err := openSection(context.Background(), cmd, cfg)
	if err != nil {
		return err
	}

	names := sess.ListIdentities()
	slices.Sort(names)

	var lookalikes []session.Lookalike
	if mustGetBool(cmd, "lookalikes") {
		lookalikes, err = sess.Lookalikes(cfg.Recognition.ConfidenceThreshold)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputJSON(ListOutput{Section: section, Dim: sess.Dim(), Identities: names, Lookalikes: lookalikes})
	}

	if len(names) == 0 {
		fmt.Printf("Section %s is empty\n", section)
		return nil
	}
	fmt.Printf("Section %s (%d identities):\n", section, len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	if mustGetBool(cmd, "lookalikes") {
		if len(lookalikes) == 0 {
			fmt.Printf("\nNo identities closer than %.2f\n", cfg.Recognition.ConfidenceThreshold)
			return nil
		}
		fmt.Printf("\nLookalikes (confidence >= %.2f):\n", cfg.Recognition.ConfidenceThreshold)
		for _, l := range lookalikes {
			fmt.Printf("  %s ~ %s (%.3f)\n", l.Name, l.Other, l.Confidence)
		}
	}
	return nil
}
