package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/dataset"
)

var syncCmd = &cobra.Command{
	Use:   "sync [identity...]",
	Short: "Add new identities from the dataset to the gallery",
	Long: `Scan the dataset directory and add every identity that is not yet in the
gallery. Each identity directory holds one or more photos of the person;
their face embeddings are averaged into a single gallery entry.

Identities already in the gallery are skipped, even if new photos were added.
Use --force to re-extract them. Without identity arguments --force rebuilds
the gallery from the dataset. With identity arguments only those identities
are re-extracted. Either way identities whose photos are gone or no longer
contain a face are removed.

Examples:
  # Add new identities to the default section
  face-gallery sync

  # Re-extract all identities of the "family" section
  face-gallery sync --section family --force

  # Re-extract two identities after replacing their photos
  face-gallery sync --force alice bob

  # JSON output for scripting
  face-gallery sync --json`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().Bool("force", false, "Re-extract identities that are already in the gallery")
	syncCmd.Flags().Bool("json", false, "Output the sync report as JSON instead of a progress bar")
}

// syncProgress renders scan events on a progress bar created once the total is known.
type syncProgress struct {
	bar *progressbar.ProgressBar
}

func (p *syncProgress) handle(e dataset.Event) {
	switch e.Type {
	case dataset.EventStart:
		p.bar = progressbar.NewOptions(e.Total,
			progressbar.OptionSetDescription("Syncing identities"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("identities"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	case dataset.EventIdentity:
		if p.bar != nil {
			p.bar.Describe(fmt.Sprintf("Syncing %-20.20s", e.Identity))
			_ = p.bar.Set(e.Current)
		}
	}
}

func (p *syncProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Println()
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	force := mustGetBool(cmd, "force")
	jsonOutput := mustGetBool(cmd, "json")

	if len(args) > 0 && !force {
		return errors.New("identity arguments require --force")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, section, err := openSection(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	progress := &syncProgress{}
	var onEvent func(dataset.Event)
	if !jsonOutput {
		fmt.Printf("Syncing %s into section %s (%d identities stored)\n", cfg.Dataset.Path, section, sess.Len())
		onEvent = progress.handle
	}
	syn := newSynchronizer(cfg, onEvent)

	var report *dataset.Report
	if force {
		report, err = sess.Resync(ctx, cfg.Dataset.Path, syn, args...)
	} else {
		report, err = sess.Sync(ctx, cfg.Dataset.Path, syn)
	}
	progress.finish()

	if errors.Is(err, context.Canceled) {
		return errors.New("sync interrupted, gallery left unchanged")
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if jsonOutput {
		return outputJSON(report)
	}
	printSyncReport(os.Stdout, report, sess.Len())
	return nil
}

// printSyncReport writes the human-readable sync summary to w.
func printSyncReport(w io.Writer, report *dataset.Report, total int) {
	fmt.Fprintf(w, "\nSync complete in %s\n", report.Duration)
	fmt.Fprintf(w, "  Added:      %d\n", len(report.Added))
	fmt.Fprintf(w, "  Existing:   %d\n", report.Existing)
	fmt.Fprintf(w, "  Processed:  %d images\n", report.Processed)
	fmt.Fprintf(w, "  Skipped:    %d images\n", len(report.Skipped))
	fmt.Fprintf(w, "  In gallery: %d\n", total)

	if len(report.Added) > 0 {
		fmt.Fprintf(w, "  New: %s\n", strings.Join(report.Added, ", "))
	}
	for _, s := range report.Skipped {
		fmt.Fprintf(w, "    %s/%s: %s\n", s.Identity, s.File, s.Reason)
	}
	if len(report.Incomplete) > 0 {
		fmt.Fprintf(w, "  No usable face: %s\n", strings.Join(report.Incomplete, ", "))
	}
}
