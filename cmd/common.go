package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/session"
)

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newRegistry creates the section registry described by cfg.
func newRegistry(cfg *config.Config) *session.Registry {
	return session.NewRegistry(cfg.Gallery.Dir, session.WithDim(cfg.Embedding.Dim))
}

// newSynchronizer creates a dataset synchronizer backed by the embedding server.
func newSynchronizer(cfg *config.Config, progress func(dataset.Event)) *dataset.Synchronizer {
	return &dataset.Synchronizer{
		Extractor:   extractor.NewClient(cfg.Embedding.URL),
		Concurrency: cfg.Dataset.SyncConcurrency,
		Extensions:  cfg.Dataset.Extensions,
		Dim:         cfg.Embedding.Dim,
		Progress:    progress,
	}
}

// sectionFlag returns the --section flag or the configured default section.
func sectionFlag(cmd *cobra.Command, cfg *config.Config) string {
	section, err := cmd.Flags().GetString("section")
	if err != nil || strings.TrimSpace(section) == "" {
		return cfg.Gallery.DefaultSection
	}
	return strings.TrimSpace(section)
}

// openSection loads the gallery of the selected section.
func openSection(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*session.Session, string, error) {
	section := sectionFlag(cmd, cfg)
	sess, err := newRegistry(cfg).Get(ctx, section)
	if err != nil {
		return nil, section, fmt.Errorf("failed to open section %s: %w", section, err)
	}
	return sess, section, nil
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
