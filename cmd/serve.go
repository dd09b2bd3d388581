package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/session"
	"github.com/kozaktomas/face-gallery/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Gallery web server.
The server exposes a JSON API for recognizing faces, adding people,
listing and evicting identities and running dataset syncs.

With --watch the dataset directory is watched and new photos trigger a
sync of every known section.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (defaults to WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (defaults to WEB_HOST)")
	serveCmd.Flags().Bool("watch", false, "Sync automatically when photos are added to the dataset")
	serveCmd.Flags().Bool("sync", false, "Sync the default section before serving")
}

// resolveServeHostPort applies the --host and --port flags over the configuration.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// watchedSections returns the sections a dataset change should be synced into.
func watchedSections(cfg *config.Config, registry *session.Registry) []string {
	sections, err := registry.Sections()
	if err != nil {
		fmt.Printf("Warning: failed to list sections: %v\n", err)
	}
	if !slices.Contains(sections, cfg.Gallery.DefaultSection) {
		sections = append(sections, cfg.Gallery.DefaultSection)
	}
	return sections
}

// startWatcher syncs the affected sections whenever identity directories change.
func startWatcher(ctx context.Context, cfg *config.Config, registry *session.Registry, ex dataset.Extractor) (*dataset.Watcher, error) {
	syn := &dataset.Synchronizer{
		Extractor:   ex,
		Concurrency: cfg.Dataset.SyncConcurrency,
		Extensions:  cfg.Dataset.Extensions,
		Dim:         cfg.Embedding.Dim,
	}

	onChange := func(ctx context.Context, identities []string) {
		fmt.Printf("Dataset changed: %v\n", identities)
		for _, section := range watchedSections(cfg, registry) {
			sess, err := registry.Get(ctx, section)
			if err != nil {
				fmt.Printf("Warning: %v\n", err)
				continue
			}
			report, err := sess.Sync(ctx, cfg.Dataset.Path, syn)
			if err != nil {
				fmt.Printf("Warning: sync of %s failed: %v\n", section, err)
				continue
			}
			fmt.Printf("Synced %s: %s\n", section, report)
		}
	}

	w, err := dataset.NewWatcher(cfg.Dataset.Path, cfg.Dataset.Extensions, constants.WatchDebounceMillis*time.Millisecond, onChange)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Printf("Warning: dataset watcher stopped: %v\n", err)
		}
	}()
	return w, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := newRegistry(cfg)
	client := extractor.NewClient(cfg.Embedding.URL)
	fmt.Printf("Using embedding server at %s\n", client.BaseURL())

	sess, err := registry.Get(ctx, cfg.Gallery.DefaultSection)
	if err != nil {
		return fmt.Errorf("failed to load default section: %w", err)
	}
	fmt.Printf("Loaded section %s with %d identities\n", cfg.Gallery.DefaultSection, sess.Len())

	if mustGetBool(cmd, "sync") {
		fmt.Printf("Syncing %s...\n", cfg.Dataset.Path)
		report, err := sess.Sync(ctx, cfg.Dataset.Path, newSynchronizer(cfg, nil))
		if err != nil {
			return fmt.Errorf("initial sync failed: %w", err)
		}
		fmt.Printf("Initial sync: %s\n", report)
	}

	if mustGetBool(cmd, "watch") {
		w, err := startWatcher(ctx, cfg, registry, client)
		if err != nil {
			return fmt.Errorf("failed to watch dataset: %w", err)
		}
		defer w.Close()
		fmt.Printf("Watching %s for new photos\n", cfg.Dataset.Path)
	}

	server := web.NewServer(cfg, registry, client)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Gallery on http://%s\n", cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
