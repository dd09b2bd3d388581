package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "face-gallery",
	Short: "Recognize faces against a gallery of known people",
	Long: `Face Gallery keeps a gallery of known people built from a dataset of
photos (one directory per person) and recognizes faces in new images
against it. Face detection and embeddings come from an InsightFace
embedding server.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("section", "", "Gallery section (defaults to DEFAULT_SECTION)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
