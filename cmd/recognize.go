package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/extractor"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/matcher"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image>...",
	Short: "Recognize the faces in images",
	Long: `Detect the faces in each image and match them against a gallery section.
Faces whose confidence is below the threshold are reported as Unknown.

Examples:
  face-gallery recognize group.jpg

  # Stricter matching against the "family" section
  face-gallery recognize --section family --threshold 0.8 *.jpg

  # JSON output
  face-gallery recognize --json photo.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Minimum confidence for a known face (defaults to CONFIDENCE_THRESHOLD)")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizeOutput is the result for one image.
type RecognizeOutput struct {
	File    string            `json:"file"`
	Faces   []matcher.Verdict `json:"faces"`
	Known   int               `json:"known"`
	Unknown int               `json:"unknown"`
	Error   string            `json:"error,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	threshold, err := resolveThreshold(cmd, cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	sess, section, err := openSection(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	if sess.Len() == 0 && !jsonOutput {
		fmt.Printf("Warning: section %s is empty, every face will be Unknown\n", section)
	}

	client := extractor.NewClient(cfg.Embedding.URL)
	outputs := make([]RecognizeOutput, 0, len(args))
	results := make([]*matcher.Result, 0, len(args))

	for _, path := range args {
		out := RecognizeOutput{File: path}
		result, err := recognizeFile(ctx, client, sess.Recognize, path, threshold)
		if err != nil {
			out.Error = err.Error()
		} else {
			out.Faces = result.Verdicts
			out.Known = result.Known
			out.Unknown = result.Unknown
			results = append(results, result)
		}
		outputs = append(outputs, out)
	}

	if jsonOutput {
		return outputJSON(outputs)
	}

	printRecognizeTable(outputs)
	if names := matcher.RecognizedNames(results...); len(names) > 0 {
		fmt.Printf("\nRecognized: %v\n", names)
	}
	return nil
}

// resolveThreshold returns --threshold when it was given, otherwise the configured
// confidence threshold.
func resolveThreshold(cmd *cobra.Command, cfg *config.Config) (float64, error) {
	threshold := cfg.Recognition.ConfidenceThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = mustGetFloat64(cmd, "threshold")
	}
	return threshold, matcher.ValidateThreshold(threshold)
}

type recognizeFunc func(queries [][]float32, boxes []facematch.BBox, threshold float64) (*matcher.Result, error)

// recognizeFile decodes one image, extracts its faces and classifies them.
func recognizeFile(ctx context.Context, ex dataset.Extractor, recognize recognizeFunc, path string, threshold float64) (*matcher.Result, error) {
	img, err := dataset.DecodeFile(path)
	if err != nil {
		return nil, err
	}

	faces, err := ex.Extract(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("face extraction failed: %w", err)
	}

	queries := make([][]float32, len(faces))
	boxes := make([]facematch.BBox, len(faces))
	for i, f := range faces {
		queries[i] = f.Embedding
		boxes[i] = f.BBox
	}
	return recognize(queries, boxes, threshold)
}

// printRecognizeTable prints one row per detected face.
func printRecognizeTable(outputs []RecognizeOutput) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tFACE\tLABEL\tCONFIDENCE\tBBOX")
	fmt.Fprintln(w, "----\t----\t-----\t----------\t----")

	for _, out := range outputs {
		file := filepath.Base(out.File)
		if out.Error != "" {
			fmt.Fprintf(w, "%s\t-\terror: %s\t-\t-\n", file, out.Error)
			continue
		}
		if len(out.Faces) == 0 {
			fmt.Fprintf(w, "%s\t-\tno faces\t-\t-\n", file)
			continue
		}
		for i, v := range out.Faces {
			b := v.BBox
			fmt.Fprintf(w, "%s\t%d\t%s\t%.4f\t[%.0f %.0f %.0f %.0f]\n",
				file, i+1, v.Label(), v.Confidence, b[0], b[1], b[2], b[3])
		}
	}

	w.Flush()
}
