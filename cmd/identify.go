package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
)

var identifyCmd = &cobra.Command{
	Use:   "identify <images...>",
	Short: "Identify people in images against the gallery",
	Long: `Detect faces in one or more images and match each face against the
enrolled gallery. A face matches when its cosine distance to the closest
reference is below the threshold (lower = stricter).

Examples:
  # Identify everyone in a photo
  face-match identify party.jpg

  # Stricter matching, JSON output
  face-match identify party.jpg --threshold 0.3 --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().Float64("threshold", 0, "Max cosine distance for a match (0 = configured default)")
	identifyCmd.Flags().Bool("json", false, "Output JSON instead of a table")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	asJSON := mustGetBool(cmd, "json")

	cfg := config.Load()
	if threshold > 0 {
		cfg.Match.Threshold = threshold
	}
	ctx := context.Background()

	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	detector, err := buildDetector(cfg)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}
	defer embedder.Close()
	defer model.DestroyRuntime()

	opts := append(recognizerOptions(cfg), recognize.WithGallery(gal))
	recognizer := recognize.New(detector, embedder, opts...)

	outcomes := make([]recognize.ImageOutcome, 0, len(args))
	for _, path := range args {
		img, err := loadImageFile(path)
		if err != nil {
			outcomes = append(outcomes, recognize.ImageOutcome{Path: path, Skipped: err.Error()})
			continue
		}
		result, err := recognizer.IdentifyImage(ctx, img)
		if err != nil {
			return err
		}
		outcomes = append(outcomes, recognize.ImageOutcome{Path: path, Result: result})
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tFACE\tPERSON\tDISTANCE\tSCORE")
	for _, o := range outcomes {
		if o.Result == nil {
			fmt.Fprintf(w, "%s\t-\tskipped: %s\t-\t-\n", o.Path, o.Skipped)
			continue
		}
		if len(o.Result.Faces) == 0 {
			fmt.Fprintf(w, "%s\t-\tno faces\t-\t-\n", o.Path)
			continue
		}
		for i, f := range o.Result.Faces {
			person := "unknown"
			distance := "-"
			if f.Matched {
				person = f.Person
				distance = fmt.Sprintf("%.3f", f.Distance)
			} else if f.Error != "" {
				person = "error: " + f.Error
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%.1f\n", o.Path, i+1, person, distance, f.Score)
		}
	}
	return w.Flush()
}
