package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Identify people across a directory of images",
	Long: `Run identification over every image in a directory with a bounded
worker pool. Unreadable files are skipped and counted, never abort the scan.

Examples:
  # Scan the family archive
  face-match scan ~/Pictures/2024

  # More workers, JSON report
  face-match scan ./photos --concurrency 8 --json > report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int("concurrency", constants.WorkerPoolSize, "Number of parallel workers")
	scanCmd.Flags().Bool("json", false, "Output a JSON report instead of a summary")
}

func runScan(cmd *cobra.Command, args []string) error {
	concurrency := mustGetInt(cmd, "concurrency")
	asJSON := mustGetBool(cmd, "json")

	paths, err := collectImagePaths(args)
	if err != nil {
		return err
	}

	cfg := config.Load()
	ctx := context.Background()

	gal, closeGallery, err := openGallery(cfg)
	if err != nil {
		return err
	}
	defer closeGallery()

	initSearchIndex(ctx, gal, cfg.Gallery.HNSWIndexPath)

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

	fmt.Printf("Scanning %d images with %d workers\n", len(paths), concurrency)

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Identifying faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	result := recognizer.IdentifyBatch(ctx, paths, concurrency, func() {
		bar.Add(1)
	})
	fmt.Println()

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Printf("Scanned %d images: %d faces, %d matched, %d files skipped\n",
		len(paths), result.Faces, result.Matched, result.Skipped)

	// Per-person tally across the whole scan.
	tally := make(map[string]int)
	for _, o := range result.Outcomes {
		if o.Result == nil {
			continue
		}
		for _, f := range o.Result.Faces {
			if f.Matched {
				tally[f.Person]++
			}
		}
	}
	for person, count := range tally {
		fmt.Printf("  %-30s %d\n", person, count)
	}
	return nil
}
