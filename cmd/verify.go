package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <imageA> <imageB>",
	Short: "Check whether two images show the same person",
	Long: `Compare the best face of each image (1:1 verification). When an image
contains multiple faces the highest-scored one is used.

Examples:
  face-match verify id-card.jpg selfie.jpg

  # Stricter verification
  face-match verify id-card.jpg selfie.jpg --threshold 0.3`,
	Args: cobra.ExactArgs(2),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Float64("threshold", 0, "Max cosine distance for a positive verdict (0 = configured default)")
	verifyCmd.Flags().Bool("json", false, "Output JSON instead of text")
}

func runVerify(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	asJSON := mustGetBool(cmd, "json")

	cfg := config.Load()
	if threshold > 0 {
		cfg.Match.VerifyThreshold = threshold
	}

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

	imgA, err := loadImageFile(args[0])
	if err != nil {
		return err
	}
	imgB, err := loadImageFile(args[1])
	if err != nil {
		return err
	}

	recognizer := recognize.New(detector, embedder, recognizerOptions(cfg)...)
	result, err := recognizer.VerifyImages(imgA, imgB)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	verdict := "DIFFERENT PERSON"
	if result.Same {
		verdict = "SAME PERSON"
	}
	fmt.Printf("%s\n", verdict)
	fmt.Printf("  Similarity: %.4f\n", result.Similarity)
	fmt.Printf("  Distance:   %.4f (threshold %.2f)\n", result.Distance, result.Threshold)
	return nil
}
