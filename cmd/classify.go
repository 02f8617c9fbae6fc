package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify the best face with the trained classifier",
	Long: `Run the best face of an image through the trained classifier model
(CLASSIFIER_MODEL). The prediction is accepted when its softmax probability
clears the confidence gate.

Examples:
  face-match classify photo.jpg

  # Raise the confidence gate
  face-match classify photo.jpg --min-confidence 0.8`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().Float64("min-confidence", 0, "Min softmax probability to accept a label (0 = configured default)")
	classifyCmd.Flags().Bool("json", false, "Output JSON instead of text")
}

func runClassify(cmd *cobra.Command, args []string) error {
	minConfidence := mustGetFloat64(cmd, "min-confidence")
	asJSON := mustGetBool(cmd, "json")

	cfg := config.Load()
	if minConfidence > 0 {
		cfg.Match.MinConfidence = minConfidence
	}

	if cfg.Model.ClassifierPath == "" {
		return errors.New("CLASSIFIER_MODEL environment variable is required")
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

	// The ONNX runtime is up once the embedder is loaded.
	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}
	defer classifier.Close()

	img, err := loadImageFile(args[0])
	if err != nil {
		return err
	}

	opts := append(recognizerOptions(cfg), recognize.WithClassifier(classifier))
	recognizer := recognize.New(detector, embedder, opts...)

	result, err := recognizer.ClassifyImage(img)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Accepted {
		fmt.Printf("%s (%.1f%% confidence)\n", result.Label, result.Confidence*100)
	} else {
		fmt.Printf("unknown (best guess %s at %.1f%%, below the gate)\n",
			result.Label, result.Confidence*100)
	}
	return nil
}
