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

var embedCmd = &cobra.Command{
	Use:   "embed <image>",
	Short: "Extract the face embedding from an image",
	Long: `Detect the best face in an image and print its embedding vector.
The vector is L2-normalized and has the dimension of the active model
profile (512 for the bundled models).

Examples:
  # Print the embedding as JSON
  face-match embed photo.jpg

  # Write it to a file instead
  face-match embed photo.jpg --output face.json`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)

	embedCmd.Flags().String("output", "", "Write the embedding to this file instead of stdout")
}

func runEmbed(cmd *cobra.Command, args []string) error {
	output := mustGetString(cmd, "output")
	cfg := config.Load()

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

	img, err := loadImageFile(args[0])
	if err != nil {
		return err
	}

	recognizer := recognize.New(detector, embedder)
	embedding, detection, err := recognizer.BestEmbedding(img)
	if err != nil {
		return err
	}

	out := map[string]any{
		"model":     embedder.Name(),
		"dimension": len(embedding),
		"score":     detection.Score,
		"embedding": embedding,
	}

	dst := os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		dst = f
	}

	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
