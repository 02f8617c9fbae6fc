package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
)

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Detect faces in an image",
	Long: `Detect faces in an image and print their bounding boxes and quality
scores.

Examples:
  # Human-readable table
  face-match detect photo.jpg

  # JSON for scripting
  face-match detect photo.jpg --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("json", false, "Output JSON instead of a table")
}

func runDetect(cmd *cobra.Command, args []string) error {
	asJSON := mustGetBool(cmd, "json")
	cfg := config.Load()

	detector, err := buildDetector(cfg)
	if err != nil {
		return err
	}

	img, err := loadImageFile(args[0])
	if err != nil {
		return err
	}

	detections := detector.Detect(img)

	if asJSON {
		type box struct {
			X      int     `json:"x"`
			Y      int     `json:"y"`
			Width  int     `json:"width"`
			Height int     `json:"height"`
			Score  float64 `json:"score"`
		}
		boxes := make([]box, 0, len(detections))
		for _, d := range detections {
			boxes = append(boxes, box{
				X: d.Box.Min.X, Y: d.Box.Min.Y,
				Width: d.Box.Dx(), Height: d.Box.Dy(),
				Score: d.Score,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(boxes)
	}

	if len(detections) == 0 {
		fmt.Println("No faces detected")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tX\tY\tWIDTH\tHEIGHT\tSCORE")
	for i, d := range detections {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.1f\n",
			i+1, d.Box.Min.X, d.Box.Min.Y, d.Box.Dx(), d.Box.Dy(), d.Score)
	}
	return w.Flush()
}
