package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/fingerprint"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/recognize"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll --person NAME <images...|dir>",
	Short: "Enroll reference faces for a person",
	Long: `Enroll face images for a person into the gallery. Each image must
contain exactly one face unless --force is given, and the same capture is
not enrolled twice (perceptual-hash duplicate guard).

Examples:
  # Enroll a few reference photos
  face-match enroll --person "Alice Novak" alice1.jpg alice2.jpg

  # Enroll a whole directory
  face-match enroll --person "Alice Novak" ./refs/alice/

  # Accept group photos, enrolling the most prominent face
  face-match enroll --person "Alice Novak" group.jpg --force`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("person", "", "Person name to enroll the faces under (required)")
	enrollCmd.Flags().Bool("force", false, "Enroll the best face even with multiple faces or duplicate captures")
	enrollCmd.MarkFlagRequired("person")
}

// imageExtensions are the formats the decoder understands.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
}

// collectImagePaths expands directories into their image files.
func collectImagePaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if imageExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
				paths = append(paths, filepath.Join(arg, entry.Name()))
			}
		}
	}
	if len(paths) == 0 {
		return nil, errors.New("no images found")
	}
	return paths, nil
}

func runEnroll(cmd *cobra.Command, args []string) error {
	person := mustGetString(cmd, "person")
	force := mustGetBool(cmd, "force")

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

	recognizer := recognize.New(detector, embedder)

	// Known hashes for the duplicate guard, seeded from already-enrolled faces.
	knownHashes := make(map[string]bool)
	existing, err := gal.FacesByPerson(ctx, person)
	if err != nil {
		return err
	}
	for _, f := range existing {
		if f.PHash != "" {
			knownHashes[f.PHash] = true
		}
	}

	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Enrolling faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var enrolled, skipped int
	var problems []string

	for _, path := range paths {
		if err := enrollOne(ctx, gal, recognizer, person, path, force, knownHashes); err != nil {
			skipped++
			problems = append(problems, fmt.Sprintf("%s: %v", path, err))
		} else {
			enrolled++
		}
		bar.Add(1)
	}
	fmt.Println()

	fmt.Printf("Enrolled %d faces for %s (%d skipped)\n", enrolled, person, skipped)
	for _, p := range problems {
		fmt.Printf("  skipped %s\n", p)
	}
	return nil
}

// enrollOne processes a single image: best-face extraction, face policy,
// duplicate guard, gallery write. knownHashes is extended on success.
func enrollOne(
	ctx context.Context, gal *gallery.Gallery, recognizer *recognize.Recognizer,
	person, path string, force bool, knownHashes map[string]bool,
) error {
	img, err := loadImageFile(path)
	if err != nil {
		return err
	}

	face, err := recognizer.ExtractBestFace(img)
	if err != nil {
		return err
	}
	if face.Total > 1 && !force {
		return fmt.Errorf("%d faces detected, use --force to enroll the best one", face.Total)
	}

	hash := fingerprint.HashImage(face.Crop)
	if !force {
		for known := range knownHashes {
			d, err := fingerprint.HammingDistanceHex(hash.PHash, known)
			if err != nil {
				continue
			}
			if d <= constants.DuplicateHammingThreshold {
				return errors.New("capture already enrolled")
			}
		}
	}

	_, err = gal.Enroll(ctx, gallery.FaceRecord{
		PersonName: person,
		Embedding:  face.Embedding,
		DetScore:   face.Detection.Score,
		PHash:      hash.PHash,
		Source:     filepath.Base(path),
	})
	if err != nil {
		return err
	}

	knownHashes[hash.PHash] = true
	return nil
}
