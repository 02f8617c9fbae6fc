// Package detect wraps the pigo cascade face detector and provides the
// bounding-box geometry helpers shared by the CLI and web handlers.
package detect

import (
	"fmt"
	"image"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/constants"
)

// Detection is a single detected face region.
type Detection struct {
	Box   image.Rectangle // pixel bounding box in the source image
	Score float64         // cascade quality score (higher = more confident)
}

// Detector runs the pigo face cascade over images.
type Detector struct {
	classifier  *pigo.Pigo
	minFaceSize int
	minScore    float64
	clusterIoU  float64
}

// New loads the binary cascade file and builds a detector. Zero values in
// cfg fall back to the package defaults.
func New(cfg config.DetectConfig) (*Detector, error) {
	if cfg.CascadeFile == "" {
		return nil, fmt.Errorf("cascade file not configured (set CASCADE_FILE)")
	}

	cascade, err := os.ReadFile(cfg.CascadeFile)
	if err != nil {
		return nil, fmt.Errorf("reading cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpacking cascade: %w", err)
	}

	d := &Detector{
		classifier:  classifier,
		minFaceSize: cfg.MinFaceSize,
		minScore:    cfg.MinScore,
		clusterIoU:  cfg.ClusterIoU,
	}
	if d.minFaceSize <= 0 {
		d.minFaceSize = constants.DefaultMinFaceSize
	}
	if d.minScore <= 0 {
		d.minScore = constants.DefaultDetectionScore
	}
	if d.clusterIoU <= 0 {
		d.clusterIoU = constants.DefaultClusterIoU
	}
	return d, nil
}

// Detect runs the cascade over the image and returns face detections sorted
// by score (best first), capped at MaxFacesPerImage. Images smaller than
// the minimum face size yield no detections.
func (d *Detector) Detect(img image.Image) []Detection {
	bounds := img.Bounds()
	cols, rows := bounds.Dx(), bounds.Dy()
	if cols < d.minFaceSize || rows < d.minFaceSize {
		return nil
	}

	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)

	params := pigo.CascadeParams{
		MinSize:     d.minFaceSize,
		MaxSize:     min(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.clusterIoU)

	results := make([]Detection, 0, len(dets))
	for _, det := range dets {
		if float64(det.Q) < d.minScore || det.Scale <= 0 {
			continue
		}
		box := detectionRect(det, bounds)
		if box.Empty() {
			continue
		}
		results = append(results, Detection{Box: box, Score: float64(det.Q)})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	results = dedupeOverlaps(results, d.clusterIoU)
	if len(results) > constants.MaxFacesPerImage {
		results = results[:constants.MaxFacesPerImage]
	}
	return results
}

// dedupeOverlaps drops lower-scored detections that still overlap a kept box.
// Clamping merged clusters to the image bounds can leave near-duplicate
// rectangles that pigo's center-distance clustering does not catch. Input
// must be sorted by score, best first.
func dedupeOverlaps(dets []Detection, iouThreshold float64) []Detection {
	kept := dets[:0]
	for _, d := range dets {
		duplicate := false
		for _, k := range kept {
			if ComputeIoU(RectToCorners(d.Box), RectToCorners(k.Box)) > iouThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, d)
		}
	}
	return kept
}

// detectionRect converts a pigo detection (center row/col + scale) into a
// square pixel rectangle clamped to the image bounds.
func detectionRect(det pigo.Detection, bounds image.Rectangle) image.Rectangle {
	half := det.Scale / 2
	rect := image.Rect(
		det.Col-half,
		det.Row-half,
		det.Col-half+det.Scale,
		det.Row-half+det.Scale,
	)
	return rect.Intersect(bounds)
}
