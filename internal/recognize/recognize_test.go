package recognize

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kozaktomas/face-match/internal/detect"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/preprocess"
)

// fakeDetector returns canned detections regardless of input.
type fakeDetector struct {
	detections []detect.Detection
}

func (f *fakeDetector) Detect(img image.Image) []detect.Detection {
	return f.detections
}

// fakeEmbedder returns queued embeddings in order, or a fixed error.
type fakeEmbedder struct {
	mu         sync.Mutex
	embeddings [][]float32
	err        error
	calls      int
}

func (f *fakeEmbedder) Spec() preprocess.TensorSpec {
	return preprocess.TensorSpec{
		Width: 112, Height: 112, Layout: preprocess.LayoutNHWC, Mean: 127.5, Scale: 127.5,
	}
}

func (f *fakeEmbedder) Embed(tensor []float32) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	emb := f.embeddings[f.calls%len(f.embeddings)]
	f.calls++
	return emb, nil
}

// fakeGallery answers Nearest from a fixed match table keyed by the
// embedding's hot axis.
type fakeGallery struct {
	matches map[int]*gallery.Match
	err     error
}

func (f *fakeGallery) Nearest(ctx context.Context, embedding []float32, maxDistance float64) (*gallery.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	for i, v := range embedding {
		if v != 0 {
			return f.matches[i], nil
		}
	}
	return nil, nil
}

type fakeClassifier struct {
	prediction *model.Prediction
	err        error
}

func (f *fakeClassifier) Predict(embedding []float32) (*model.Prediction, error) {
	return f.prediction, f.err
}

func axis(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func testImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 100, 255})
		}
	}
	return img
}

func box(x0, y0, x1, y1 int) image.Rectangle {
	return image.Rect(x0, y0, x1, y1)
}

func TestIdentifyImage(t *testing.T) {
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
		{Box: box(100, 20, 150, 70), Score: 7.5},
	}}
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 0), axis(4, 1)}}
	gal := &fakeGallery{matches: map[int]*gallery.Match{
		0: {Face: gallery.FaceRecord{PersonUID: "p-alice", PersonName: "Alice"}, Distance: 0.12},
		// axis 1 has no match
	}}

	r := New(detector, embedder, WithGallery(gal))
	result, err := r.IdentifyImage(context.Background(), testImage(200, 200))
	if err != nil {
		t.Fatalf("IdentifyImage: %v", err)
	}

	if len(result.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(result.Faces))
	}
	if result.Matched != 1 {
		t.Errorf("expected 1 matched face, got %d", result.Matched)
	}

	first := result.Faces[0]
	if !first.Matched || first.Person != "Alice" || first.UID != "p-alice" {
		t.Errorf("unexpected first face: %+v", first)
	}
	if first.Distance != 0.12 {
		t.Errorf("expected distance 0.12, got %v", first.Distance)
	}

	second := result.Faces[1]
	if second.Matched || second.Person != "" {
		t.Errorf("expected unmatched second face, got %+v", second)
	}
}

func TestIdentifyImageNoFaces(t *testing.T) {
	r := New(&fakeDetector{}, &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}},
		WithGallery(&fakeGallery{}))

	result, err := r.IdentifyImage(context.Background(), testImage(50, 50))
	if err != nil {
		t.Fatalf("IdentifyImage: %v", err)
	}
	if len(result.Faces) != 0 {
		t.Errorf("expected empty result, got %d faces", len(result.Faces))
	}
}

func TestIdentifyImageEmbedFailureIsReported(t *testing.T) {
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
	}}
	embedder := &fakeEmbedder{err: errors.New("session crashed")}

	r := New(detector, embedder, WithGallery(&fakeGallery{}))
	result, err := r.IdentifyImage(context.Background(), testImage(100, 100))
	if err != nil {
		t.Fatalf("IdentifyImage: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("expected 1 failed face, got %d", result.Failed)
	}
	if len(result.Faces) != 1 {
		t.Fatalf("failed face must still be reported as detected")
	}
	if result.Faces[0].Matched {
		t.Error("failed face must not be matched")
	}
	if result.Faces[0].Error == "" {
		t.Error("expected error detail on failed face")
	}
}

func TestIdentifyImageGalleryErrorAborts(t *testing.T) {
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
	}}
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}}
	boom := errors.New("store down")

	r := New(detector, embedder, WithGallery(&fakeGallery{err: boom}))
	if _, err := r.IdentifyImage(context.Background(), testImage(100, 100)); !errors.Is(err, boom) {
		t.Errorf("expected gallery error, got %v", err)
	}
}

func TestBestEmbeddingPicksHighestScore(t *testing.T) {
	// Detections arrive sorted by score, best first.
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
		{Box: box(100, 20, 150, 70), Score: 4.0},
	}}
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 2)}}

	r := New(detector, embedder)
	emb, best, err := r.BestEmbedding(testImage(200, 200))
	if err != nil {
		t.Fatalf("BestEmbedding: %v", err)
	}
	if best.Score != 9.0 {
		t.Errorf("expected best face score 9.0, got %v", best.Score)
	}
	if emb[2] != 1 {
		t.Errorf("unexpected embedding: %v", emb)
	}

	r = New(&fakeDetector{}, embedder)
	if _, _, err := r.BestEmbedding(testImage(50, 50)); !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestVerifyImages(t *testing.T) {
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
	}}

	tests := []struct {
		name       string
		embeddings [][]float32
		wantSame   bool
	}{
		{"identical faces", [][]float32{axis(4, 0), axis(4, 0)}, true},
		{"orthogonal faces", [][]float32{axis(4, 0), axis(4, 1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := &fakeEmbedder{embeddings: tt.embeddings}
			r := New(detector, embedder, WithVerifyThreshold(0.4))

			result, err := r.VerifyImages(testImage(100, 100), testImage(100, 100))
			if err != nil {
				t.Fatalf("VerifyImages: %v", err)
			}
			if result.Same != tt.wantSame {
				t.Errorf("Same = %v (distance %v), want %v", result.Same, result.Distance, tt.wantSame)
			}
		})
	}
}

func TestVerifyImagesNoFace(t *testing.T) {
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}}
	r := New(&fakeDetector{}, embedder)

	if _, err := r.VerifyImages(testImage(50, 50), testImage(50, 50)); !errors.Is(err, ErrNoFace) {
		t.Errorf("expected ErrNoFace, got %v", err)
	}
}

func TestClassifyImage(t *testing.T) {
	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
	}}
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}}

	tests := []struct {
		name         string
		confidence   float64
		wantAccepted bool
	}{
		{"confident prediction", 0.91, true},
		{"below the gate", 0.30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &fakeClassifier{prediction: &model.Prediction{
				Label: "alice", Confidence: tt.confidence,
			}}
			r := New(detector, embedder, WithClassifier(classifier), WithMinConfidence(0.55))

			result, err := r.ClassifyImage(testImage(100, 100))
			if err != nil {
				t.Fatalf("ClassifyImage: %v", err)
			}
			if result.Label != "alice" {
				t.Errorf("expected label alice, got %s", result.Label)
			}
			if result.Accepted != tt.wantAccepted {
				t.Errorf("Accepted = %v (confidence %v), want %v", result.Accepted, result.Confidence, tt.wantAccepted)
			}
		})
	}
}

func TestClassifyImageWithoutClassifier(t *testing.T) {
	r := New(&fakeDetector{}, &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}})
	if _, err := r.ClassifyImage(testImage(50, 50)); err == nil {
		t.Error("expected error without classifier")
	}
}

func TestIdentifyBatch(t *testing.T) {
	dir := t.TempDir()

	// Two valid images and one broken file.
	for _, name := range []string{"a.png", "b.png"} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("creating image: %v", err)
		}
		if err := png.Encode(f, testImage(80, 80)); err != nil {
			t.Fatalf("encoding image: %v", err)
		}
		f.Close()
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0600); err != nil {
		t.Fatalf("writing broken file: %v", err)
	}

	detector := &fakeDetector{detections: []detect.Detection{
		{Box: box(10, 10, 60, 60), Score: 9.0},
	}}
	embedder := &fakeEmbedder{embeddings: [][]float32{axis(4, 0)}}
	gal := &fakeGallery{matches: map[int]*gallery.Match{
		0: {Face: gallery.FaceRecord{PersonName: "Alice"}, Distance: 0.1},
	}}

	r := New(detector, embedder, WithGallery(gal))

	paths := []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "broken.png"),
		filepath.Join(dir, "missing.png"),
	}

	var progressCalls int
	var mu sync.Mutex
	result := r.IdentifyBatch(context.Background(), paths, 2, func() {
		mu.Lock()
		progressCalls++
		mu.Unlock()
	})

	if result.Skipped != 2 {
		t.Errorf("expected 2 skipped files, got %d", result.Skipped)
	}
	if result.Faces != 2 || result.Matched != 2 {
		t.Errorf("expected 2 faces / 2 matched, got %d / %d", result.Faces, result.Matched)
	}
	if progressCalls != len(paths) {
		t.Errorf("expected %d progress calls, got %d", len(paths), progressCalls)
	}

	// Outcomes keep input order.
	if result.Outcomes[2].Skipped == "" {
		t.Error("expected skip reason for broken file")
	}
	if result.Outcomes[0].Result == nil {
		t.Error("expected result for valid file")
	}
}
