package cmd

import (
	"fmt"
	"image"
	"os"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/detect"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/gallery/postgres"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/preprocess"
	"github.com/kozaktomas/face-match/internal/recognize"
)

// openGallery opens the configured gallery backend: PostgreSQL with pgvector
// when DATABASE_URL is set, the reference JSON file otherwise. The returned
// cleanup releases the backend.
func openGallery(cfg *config.Config) (*gallery.Gallery, func(), error) {
	if cfg.Database.URL != "" {
		pool, err := postgres.Initialize(&cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing PostgreSQL: %w", err)
		}
		g := gallery.New(postgres.NewFaceRepository(pool), constants.EmbeddingDim)
		return g, func() { pool.Close() }, nil
	}

	store, err := gallery.OpenFile(cfg.Gallery.File, constants.EmbeddingDim)
	if err != nil {
		return nil, nil, err
	}
	return gallery.New(store, constants.EmbeddingDim), func() {}, nil
}

// buildEmbedder initializes the ONNX runtime and loads the embedding model
// for the configured profile. Callers must Close the embedder and call
// model.DestroyRuntime when done.
func buildEmbedder(cfg *config.Config) (*model.Embedder, error) {
	profile, ok := cfg.GetProfile(cfg.Model.Profile)
	if !ok {
		return nil, fmt.Errorf("unknown model profile %q", cfg.Model.Profile)
	}
	if err := model.InitRuntime(cfg.Model.RuntimeLib); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	embedder, err := model.NewEmbedder(cfg.EmbedModelPath(), cfg.Model.Profile, profile)
	if err != nil {
		return nil, fmt.Errorf("loading embedding model: %w", err)
	}
	return embedder, nil
}

// buildDetector creates the pigo face detector from config.
func buildDetector(cfg *config.Config) (*detect.Detector, error) {
	detector, err := detect.New(cfg.Detect)
	if err != nil {
		return nil, fmt.Errorf("loading face detector: %w", err)
	}
	return detector, nil
}

// buildClassifier loads the optional trained classifier. Returns nil without
// error when no classifier model is configured.
func buildClassifier(cfg *config.Config) (*model.Classifier, error) {
	if cfg.Model.ClassifierPath == "" {
		return nil, nil
	}
	classifier, err := model.NewClassifier(
		cfg.Model.ClassifierPath, cfg.ClassifierMetaPath(), constants.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("loading classifier: %w", err)
	}
	return classifier, nil
}

// recognizerOptions maps configured thresholds onto recognizer options,
// leaving the defaults in place for unset values.
func recognizerOptions(cfg *config.Config) []recognize.Option {
	var opts []recognize.Option
	if cfg.Match.Threshold > 0 {
		opts = append(opts, recognize.WithMatchThreshold(cfg.Match.Threshold))
	}
	if cfg.Match.VerifyThreshold > 0 {
		opts = append(opts, recognize.WithVerifyThreshold(cfg.Match.VerifyThreshold))
	}
	if cfg.Match.MinConfidence > 0 {
		opts = append(opts, recognize.WithMinConfidence(cfg.Match.MinConfidence))
	}
	return opts
}

// loadImageFile opens and decodes one image file.
func loadImageFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := preprocess.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}
