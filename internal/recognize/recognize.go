// Package recognize runs the full face recognition pipeline: detect faces,
// crop and preprocess them, extract embeddings, and resolve identities
// against the gallery or the trained classifier.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/detect"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/match"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/preprocess"
)

// ErrNoFace is returned by operations that need at least one face.
var ErrNoFace = errors.New("no face detected")

// FaceDetector finds faces in a decoded image.
type FaceDetector interface {
	Detect(img image.Image) []detect.Detection
}

// FaceEmbedder turns a preprocessed tensor into an L2-normalized embedding.
type FaceEmbedder interface {
	Spec() preprocess.TensorSpec
	Embed(tensor []float32) ([]float32, error)
}

// FaceClassifier predicts a person label from an embedding.
type FaceClassifier interface {
	Predict(embedding []float32) (*model.Prediction, error)
}

// FaceGallery resolves an embedding to the closest enrolled face.
type FaceGallery interface {
	Nearest(ctx context.Context, embedding []float32, maxDistance float64) (*gallery.Match, error)
}

// Recognizer wires the pipeline stages together. Classifier and Gallery are
// both optional; operations fail with a clear error when the stage they need
// is missing.
type Recognizer struct {
	detector   FaceDetector
	embedder   FaceEmbedder
	gallery    FaceGallery
	classifier FaceClassifier

	matchThreshold  float64 // max cosine distance for identify
	verifyThreshold float64 // max cosine distance for 1:1 verify
	minConfidence   float64 // min softmax probability for classify
}

// Option configures a Recognizer.
type Option func(*Recognizer)

// WithGallery attaches a gallery for identify operations.
func WithGallery(g FaceGallery) Option {
	return func(r *Recognizer) { r.gallery = g }
}

// WithClassifier attaches a trained classifier for classify operations.
func WithClassifier(c FaceClassifier) Option {
	return func(r *Recognizer) { r.classifier = c }
}

// WithMatchThreshold sets the max cosine distance for gallery matches.
func WithMatchThreshold(t float64) Option {
	return func(r *Recognizer) { r.matchThreshold = t }
}

// WithVerifyThreshold sets the max cosine distance for 1:1 verification.
func WithVerifyThreshold(t float64) Option {
	return func(r *Recognizer) { r.verifyThreshold = t }
}

// WithMinConfidence sets the classifier acceptance probability.
func WithMinConfidence(c float64) Option {
	return func(r *Recognizer) { r.minConfidence = c }
}

// New builds a Recognizer with the house default thresholds.
func New(detector FaceDetector, embedder FaceEmbedder, opts ...Option) *Recognizer {
	r := &Recognizer{
		detector:        detector,
		embedder:        embedder,
		matchThreshold:  constants.DefaultMatchThreshold,
		verifyThreshold: constants.DefaultVerifyThreshold,
		minConfidence:   constants.DefaultClassifierMinConfidence,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FaceResult is one detected face with its match outcome. Matched is false
// when the face embedded fine but nothing in the gallery was close enough,
// and also when the embed step itself failed (Error carries the cause).
type FaceResult struct {
	Box      image.Rectangle `json:"box"`
	Score    float64         `json:"score"`
	Matched  bool            `json:"matched"`
	Person   string          `json:"person,omitempty"`
	UID      string          `json:"person_uid,omitempty"`
	Distance float64         `json:"distance,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// IdentifyResult aggregates per-face outcomes for one image.
type IdentifyResult struct {
	Faces   []FaceResult `json:"faces"`
	Matched int          `json:"matched"`
	Failed  int          `json:"failed"` // faces whose embedding failed
}

// EmbedFace crops one detection out of the image and runs it through the
// embedder.
func (r *Recognizer) EmbedFace(img image.Image, box image.Rectangle) ([]float32, error) {
	crop, err := preprocess.CropSquare(img, box, constants.CropMargin)
	if err != nil {
		return nil, fmt.Errorf("cropping face: %w", err)
	}
	tensor, err := preprocess.ToTensor(crop, r.embedder.Spec())
	if err != nil {
		return nil, fmt.Errorf("preprocessing face: %w", err)
	}
	return r.embedder.Embed(tensor)
}

// IdentifyImage detects all faces and matches each against the gallery.
// No faces is an empty result, not an error.
func (r *Recognizer) IdentifyImage(ctx context.Context, img image.Image) (*IdentifyResult, error) {
	if r.gallery == nil {
		return nil, errors.New("no gallery configured")
	}

	detections := r.detector.Detect(img)
	result := &IdentifyResult{Faces: make([]FaceResult, 0, len(detections))}

	for _, d := range detections {
		face := FaceResult{Box: d.Box, Score: d.Score}

		embedding, err := r.EmbedFace(img, d.Box)
		if err != nil {
			face.Error = err.Error()
			result.Failed++
			result.Faces = append(result.Faces, face)
			continue
		}

		m, err := r.gallery.Nearest(ctx, embedding, r.matchThreshold)
		if err != nil {
			return nil, fmt.Errorf("gallery lookup: %w", err)
		}
		if m != nil {
			face.Matched = true
			face.Person = m.Face.PersonName
			face.UID = m.Face.PersonUID
			face.Distance = m.Distance
			result.Matched++
		}
		result.Faces = append(result.Faces, face)
	}

	return result, nil
}

// BestEmbedding embeds the highest-scored face in the image. ErrNoFace when
// the detector finds nothing.
func (r *Recognizer) BestEmbedding(img image.Image) ([]float32, *detect.Detection, error) {
	face, err := r.ExtractBestFace(img)
	if err != nil {
		return nil, nil, err
	}
	return face.Embedding, &face.Detection, nil
}

// ExtractedFace is the best face of an image with everything enrollment
// needs: the embedding, the detection, the aligned crop for hashing, and the
// total face count for single-face policies.
type ExtractedFace struct {
	Embedding []float32
	Detection detect.Detection
	Crop      image.Image
	Total     int
}

// ExtractBestFace crops and embeds the highest-scored face. ErrNoFace when
// the detector finds nothing.
func (r *Recognizer) ExtractBestFace(img image.Image) (*ExtractedFace, error) {
	detections := r.detector.Detect(img)
	if len(detections) == 0 {
		return nil, ErrNoFace
	}
	best := detections[0]

	crop, err := preprocess.CropSquare(img, best.Box, constants.CropMargin)
	if err != nil {
		return nil, fmt.Errorf("cropping face: %w", err)
	}
	tensor, err := preprocess.ToTensor(crop, r.embedder.Spec())
	if err != nil {
		return nil, fmt.Errorf("preprocessing face: %w", err)
	}
	embedding, err := r.embedder.Embed(tensor)
	if err != nil {
		return nil, err
	}

	return &ExtractedFace{
		Embedding: embedding,
		Detection: best,
		Crop:      crop,
		Total:     len(detections),
	}, nil
}

// VerifyResult is the outcome of a 1:1 face comparison.
type VerifyResult struct {
	Same       bool    `json:"same"`
	Similarity float64 `json:"similarity"` // cosine similarity
	Distance   float64 `json:"distance"`   // cosine distance
	Threshold  float64 `json:"threshold"`  // distance cutoff applied
}

// VerifyImages compares the best face of each image. With multiple faces in
// a frame the highest-scored one wins.
func (r *Recognizer) VerifyImages(imgA, imgB image.Image) (*VerifyResult, error) {
	embA, _, err := r.BestEmbedding(imgA)
	if err != nil {
		return nil, fmt.Errorf("first image: %w", err)
	}
	embB, _, err := r.BestEmbedding(imgB)
	if err != nil {
		return nil, fmt.Errorf("second image: %w", err)
	}

	similarity := match.CosineSimilarity(embA, embB)
	distance := 1 - similarity
	return &VerifyResult{
		Same:       distance <= r.verifyThreshold,
		Similarity: similarity,
		Distance:   distance,
		Threshold:  r.verifyThreshold,
	}, nil
}

// ClassifyResult is the classifier verdict for one face.
type ClassifyResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Accepted   bool    `json:"accepted"` // confidence above the gate
}

// ClassifyImage runs the best face through the trained classifier.
func (r *Recognizer) ClassifyImage(img image.Image) (*ClassifyResult, error) {
	if r.classifier == nil {
		return nil, errors.New("no classifier configured")
	}

	embedding, _, err := r.BestEmbedding(img)
	if err != nil {
		return nil, err
	}

	pred, err := r.classifier.Predict(embedding)
	if err != nil {
		return nil, fmt.Errorf("classifier inference: %w", err)
	}
	return &ClassifyResult{
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Accepted:   pred.Confidence >= r.minConfidence,
	}, nil
}
