// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Embedding constants
const (
	// EmbeddingDim is the dimensionality of the face embeddings produced by
	// the bundled model profiles (MobileFaceNet, ArcFace)
	EmbeddingDim = 512
)

// Face detection constants
const (
	// DefaultMinFaceSize is the smallest face (in pixels) the detector looks for
	DefaultMinFaceSize = 60

	// DefaultDetectionScore is the minimum cascade quality score for a detection to be kept
	DefaultDetectionScore = 5.0

	// DefaultClusterIoU is the overlap threshold used to cluster duplicate detections
	DefaultClusterIoU = 0.2

	// MaxFacesPerImage caps the number of detections processed per image
	MaxFacesPerImage = 32

	// CropMargin expands the detector's box before cropping, as a fraction of the box size
	CropMargin = 0.15
)

// Matching constants
const (
	// DefaultMatchThreshold is the default maximum cosine distance for a gallery match
	// Lower values = stricter matching
	DefaultMatchThreshold = 0.40

	// DefaultVerifyThreshold is the default maximum cosine distance for 1:1 verification
	DefaultVerifyThreshold = 0.40

	// DefaultClassifierMinConfidence is the minimum softmax probability required
	// to accept a classifier label
	DefaultClassifierMinConfidence = 0.55
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for batch scanning
	WorkerPoolSize = 4

	// MaxUploadSize is the maximum accepted request body for image uploads (32 MB)
	MaxUploadSize = 32 << 20
)

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3
)

// Duplicate enrollment constants
const (
	// DuplicateHammingThreshold is the maximum perceptual hash Hamming distance
	// at which an enrollment crop is treated as a duplicate of an existing one
	DuplicateHammingThreshold = 6
)
