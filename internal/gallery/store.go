package gallery

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when an embedding does not match the
// gallery's fixed dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrPersonNotFound is returned when a person UID does not exist.
var ErrPersonNotFound = errors.New("person not found")

// FaceReader provides read-only access to enrolled reference faces.
type FaceReader interface {
	// Faces returns all enrolled faces.
	Faces(ctx context.Context) ([]FaceRecord, error)
	// FacesByPerson returns all faces enrolled for a person. The name is
	// matched case- and diacritic-insensitively.
	FacesByPerson(ctx context.Context, name string) ([]FaceRecord, error)
	// Persons returns all enrolled persons with their face counts.
	Persons(ctx context.Context) ([]PersonSummary, error)
	// Count returns the total number of enrolled faces.
	Count(ctx context.Context) (int, error)
	// FindSimilarWithDistance returns the faces nearest to the embedding
	// by cosine distance, closest first, dropping results above maxDistance.
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]FaceRecord, []float64, error)
}

// FaceWriter provides write access to the reference set.
type FaceWriter interface {
	FaceReader

	// SaveFace stores one enrolled face. The embedding must match the
	// gallery dimension and already be L2-normalized.
	SaveFace(ctx context.Context, face FaceRecord) error
	// RemovePerson deletes a person and all their faces, returning the
	// number of faces removed.
	RemovePerson(ctx context.Context, personUID string) (int, error)
}
