package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-match/internal/match"
)

// Match is one gallery hit for a probe embedding.
type Match struct {
	Face     FaceRecord
	Distance float64 // cosine distance, lower = more similar
}

// Gallery combines a face store with an optional in-memory HNSW index.
// Searches go through the index when available and fall back to the store
// (linear scan for the file backend, pgvector SQL for PostgreSQL).
type Gallery struct {
	store FaceWriter
	dim   int

	mu    sync.RWMutex
	index *Index
}

// New wraps a face store. dim is the gallery's fixed embedding dimension.
func New(store FaceWriter, dim int) *Gallery {
	return &Gallery{store: store, dim: dim}
}

// Dimension returns the gallery's fixed embedding dimension.
func (g *Gallery) Dimension() int {
	return g.dim
}

// EnableHNSW loads the persisted index from indexPath when it is still
// fresh, otherwise rebuilds it from the store. An empty indexPath keeps the
// index in memory only.
func (g *Gallery) EnableHNSW(ctx context.Context, indexPath string) error {
	index := NewIndex()

	if indexPath != "" {
		if fresh, err := g.isIndexFresh(ctx, indexPath); err == nil && fresh {
			if err := index.Load(indexPath); err == nil {
				g.mu.Lock()
				g.index = index
				g.mu.Unlock()
				return nil
			}
		}
	}

	faces, err := g.store.Faces(ctx)
	if err != nil {
		return fmt.Errorf("loading faces for index build: %w", err)
	}
	if err := index.BuildFromFaces(faces); err != nil {
		return fmt.Errorf("building HNSW index: %w", err)
	}
	index.SetPath(indexPath)

	g.mu.Lock()
	g.index = index
	g.mu.Unlock()
	return nil
}

// isIndexFresh compares the persisted index metadata with the store count.
func (g *Gallery) isIndexFresh(ctx context.Context, indexPath string) (bool, error) {
	metadata, err := LoadIndexMetadata(indexPath)
	if err != nil {
		return false, err
	}
	count, err := g.store.Count(ctx)
	if err != nil {
		return false, err
	}
	return metadata.FaceCount == count, nil
}

// IndexCount returns the number of indexed faces (0 when HNSW is disabled).
func (g *Gallery) IndexCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.index == nil {
		return 0
	}
	return g.index.Count()
}

// SaveIndex persists the HNSW index to its configured path.
func (g *Gallery) SaveIndex() error {
	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()

	if index == nil {
		return nil
	}
	return index.Save()
}

// SaveIndexTo persists the HNSW index to an explicit path, which becomes the
// index's configured path.
func (g *Gallery) SaveIndexTo(path string) error {
	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()

	if index == nil {
		return nil
	}
	index.SetPath(path)
	return index.Save()
}

// Enroll stores a reference face. Missing UIDs and timestamps are filled
// in, the embedding is L2-normalized if needed, and the index is kept in
// sync. Returns the stored record.
func (g *Gallery) Enroll(ctx context.Context, face FaceRecord) (*FaceRecord, error) {
	if len(face.Embedding) != g.dim {
		return nil, fmt.Errorf("%w: got %d, gallery expects %d", ErrDimensionMismatch, len(face.Embedding), g.dim)
	}
	if face.PersonName == "" {
		return nil, fmt.Errorf("person name is required")
	}

	if norm := match.Norm(face.Embedding); math.Abs(norm-1) > 1e-3 {
		match.Normalize(face.Embedding)
	}
	if face.FaceUID == "" {
		face.FaceUID = uuid.NewString()
	}
	if face.PersonUID == "" {
		face.PersonUID = g.personUIDForName(ctx, face.PersonName)
	}
	if face.CreatedAt.IsZero() {
		face.CreatedAt = time.Now().UTC()
	}
	face.Dim = g.dim

	if err := g.store.SaveFace(ctx, face); err != nil {
		return nil, err
	}

	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()
	if index != nil {
		if err := index.Add(&face); err != nil {
			return nil, fmt.Errorf("updating HNSW index: %w", err)
		}
	}
	return &face, nil
}

// personUIDForName reuses the UID of an already-enrolled person with the
// same normalized name, or mints a new one.
func (g *Gallery) personUIDForName(ctx context.Context, name string) string {
	faces, err := g.store.FacesByPerson(ctx, name)
	if err == nil && len(faces) > 0 {
		return faces[0].PersonUID
	}
	return uuid.NewString()
}

// Nearest returns the closest gallery face within maxDistance, or nil when
// nothing qualifies.
func (g *Gallery) Nearest(ctx context.Context, embedding []float32, maxDistance float64) (*Match, error) {
	matches, err := g.NearestN(ctx, embedding, 1, maxDistance)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// NearestN returns up to limit gallery faces within maxDistance, closest
// first. maxDistance <= 0 disables the cutoff.
func (g *Gallery) NearestN(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]Match, error) {
	if len(embedding) != g.dim {
		return nil, fmt.Errorf("%w: got %d, gallery expects %d", ErrDimensionMismatch, len(embedding), g.dim)
	}

	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()

	var faces []FaceRecord
	var distances []float64
	var err error

	if index != nil && !index.IsEmpty() {
		faces, distances, err = index.SearchWithDistance(embedding, limit, maxDistance)
	} else {
		faces, distances, err = g.store.FindSimilarWithDistance(ctx, embedding, limit, maxDistance)
	}
	if err != nil {
		return nil, err
	}

	matches := make([]Match, len(faces))
	for i := range faces {
		matches[i] = Match{Face: faces[i], Distance: distances[i]}
	}
	return matches, nil
}

// Persons lists enrolled persons with face counts.
func (g *Gallery) Persons(ctx context.Context) ([]PersonSummary, error) {
	return g.store.Persons(ctx)
}

// FacesByPerson returns all faces enrolled for a person.
func (g *Gallery) FacesByPerson(ctx context.Context, name string) ([]FaceRecord, error) {
	return g.store.FacesByPerson(ctx, name)
}

// RemovePerson deletes a person and their faces, then rebuilds the index.
func (g *Gallery) RemovePerson(ctx context.Context, personUID string) (int, error) {
	removed, err := g.store.RemovePerson(ctx, personUID)
	if err != nil {
		return 0, err
	}

	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()
	if index != nil {
		if err := g.Reindex(ctx); err != nil {
			return removed, fmt.Errorf("rebuilding index after removal: %w", err)
		}
	}
	return removed, nil
}

// Reindex rebuilds the HNSW index from the store.
func (g *Gallery) Reindex(ctx context.Context) error {
	g.mu.RLock()
	index := g.index
	g.mu.RUnlock()
	if index == nil {
		return nil
	}

	faces, err := g.store.Faces(ctx)
	if err != nil {
		return fmt.Errorf("loading faces for reindex: %w", err)
	}

	fresh := NewIndex()
	if err := fresh.BuildFromFaces(faces); err != nil {
		return err
	}
	fresh.SetPath(index.Path())

	g.mu.Lock()
	g.index = fresh
	g.mu.Unlock()
	return nil
}

// Stats summarizes the gallery.
func (g *Gallery) Stats(ctx context.Context) (*Stats, error) {
	count, err := g.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	persons, err := g.store.Persons(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{Faces: count, Persons: len(persons), Dimension: g.dim}, nil
}

// Export writes the reference-set JSON for all enrolled faces.
func (g *Gallery) Export(ctx context.Context, w io.Writer) error {
	faces, err := g.store.Faces(ctx)
	if err != nil {
		return err
	}

	file := referenceFromFaces(faces, g.dim)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encoding reference set: %w", err)
	}
	return nil
}

// Import reads a reference-set JSON and enrolls every entry. Returns the
// number of faces imported.
func (g *Gallery) Import(ctx context.Context, r io.Reader) (int, error) {
	var file referenceFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("parsing reference set: %w", err)
	}

	faces, _, err := facesFromReference(&file, g.dim)
	if err != nil {
		return 0, err
	}

	imported := 0
	for _, face := range faces {
		if _, err := g.Enroll(ctx, face); err != nil {
			return imported, fmt.Errorf("enrolling %s: %w", face.PersonName, err)
		}
		imported++
	}
	return imported, nil
}
