package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-match/internal/match"
)

// referenceVersion is the reference-set JSON schema version this package
// reads and writes.
const referenceVersion = 1

// referenceFile is the on-disk JSON shape. It is the reference-set schema
// produced by the offline embedding converter, extended with optional
// per-entry enrollment fields. Files carrying only id+vector load fine.
type referenceFile struct {
	Version    int              `json:"version"`
	Dimension  int              `json:"dimension"`
	Count      int              `json:"count"`
	Embeddings []referenceEntry `json:"embeddings"`
}

type referenceEntry struct {
	ID        string    `json:"id"` // person name
	Vector    []float32 `json:"vector"`
	PersonUID string    `json:"person_uid,omitempty"`
	FaceUID   string    `json:"face_uid,omitempty"`
	DetScore  float64   `json:"det_score,omitempty"`
	Model     string    `json:"model,omitempty"`
	PHash     string    `json:"phash,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt string    `json:"created_at,omitempty"` // RFC 3339
}

// FileStore is the JSON file gallery backend. All faces are held in memory;
// every write persists the whole file atomically (temp file + rename).
type FileStore struct {
	mu    sync.RWMutex
	path  string
	dim   int
	faces []FaceRecord
}

// OpenFile loads a gallery from path, creating an empty store when the file
// does not exist yet. dim fixes the gallery dimension; 0 adopts the file's.
func OpenFile(path string, dim int) (*FileStore, error) {
	s := &FileStore{path: path, dim: dim}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading gallery file: %w", err)
	}

	var file referenceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing gallery file %s: %w", path, err)
	}

	faces, fileDim, err := facesFromReference(&file, dim)
	if err != nil {
		return nil, fmt.Errorf("gallery file %s: %w", path, err)
	}

	s.faces = faces
	if s.dim == 0 {
		s.dim = fileDim
	}
	return s, nil
}

// facesFromReference validates a parsed reference file and converts its
// entries to FaceRecords. Vectors are L2-normalized on import if needed.
// Entries missing UIDs (the converter's minimal schema) get fresh ones,
// sharing a person UID per distinct id.
func facesFromReference(file *referenceFile, wantDim int) ([]FaceRecord, int, error) {
	if file.Version != referenceVersion {
		return nil, 0, fmt.Errorf("unsupported version %d (want %d)", file.Version, referenceVersion)
	}
	if file.Count != len(file.Embeddings) {
		return nil, 0, fmt.Errorf("count %d does not match %d embeddings", file.Count, len(file.Embeddings))
	}
	if wantDim > 0 && file.Dimension != wantDim {
		return nil, 0, fmt.Errorf("%w: file has %d, gallery expects %d", ErrDimensionMismatch, file.Dimension, wantDim)
	}

	personUIDs := make(map[string]string)
	faces := make([]FaceRecord, 0, len(file.Embeddings))

	for i, entry := range file.Embeddings {
		if len(entry.Vector) != file.Dimension {
			return nil, 0, fmt.Errorf("%w: entry %d (%s) has %d values, file declares %d",
				ErrDimensionMismatch, i, entry.ID, len(entry.Vector), file.Dimension)
		}

		vector := make([]float32, len(entry.Vector))
		copy(vector, entry.Vector)
		if norm := match.Norm(vector); math.Abs(norm-1) > 1e-3 {
			match.Normalize(vector)
		}

		personUID := entry.PersonUID
		if personUID == "" {
			if existing, ok := personUIDs[entry.ID]; ok {
				personUID = existing
			} else {
				personUID = uuid.NewString()
			}
		}
		personUIDs[entry.ID] = personUID

		faceUID := entry.FaceUID
		if faceUID == "" {
			faceUID = uuid.NewString()
		}

		createdAt := time.Time{}
		if entry.CreatedAt != "" {
			if ts, err := time.Parse(time.RFC3339, entry.CreatedAt); err == nil {
				createdAt = ts
			}
		}

		faces = append(faces, FaceRecord{
			FaceUID:    faceUID,
			PersonUID:  personUID,
			PersonName: entry.ID,
			Embedding:  vector,
			DetScore:   entry.DetScore,
			Model:      entry.Model,
			Dim:        file.Dimension,
			PHash:      entry.PHash,
			Source:     entry.Source,
			CreatedAt:  createdAt,
		})
	}

	return faces, file.Dimension, nil
}

// referenceFromFaces builds the on-disk shape from face records.
func referenceFromFaces(faces []FaceRecord, dim int) *referenceFile {
	file := &referenceFile{
		Version:    referenceVersion,
		Dimension:  dim,
		Count:      len(faces),
		Embeddings: make([]referenceEntry, 0, len(faces)),
	}
	for _, f := range faces {
		entry := referenceEntry{
			ID:        f.PersonName,
			Vector:    f.Embedding,
			PersonUID: f.PersonUID,
			FaceUID:   f.FaceUID,
			DetScore:  f.DetScore,
			Model:     f.Model,
			PHash:     f.PHash,
			Source:    f.Source,
		}
		if !f.CreatedAt.IsZero() {
			entry.CreatedAt = f.CreatedAt.UTC().Format(time.RFC3339)
		}
		file.Embeddings = append(file.Embeddings, entry)
	}
	return file
}

// save persists the gallery atomically. Callers must hold the lock.
func (s *FileStore) save() error {
	file := referenceFromFaces(s.faces, s.dim)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling gallery: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".gallery-*.json")
	if err != nil {
		return fmt.Errorf("creating temp gallery file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing gallery file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing gallery file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing gallery file: %w", err)
	}
	return nil
}

// Dimension returns the gallery's fixed embedding dimension (0 while empty
// and unconfigured).
func (s *FileStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Faces returns a copy of all enrolled faces.
func (s *FileStore) Faces(ctx context.Context) ([]FaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	faces := make([]FaceRecord, len(s.faces))
	copy(faces, s.faces)
	return faces, nil
}

// FacesByPerson returns all faces for a person, matched by normalized name.
func (s *FileStore) FacesByPerson(ctx context.Context, name string) ([]FaceRecord, error) {
	normalized := match.NormalizePersonName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var faces []FaceRecord
	for _, f := range s.faces {
		if match.NormalizePersonName(f.PersonName) == normalized {
			faces = append(faces, f)
		}
	}
	return faces, nil
}

// Persons returns enrolled persons with face counts, sorted by name.
func (s *FileStore) Persons(ctx context.Context) ([]PersonSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byUID := make(map[string]*PersonSummary)
	for _, f := range s.faces {
		if p, ok := byUID[f.PersonUID]; ok {
			p.FaceCount++
			continue
		}
		byUID[f.PersonUID] = &PersonSummary{UID: f.PersonUID, Name: f.PersonName, FaceCount: 1}
	}

	persons := make([]PersonSummary, 0, len(byUID))
	for _, p := range byUID {
		persons = append(persons, *p)
	}
	sort.Slice(persons, func(i, j int) bool {
		return persons[i].Name < persons[j].Name
	})
	return persons, nil
}

// Count returns the number of enrolled faces.
func (s *FileStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.faces), nil
}

// FindSimilarWithDistance scans all faces and returns the nearest by cosine
// distance, closest first. maxDistance <= 0 disables the cutoff.
func (s *FileStore) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]FaceRecord, []float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// The single-result lookup skips the sort and takes the best-match scan.
	if limit == 1 {
		refs := make([][]float32, len(s.faces))
		for i := range s.faces {
			refs[i] = s.faces[i].Embedding
		}
		idx, sim := match.BestMatch(embedding, refs)
		if idx < 0 {
			return nil, nil, nil
		}
		d := 1 - sim
		if maxDistance > 0 && d > maxDistance {
			return nil, nil, nil
		}
		return []FaceRecord{s.faces[idx]}, []float64{d}, nil
	}

	type scored struct {
		face     FaceRecord
		distance float64
	}

	candidates := make([]scored, 0, len(s.faces))
	for _, f := range s.faces {
		d := match.CosineDistance(embedding, f.Embedding)
		if maxDistance > 0 && d > maxDistance {
			continue
		}
		candidates = append(candidates, scored{face: f, distance: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].distance < candidates[j].distance
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	faces := make([]FaceRecord, len(candidates))
	distances := make([]float64, len(candidates))
	for i, c := range candidates {
		faces[i] = c.face
		distances[i] = c.distance
	}
	return faces, distances, nil
}

// SaveFace stores one enrolled face and persists the gallery.
func (s *FileStore) SaveFace(ctx context.Context, face FaceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		s.dim = len(face.Embedding)
	}
	if len(face.Embedding) != s.dim {
		return fmt.Errorf("%w: got %d, gallery expects %d", ErrDimensionMismatch, len(face.Embedding), s.dim)
	}

	s.faces = append(s.faces, face)
	if err := s.save(); err != nil {
		s.faces = s.faces[:len(s.faces)-1]
		return err
	}
	return nil
}

// RemovePerson deletes a person's faces and persists the gallery.
func (s *FileStore) RemovePerson(ctx context.Context, personUID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]FaceRecord, 0, len(s.faces))
	removed := 0
	for _, f := range s.faces {
		if f.PersonUID == personUID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", ErrPersonNotFound, personUID)
	}

	prev := s.faces
	s.faces = kept
	if err := s.save(); err != nil {
		s.faces = prev
		return 0, err
	}
	return removed, nil
}
