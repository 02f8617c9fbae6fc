// Package mock provides a map-backed gallery store for testing, with error
// injection on every interface method.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/match"
)

// FaceStore is a mock implementation of gallery.FaceWriter.
type FaceStore struct {
	mu    sync.RWMutex
	faces []gallery.FaceRecord

	// Error injection
	FacesError        error
	FacesByPersonErr  error
	PersonsError      error
	CountError        error
	FindSimilarError  error
	SaveFaceError     error
	RemovePersonError error
}

// NewFaceStore creates an empty mock store.
func NewFaceStore() *FaceStore {
	return &FaceStore{}
}

// AddFace seeds the store without going through SaveFace error injection.
func (m *FaceStore) AddFace(face gallery.FaceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = append(m.faces, face)
}

// Faces returns all stored faces.
func (m *FaceStore) Faces(ctx context.Context) ([]gallery.FaceRecord, error) {
	if m.FacesError != nil {
		return nil, m.FacesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	faces := make([]gallery.FaceRecord, len(m.faces))
	copy(faces, m.faces)
	return faces, nil
}

// FacesByPerson returns faces with a matching normalized person name.
func (m *FaceStore) FacesByPerson(ctx context.Context, name string) ([]gallery.FaceRecord, error) {
	if m.FacesByPersonErr != nil {
		return nil, m.FacesByPersonErr
	}
	normalized := match.NormalizePersonName(name)

	m.mu.RLock()
	defer m.mu.RUnlock()
	var faces []gallery.FaceRecord
	for _, f := range m.faces {
		if match.NormalizePersonName(f.PersonName) == normalized {
			faces = append(faces, f)
		}
	}
	return faces, nil
}

// Persons returns stored persons with face counts, sorted by name.
func (m *FaceStore) Persons(ctx context.Context) ([]gallery.PersonSummary, error) {
	if m.PersonsError != nil {
		return nil, m.PersonsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	byUID := make(map[string]*gallery.PersonSummary)
	for _, f := range m.faces {
		if p, ok := byUID[f.PersonUID]; ok {
			p.FaceCount++
			continue
		}
		byUID[f.PersonUID] = &gallery.PersonSummary{UID: f.PersonUID, Name: f.PersonName, FaceCount: 1}
	}

	persons := make([]gallery.PersonSummary, 0, len(byUID))
	for _, p := range byUID {
		persons = append(persons, *p)
	}
	sort.Slice(persons, func(i, j int) bool { return persons[i].Name < persons[j].Name })
	return persons, nil
}

// Count returns the number of stored faces.
func (m *FaceStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.faces), nil
}

// FindSimilarWithDistance scans stored faces by cosine distance.
func (m *FaceStore) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]gallery.FaceRecord, []float64, error) {
	if m.FindSimilarError != nil {
		return nil, nil, m.FindSimilarError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		face     gallery.FaceRecord
		distance float64
	}
	var candidates []scored
	for _, f := range m.faces {
		d := match.CosineDistance(embedding, f.Embedding)
		if maxDistance > 0 && d > maxDistance {
			continue
		}
		candidates = append(candidates, scored{face: f, distance: d})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].distance < candidates[j].distance })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	faces := make([]gallery.FaceRecord, len(candidates))
	distances := make([]float64, len(candidates))
	for i, c := range candidates {
		faces[i] = c.face
		distances[i] = c.distance
	}
	return faces, distances, nil
}

// SaveFace stores one face.
func (m *FaceStore) SaveFace(ctx context.Context, face gallery.FaceRecord) error {
	if m.SaveFaceError != nil {
		return m.SaveFaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = append(m.faces, face)
	return nil
}

// RemovePerson deletes a person's faces.
func (m *FaceStore) RemovePerson(ctx context.Context, personUID string) (int, error) {
	if m.RemovePersonError != nil {
		return 0, m.RemovePersonError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.faces[:0]
	removed := 0
	for _, f := range m.faces {
		if f.PersonUID == personUID {
			removed++
			continue
		}
		kept = append(kept, f)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", gallery.ErrPersonNotFound, personUID)
	}
	m.faces = kept
	return removed, nil
}
