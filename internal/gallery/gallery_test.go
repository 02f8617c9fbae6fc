package gallery_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/gallery/mock"
	"github.com/kozaktomas/face-match/internal/match"
)

func axisVector(dim, axis int) []float32 {
	v := make([]float32, dim)
	v[axis] = 1.0
	return v
}

func seededGallery(t *testing.T) (*gallery.Gallery, *mock.FaceStore) {
	t.Helper()

	store := mock.NewFaceStore()
	store.AddFace(gallery.FaceRecord{
		FaceUID: "f-alice", PersonUID: "p-alice", PersonName: "Alice",
		Embedding: axisVector(4, 0), Dim: 4,
	})
	store.AddFace(gallery.FaceRecord{
		FaceUID: "f-bob", PersonUID: "p-bob", PersonName: "Bob",
		Embedding: axisVector(4, 1), Dim: 4,
	})
	return gallery.New(store, 4), store
}

func TestGallery_Enroll(t *testing.T) {
	ctx := context.Background()
	g, store := seededGallery(t)

	// Unnormalized vector, no UIDs, no timestamp.
	vec := []float32{3, 0, 0, 0}
	face, err := g.Enroll(ctx, gallery.FaceRecord{PersonName: "Carol", Embedding: vec})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if face.FaceUID == "" || face.PersonUID == "" {
		t.Error("expected generated UIDs")
	}
	if face.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
	if face.Dim != 4 {
		t.Errorf("expected dim 4, got %d", face.Dim)
	}
	if norm := match.Norm(face.Embedding); math.Abs(norm-1) > 1e-6 {
		t.Errorf("expected normalized embedding, got norm %v", norm)
	}

	count, _ := store.Count(ctx)
	if count != 3 {
		t.Errorf("expected 3 faces in store, got %d", count)
	}
}

func TestGallery_EnrollReusesPersonUID(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	// Same person, different diacritics and casing.
	face, err := g.Enroll(ctx, gallery.FaceRecord{PersonName: "alíce", Embedding: axisVector(4, 2)})
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if face.PersonUID != "p-alice" {
		t.Errorf("expected existing person UID p-alice, got %s", face.PersonUID)
	}
}

func TestGallery_EnrollValidation(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	tests := []struct {
		name string
		face gallery.FaceRecord
	}{
		{
			name: "wrong dimension",
			face: gallery.FaceRecord{PersonName: "Dan", Embedding: axisVector(8, 0)},
		},
		{
			name: "missing name",
			face: gallery.FaceRecord{Embedding: axisVector(4, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Enroll(ctx, tt.face); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestGallery_Nearest(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	m, err := g.Nearest(ctx, axisVector(4, 0), 0.4)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match, got nil")
	}
	if m.Face.PersonName != "Alice" {
		t.Errorf("expected Alice, got %s", m.Face.PersonName)
	}
	if m.Distance > 1e-6 {
		t.Errorf("expected zero distance, got %v", m.Distance)
	}

	// Orthogonal probe: distance 1.0 to everything, above the cutoff.
	m, err = g.Nearest(ctx, axisVector(4, 3), 0.4)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m != nil {
		t.Errorf("expected no match above cutoff, got %s (distance %v)", m.Face.PersonName, m.Distance)
	}
}

func TestGallery_NearestDimensionCheck(t *testing.T) {
	g, _ := seededGallery(t)
	if _, err := g.Nearest(context.Background(), axisVector(8, 0), 0.4); !errors.Is(err, gallery.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestGallery_NearestWithHNSW(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	if err := g.EnableHNSW(ctx, ""); err != nil {
		t.Fatalf("EnableHNSW: %v", err)
	}
	if g.IndexCount() != 2 {
		t.Fatalf("expected 2 indexed faces, got %d", g.IndexCount())
	}

	m, err := g.Nearest(ctx, axisVector(4, 1), 0.4)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m == nil || m.Face.PersonName != "Bob" {
		t.Fatalf("expected Bob via index, got %+v", m)
	}

	// Enrollment keeps the index in sync.
	if _, err := g.Enroll(ctx, gallery.FaceRecord{PersonName: "Carol", Embedding: axisVector(4, 2)}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if g.IndexCount() != 3 {
		t.Errorf("expected 3 indexed faces after enroll, got %d", g.IndexCount())
	}

	m, err = g.Nearest(ctx, axisVector(4, 2), 0.4)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m == nil || m.Face.PersonName != "Carol" {
		t.Fatalf("expected Carol via index, got %+v", m)
	}
}

func TestGallery_EnrollAfterIndexLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "faces.hnsw")

	store := mock.NewFaceStore()
	store.AddFace(gallery.FaceRecord{
		FaceUID: "f-alice", PersonUID: "p-alice", PersonName: "Alice",
		Embedding: axisVector(4, 0), Dim: 4,
	})

	g := gallery.New(store, 4)
	if err := g.EnableHNSW(ctx, path); err != nil {
		t.Fatalf("EnableHNSW: %v", err)
	}
	if err := g.SaveIndex(); err != nil {
		t.Fatalf("SaveIndex: %v", err)
	}

	// Fresh gallery over the same store: the index comes back from disk.
	g = gallery.New(store, 4)
	if err := g.EnableHNSW(ctx, path); err != nil {
		t.Fatalf("EnableHNSW after restart: %v", err)
	}
	if g.IndexCount() != 1 {
		t.Fatalf("expected 1 indexed face after load, got %d", g.IndexCount())
	}

	if _, err := g.Enroll(ctx, gallery.FaceRecord{PersonName: "Bob", Embedding: axisVector(4, 1)}); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if g.IndexCount() != 2 {
		t.Errorf("expected 2 indexed faces after enroll, got %d", g.IndexCount())
	}

	m, err := g.Nearest(ctx, axisVector(4, 1), 0.1)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m == nil || m.Face.PersonName != "Bob" {
		t.Fatalf("face enrolled after index load not searchable, got %+v", m)
	}
}

func TestGallery_RemovePersonRebuildsIndex(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	if err := g.EnableHNSW(ctx, ""); err != nil {
		t.Fatalf("EnableHNSW: %v", err)
	}

	removed, err := g.RemovePerson(ctx, "p-alice")
	if err != nil {
		t.Fatalf("RemovePerson: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 face removed, got %d", removed)
	}
	if g.IndexCount() != 1 {
		t.Errorf("expected 1 indexed face after removal, got %d", g.IndexCount())
	}

	m, err := g.Nearest(ctx, axisVector(4, 0), 0.4)
	if err != nil {
		t.Fatalf("Nearest: %v", err)
	}
	if m != nil {
		t.Errorf("expected no match for removed person, got %s", m.Face.PersonName)
	}
}

func TestGallery_Stats(t *testing.T) {
	g, _ := seededGallery(t)

	stats, err := g.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Faces != 2 || stats.Persons != 2 || stats.Dimension != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestGallery_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	g, _ := seededGallery(t)

	var buf bytes.Buffer
	if err := g.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.Contains(buf.String(), `"dimension": 4`) {
		t.Errorf("expected dimension in export, got:\n%s", buf.String())
	}

	target := gallery.New(mock.NewFaceStore(), 4)
	imported, err := target.Import(ctx, &buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if imported != 2 {
		t.Errorf("expected 2 faces imported, got %d", imported)
	}

	persons, err := target.Persons(ctx)
	if err != nil {
		t.Fatalf("Persons: %v", err)
	}
	if len(persons) != 2 {
		t.Errorf("expected 2 persons after import, got %d", len(persons))
	}
}

func TestGallery_StoreErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("store down")

	store := mock.NewFaceStore()
	store.SaveFaceError = boom
	g := gallery.New(store, 4)

	if _, err := g.Enroll(ctx, gallery.FaceRecord{PersonName: "Eve", Embedding: axisVector(4, 0)}); !errors.Is(err, boom) {
		t.Errorf("expected store error from Enroll, got %v", err)
	}

	store = mock.NewFaceStore()
	store.FindSimilarError = boom
	g = gallery.New(store, 4)
	if _, err := g.Nearest(ctx, axisVector(4, 0), 0.4); !errors.Is(err, boom) {
		t.Errorf("expected store error from Nearest, got %v", err)
	}
}
