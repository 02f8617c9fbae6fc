package gallery

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/kozaktomas/face-match/internal/constants"
)

// IndexMetadata stores metadata for validating a cached HNSW index against
// the backing store.
type IndexMetadata struct {
	FaceCount int       `json:"face_count"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"` // For future compatibility
}

const indexMetadataVersion = 1

// Index wraps the HNSW graph for sub-linear nearest-neighbor search over
// enrolled face embeddings, keyed by face UID.
type Index struct {
	graph      *hnsw.Graph[string]
	savedGraph *hnsw.SavedGraph[string] // For persistence
	idToFace   map[string]*FaceRecord
	mu         sync.RWMutex
	path       string // Path to save/load index
}

// NewIndex creates a new empty HNSW index.
func NewIndex() *Index {
	return &Index{
		idToFace: make(map[string]*FaceRecord),
	}
}

// newGraph creates an HNSW graph with cosine distance and the house
// parameters for 512-dim face embeddings.
func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = constants.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(constants.HNSWMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromFaces builds the index from a slice of faces.
func (h *Index) BuildFromFaces(faces []FaceRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(faces) == 0 {
		h.graph = nil
		h.savedGraph = nil
		h.idToFace = make(map[string]*FaceRecord)
		return nil
	}

	g := newGraph()
	h.idToFace = make(map[string]*FaceRecord, len(faces))

	for i := range faces {
		face := &faces[i]
		if len(face.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(face.FaceUID, face.Embedding))
		h.idToFace[face.FaceUID] = face
	}

	h.graph = g
	h.savedGraph = nil
	return nil
}

// Add adds a single face to the index. When the index was loaded from disk,
// the insert goes into the loaded graph so search and the next Save see it.
func (h *Index) Add(face *FaceRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(face.Embedding) == 0 {
		return nil
	}

	graph := h.graph
	if h.savedGraph != nil {
		graph = h.savedGraph.Graph
	}
	if graph == nil {
		graph = newGraph()
		h.graph = graph
	}

	graph.Add(hnsw.MakeNode(face.FaceUID, face.Embedding))
	h.idToFace[face.FaceUID] = face
	return nil
}

// Delete removes a face from search results. The HNSW graph itself does not
// support deletion; lookups filter through idToFace instead.
func (h *Index) Delete(faceUID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.idToFace, faceUID)
}

// Count returns the number of indexed faces.
func (h *Index) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.idToFace)
}

// IsEmpty returns true if no graph data is loaded.
func (h *Index) IsEmpty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.graph == nil && h.savedGraph == nil
}

// SearchWithDistance finds faces near the query embedding, over-fetching to
// compensate for deleted entries and distance filtering. maxDistance <= 0
// disables the cutoff.
func (h *Index) SearchWithDistance(
	query []float32, limit int, maxDistance float64,
) ([]FaceRecord, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil && h.savedGraph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	// Request more candidates to ensure we have enough after filtering.
	searchK := limit * constants.HNSWSearchMultiplier
	searchK = max(searchK, 100) // Minimum search size for better recall

	var neighbors []hnsw.Node[string]
	if h.savedGraph != nil {
		neighbors = h.savedGraph.Search(query, searchK)
	} else {
		neighbors = h.graph.Search(query, searchK)
	}

	var faces []FaceRecord
	var distances []float64
	for _, n := range neighbors {
		face, ok := h.idToFace[n.Key]
		if !ok {
			continue // Deleted entry still present in the graph
		}
		d := hnsw.CosineDistance(query, n.Value)
		if maxDistance > 0 && float64(d) > maxDistance {
			continue
		}
		faces = append(faces, *face)
		distances = append(distances, float64(d))
		if limit > 0 && len(faces) >= limit {
			break
		}
	}
	return faces, distances, nil
}

// SetPath sets the path for saving/loading the index.
func (h *Index) SetPath(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
}

// Path returns the configured persistence path.
func (h *Index) Path() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.path
}

// saveFaceRecords saves face records to a .faces file for fast loading at startup.
func saveFaceRecords(path string, faces []FaceRecord) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(faces); err != nil {
		return fmt.Errorf("encoding face records: %w", err)
	}
	if err := os.WriteFile(path+".faces", buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing faces file: %w", err)
	}
	return nil
}

// loadFaceRecords loads face records from a .faces file.
func loadFaceRecords(path string) ([]FaceRecord, error) {
	data, err := os.ReadFile(path + ".faces")
	if err != nil {
		return nil, fmt.Errorf("reading faces file: %w", err)
	}

	var faces []FaceRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&faces); err != nil {
		return nil, fmt.Errorf("decoding face records: %w", err)
	}
	return faces, nil
}

// LoadIndexMetadata loads metadata from the index's .meta sidecar file.
func LoadIndexMetadata(path string) (IndexMetadata, error) {
	var metadata IndexMetadata

	data, err := os.ReadFile(path + ".meta")
	if err != nil {
		return metadata, fmt.Errorf("reading index metadata: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("parsing index metadata: %w", err)
	}
	return metadata, nil
}

// Save persists the graph, its metadata, and the face records to the
// configured path. An empty index removes any stale files instead.
func (h *Index) Save() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.path == "" {
		return nil // No path configured, in-memory only
	}

	if h.graph == nil && h.savedGraph == nil {
		_ = os.Remove(h.path)
		_ = os.Remove(h.path + ".meta")
		_ = os.Remove(h.path + ".faces")
		return nil
	}

	f, err := os.Create(h.path)
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	if h.savedGraph != nil {
		err = h.savedGraph.Export(f)
	} else {
		err = h.graph.Export(f)
	}
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("exporting HNSW graph: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}

	metadata := IndexMetadata{
		FaceCount: len(h.idToFace),
		BuildTime: time.Now(),
		Version:   indexMetadataVersion,
	}
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshaling index metadata: %w", err)
	}
	if err := os.WriteFile(h.path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}

	faces := make([]FaceRecord, 0, len(h.idToFace))
	for _, face := range h.idToFace {
		faces = append(faces, *face)
	}
	return saveFaceRecords(h.path, faces)
}

// Load loads the graph and face records from disk. Returns an error when
// any of the files is missing or unreadable; callers fall back to a rebuild.
func (h *Index) Load(path string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("index file %s: %w", path, err)
	}

	saved, err := hnsw.LoadSavedGraph[string](path)
	if err != nil {
		return fmt.Errorf("loading HNSW index: %w", err)
	}

	faces, err := loadFaceRecords(path)
	if err != nil {
		return err
	}

	h.savedGraph = saved
	h.graph = nil
	h.idToFace = make(map[string]*FaceRecord, len(faces))
	for i := range faces {
		h.idToFace[faces[i].FaceUID] = &faces[i]
	}
	return nil
}
