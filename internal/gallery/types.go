// Package gallery stores the reference face embeddings that probe faces are
// matched against. It offers a JSON file backend (the native format of the
// reference set) and a PostgreSQL/pgvector backend, with an optional
// in-memory HNSW index layered on top of either.
package gallery

import "time"

// FaceRecord is one enrolled reference face.
type FaceRecord struct {
	FaceUID    string    `json:"face_uid"`
	PersonUID  string    `json:"person_uid"`
	PersonName string    `json:"person_name"`
	Embedding  []float32 `json:"embedding"`
	DetScore   float64   `json:"det_score,omitempty"`
	Model      string    `json:"model,omitempty"` // embedding profile used at enrollment
	Dim        int       `json:"dim"`
	PHash      string    `json:"phash,omitempty"`  // perceptual hash of the enrolled crop (hex)
	Source     string    `json:"source,omitempty"` // where the face came from (file name, upload)
	CreatedAt  time.Time `json:"created_at"`
}

// PersonSummary lists one enrolled person with their face count.
type PersonSummary struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	FaceCount int    `json:"face_count"`
}

// Stats summarizes gallery contents.
type Stats struct {
	Faces     int `json:"faces"`
	Persons   int `json:"persons"`
	Dimension int `json:"dimension"`
}
