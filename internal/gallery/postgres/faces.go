package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/match"
)

const faceColumns = `face_uid, person_uid, person_name, embedding, det_score, model, dim, phash, source, created_at`

// FaceRepository provides PostgreSQL-backed reference face storage using
// pgvector cosine similarity. It implements gallery.FaceWriter.
type FaceRepository struct {
	pool *Pool
}

// NewFaceRepository creates a new PostgreSQL face repository.
func NewFaceRepository(pool *Pool) *FaceRepository {
	return &FaceRepository{pool: pool}
}

// scanFaces reads face rows into records.
func scanFaces(rows *sql.Rows) ([]gallery.FaceRecord, error) {
	var faces []gallery.FaceRecord
	for rows.Next() {
		var f gallery.FaceRecord
		var vec pgvector.Vector
		if err := rows.Scan(
			&f.FaceUID, &f.PersonUID, &f.PersonName, &vec,
			&f.DetScore, &f.Model, &f.Dim, &f.PHash, &f.Source, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		f.Embedding = vec.Slice()
		faces = append(faces, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// Faces returns all enrolled faces.
func (r *FaceRepository) Faces(ctx context.Context) ([]gallery.FaceRecord, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf("SELECT %s FROM faces ORDER BY created_at", faceColumns))
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// FacesByPerson returns all faces for a person by name. Names are
// normalized before comparison (lowercase, no diacritics, dashes to spaces)
// so "jan-novak" matches "Jan Novák".
func (r *FaceRepository) FacesByPerson(ctx context.Context, name string) ([]gallery.FaceRecord, error) {
	// Normalize input in Go (matches match.NormalizePersonName behavior);
	// LOWER + unaccent + REPLACE mirrors it on the SQL side.
	normalized := match.NormalizePersonName(name)

	query := fmt.Sprintf(`
		SELECT %s FROM faces
		WHERE LOWER(REPLACE(unaccent(person_name), '-', ' ')) = $1
		ORDER BY created_at
	`, faceColumns)

	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("query faces by person: %w", err)
	}
	defer rows.Close()

	return scanFaces(rows)
}

// Persons returns all enrolled persons with their face counts.
func (r *FaceRepository) Persons(ctx context.Context) ([]gallery.PersonSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT person_uid, MIN(person_name), COUNT(*)
		FROM faces
		GROUP BY person_uid
		ORDER BY MIN(person_name)
	`)
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []gallery.PersonSummary
	for rows.Next() {
		var p gallery.PersonSummary
		if err := rows.Scan(&p.UID, &p.Name, &p.FaceCount); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// Count returns the total number of enrolled faces.
func (r *FaceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// FindSimilarWithDistance finds the nearest faces by cosine distance using
// the pgvector <=> operator with ef_search tuned for better recall.
// maxDistance <= 0 disables the cutoff.
func (r *FaceRepository) FindSimilarWithDistance(
	ctx context.Context, embedding []float32, limit int, maxDistance float64,
) ([]gallery.FaceRecord, []float64, error) {
	// Use transaction to set ef_search for better recall (matching the
	// in-memory HNSW config).
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", constants.HNSWEfSearch)); err != nil {
		return nil, nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s, embedding <=> $1::vector AS distance
		FROM faces
		ORDER BY embedding <=> $1::vector
		LIMIT $2
	`, faceColumns)

	vec := pgvector.NewVector(embedding)
	rows, err := tx.QueryContext(ctx, query, vec, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var faces []gallery.FaceRecord
	var distances []float64
	for rows.Next() {
		var f gallery.FaceRecord
		var v pgvector.Vector
		var distance float64
		if err := rows.Scan(
			&f.FaceUID, &f.PersonUID, &f.PersonName, &v,
			&f.DetScore, &f.Model, &f.Dim, &f.PHash, &f.Source, &f.CreatedAt,
			&distance,
		); err != nil {
			return nil, nil, fmt.Errorf("scan similar face: %w", err)
		}
		if maxDistance > 0 && distance > maxDistance {
			continue
		}
		f.Embedding = v.Slice()
		faces = append(faces, f)
		distances = append(distances, distance)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate similar faces: %w", err)
	}
	return faces, distances, nil
}

// SaveFace stores one enrolled face.
func (r *FaceRepository) SaveFace(ctx context.Context, face gallery.FaceRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO faces (face_uid, person_uid, person_name, embedding, det_score, model, dim, phash, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		face.FaceUID, face.PersonUID, face.PersonName, pgvector.NewVector(face.Embedding),
		face.DetScore, face.Model, face.Dim, face.PHash, face.Source, face.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert face: %w", err)
	}
	return nil
}

// RemovePerson deletes a person and all their faces.
func (r *FaceRepository) RemovePerson(ctx context.Context, personUID string) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM faces WHERE person_uid = $1", personUID)
	if err != nil {
		return 0, fmt.Errorf("delete person faces: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: %s", gallery.ErrPersonNotFound, personUID)
	}
	return int(removed), nil
}
