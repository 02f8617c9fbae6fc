package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/fingerprint"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/recognize"
)

// PersonsHandler serves gallery management: enrollment, listing, removal,
// and stats.
type PersonsHandler struct {
	gallery    *gallery.Gallery
	recognizer *recognize.Recognizer
}

// NewPersonsHandler creates a persons handler.
func NewPersonsHandler(g *gallery.Gallery, rec *recognize.Recognizer) *PersonsHandler {
	return &PersonsHandler{gallery: g, recognizer: rec}
}

// Enroll handles POST /api/v1/persons: multipart form with a "name" value
// and an "image" file. The best face is enrolled; a force flag overrides the
// single-face policy and the duplicate guard.
func (h *PersonsHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	name := r.FormValue("name")
	if name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	force := r.FormValue("force") == "true"

	face, err := h.recognizer.ExtractBestFace(img)
	if errors.Is(err, recognize.ErrNoFace) {
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
		return
	}
	if err != nil {
		log.Printf("enroll extraction failed: %v", err)
		respondError(w, http.StatusInternalServerError, "face extraction failed")
		return
	}

	if face.Total > 1 && !force {
		respondError(w, http.StatusConflict, "multiple faces detected, pass force=true to enroll the best one")
		return
	}

	hash := fingerprint.HashImage(face.Crop)
	if !force {
		duplicate, err := h.isDuplicate(r, name, hash.PHash)
		if err != nil {
			log.Printf("duplicate check failed for %s: %v", sanitizeForLog(name), err)
			respondError(w, http.StatusInternalServerError, "duplicate check failed")
			return
		}
		if duplicate {
			respondError(w, http.StatusConflict, "this capture is already enrolled for this person")
			return
		}
	}

	record, err := h.gallery.Enroll(r.Context(), gallery.FaceRecord{
		PersonName: name,
		Embedding:  face.Embedding,
		DetScore:   face.Detection.Score,
		PHash:      hash.PHash,
	})
	if err != nil {
		log.Printf("enroll failed for %s: %v", sanitizeForLog(name), err)
		respondError(w, http.StatusInternalServerError, "enrollment failed")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"face_uid":   record.FaceUID,
		"person_uid": record.PersonUID,
		"person":     record.PersonName,
		"det_score":  record.DetScore,
	})
}

// isDuplicate reports whether the crop hash is within the Hamming threshold
// of a face already enrolled for the same person.
func (h *PersonsHandler) isDuplicate(r *http.Request, name, pHash string) (bool, error) {
	existing, err := h.gallery.FacesByPerson(r.Context(), name)
	if err != nil {
		return false, err
	}
	for _, f := range existing {
		if f.PHash == "" {
			continue
		}
		d, err := fingerprint.HammingDistanceHex(pHash, f.PHash)
		if err != nil {
			continue
		}
		if d <= constants.DuplicateHammingThreshold {
			return true, nil
		}
	}
	return false, nil
}

// List handles GET /api/v1/persons.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	persons, err := h.gallery.Persons(r.Context())
	if err != nil {
		log.Printf("listing persons failed: %v", err)
		respondError(w, http.StatusInternalServerError, "listing persons failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"persons": persons,
		"count":   len(persons),
	})
}

// Remove handles DELETE /api/v1/persons/{uid}.
func (h *PersonsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		respondError(w, http.StatusBadRequest, "uid is required")
		return
	}

	removed, err := h.gallery.RemovePerson(r.Context(), uid)
	if errors.Is(err, gallery.ErrPersonNotFound) {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	if err != nil {
		log.Printf("removing person %s failed: %v", sanitizeForLog(uid), err)
		respondError(w, http.StatusInternalServerError, "removal failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"person_uid":    uid,
		"faces_removed": removed,
	})
}

// Stats handles GET /api/v1/gallery/stats.
func (h *PersonsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gallery.Stats(r.Context())
	if err != nil {
		log.Printf("gallery stats failed: %v", err)
		respondError(w, http.StatusInternalServerError, "stats failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces":     stats.Faces,
		"persons":   stats.Persons,
		"dimension": stats.Dimension,
		"indexed":   h.gallery.IndexCount(),
	})
}
