package handlers

import (
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-match/internal/constants"
	"github.com/kozaktomas/face-match/internal/preprocess"
)

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// formImage parses the multipart form (once per request) and decodes the
// image uploaded under the given field name.
func formImage(r *http.Request, field string) (image.Image, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
			return nil, fmt.Errorf("parsing multipart form: %w", err)
		}
	}

	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %q file field", field)
	}
	defer file.Close()

	img, err := preprocess.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", field, err)
	}
	return img, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
