package handlers

import (
	"errors"
	"image"
	"log"
	"net/http"

	"github.com/kozaktomas/face-match/internal/detect"
	"github.com/kozaktomas/face-match/internal/recognize"
)

// RecognitionHandler serves the inference endpoints: detect, embed,
// identify, verify, and classify.
type RecognitionHandler struct {
	recognizer *recognize.Recognizer
	detector   recognize.FaceDetector
	hasGallery bool
	hasClf     bool
}

// NewRecognitionHandler creates a recognition handler. hasGallery and
// hasClassifier gate the endpoints that need those stages, so a server
// started without a gallery or classifier answers 503 instead of 500.
func NewRecognitionHandler(
	rec *recognize.Recognizer, detector recognize.FaceDetector, hasGallery, hasClassifier bool,
) *RecognitionHandler {
	return &RecognitionHandler{
		recognizer: rec,
		detector:   detector,
		hasGallery: hasGallery,
		hasClf:     hasClassifier,
	}
}

// detectionResponse is one bounding box in API form: pixel coordinates plus
// the relative [x1, y1, x2, y2] corners, so clients can draw overlays
// without knowing the source resolution.
type detectionResponse struct {
	X      int       `json:"x"`
	Y      int       `json:"y"`
	Width  int       `json:"width"`
	Height int       `json:"height"`
	BBox   []float64 `json:"bbox"`
	Score  float64   `json:"score"`
}

func boxResponse(box image.Rectangle, score float64, bounds image.Rectangle) detectionResponse {
	return detectionResponse{
		X:      box.Min.X,
		Y:      box.Min.Y,
		Width:  box.Dx(),
		Height: box.Dy(),
		BBox:   detect.PixelBBoxToRelative(detect.RectToCorners(box), bounds.Dx(), bounds.Dy()),
		Score:  score,
	}
}

// Detect handles POST /api/v1/detect.
func (h *RecognitionHandler) Detect(w http.ResponseWriter, r *http.Request) {
	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	detections := h.detector.Detect(img)
	faces := make([]detectionResponse, 0, len(detections))
	for _, d := range detections {
		faces = append(faces, boxResponse(d.Box, d.Score, img.Bounds()))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces": faces,
		"count": len(faces),
	})
}

// Embed handles POST /api/v1/embed. It returns the embedding of the best
// face in the image.
func (h *RecognitionHandler) Embed(w http.ResponseWriter, r *http.Request) {
	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	embedding, detection, err := h.recognizer.BestEmbedding(img)
	if errors.Is(err, recognize.ErrNoFace) {
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
		return
	}
	if err != nil {
		log.Printf("embed failed: %v", err)
		respondError(w, http.StatusInternalServerError, "embedding failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"embedding": embedding,
		"dimension": len(embedding),
		"face":      boxResponse(detection.Box, detection.Score, img.Bounds()),
	})
}

// identifiedFace is one face in the identify response: the detection box in
// API form plus its match outcome.
type identifiedFace struct {
	detectionResponse
	Matched   bool    `json:"matched"`
	Person    string  `json:"person,omitempty"`
	PersonUID string  `json:"person_uid,omitempty"`
	Distance  float64 `json:"distance,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Identify handles POST /api/v1/identify.
func (h *RecognitionHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if !h.hasGallery {
		respondError(w, http.StatusServiceUnavailable, "no gallery configured")
		return
	}

	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.recognizer.IdentifyImage(r.Context(), img)
	if err != nil {
		log.Printf("identify failed: %v", err)
		respondError(w, http.StatusInternalServerError, "recognition failed")
		return
	}

	faces := make([]identifiedFace, 0, len(result.Faces))
	for _, f := range result.Faces {
		faces = append(faces, identifiedFace{
			detectionResponse: boxResponse(f.Box, f.Score, img.Bounds()),
			Matched:           f.Matched,
			Person:            f.Person,
			PersonUID:         f.UID,
			Distance:          f.Distance,
			Error:             f.Error,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"faces":   faces,
		"matched": result.Matched,
		"failed":  result.Failed,
	})
}

// Verify handles POST /api/v1/verify with two image fields: image_a, image_b.
func (h *RecognitionHandler) Verify(w http.ResponseWriter, r *http.Request) {
	imgA, err := formImage(r, "image_a")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	imgB, err := formImage(r, "image_b")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.recognizer.VerifyImages(imgA, imgB)
	if errors.Is(err, recognize.ErrNoFace) {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		log.Printf("verify failed: %v", err)
		respondError(w, http.StatusInternalServerError, "verification failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Classify handles POST /api/v1/classify.
func (h *RecognitionHandler) Classify(w http.ResponseWriter, r *http.Request) {
	if !h.hasClf {
		respondError(w, http.StatusServiceUnavailable, "no classifier configured")
		return
	}

	img, err := formImage(r, "image")
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.recognizer.ClassifyImage(img)
	if errors.Is(err, recognize.ErrNoFace) {
		respondError(w, http.StatusUnprocessableEntity, "no face detected")
		return
	}
	if err != nil {
		log.Printf("classify failed: %v", err)
		respondError(w, http.StatusInternalServerError, "classification failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
