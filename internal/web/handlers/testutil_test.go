package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-match/internal/detect"
	"github.com/kozaktomas/face-match/internal/gallery"
	"github.com/kozaktomas/face-match/internal/gallery/mock"
	"github.com/kozaktomas/face-match/internal/model"
	"github.com/kozaktomas/face-match/internal/preprocess"
	"github.com/kozaktomas/face-match/internal/recognize"
)

// fakeDetector returns canned detections for every image.
type fakeDetector struct {
	detections []detect.Detection
}

func (f *fakeDetector) Detect(img image.Image) []detect.Detection {
	return f.detections
}

// fakeEmbedder returns queued embeddings in order.
type fakeEmbedder struct {
	mu         sync.Mutex
	embeddings [][]float32
	calls      int
}

func (f *fakeEmbedder) Spec() preprocess.TensorSpec {
	return preprocess.TensorSpec{
		Width: 112, Height: 112, Layout: preprocess.LayoutNHWC, Mean: 127.5, Scale: 127.5,
	}
}

func (f *fakeEmbedder) Embed(tensor []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	emb := f.embeddings[f.calls%len(f.embeddings)]
	f.calls++
	return emb, nil
}

type fakeClassifier struct {
	prediction *model.Prediction
}

func (f *fakeClassifier) Predict(embedding []float32) (*model.Prediction, error) {
	return f.prediction, nil
}

func axisVector(dim, i int) []float32 {
	v := make([]float32, dim)
	v[i] = 1
	return v
}

func singleFaceDetector() *fakeDetector {
	return &fakeDetector{detections: []detect.Detection{
		{Box: image.Rect(10, 10, 60, 60), Score: 9.0},
	}}
}

// seededGallery builds a gallery with Alice enrolled on axis 0.
func seededGallery(t *testing.T) *gallery.Gallery {
	t.Helper()
	store := mock.NewFaceStore()
	store.AddFace(gallery.FaceRecord{
		FaceUID: "f-alice", PersonUID: "p-alice", PersonName: "Alice",
		Embedding: axisVector(4, 0), Dim: 4,
	})
	return gallery.New(store, 4)
}

// multipartImage builds a multipart request body with PNG images and extra
// form values.
func multipartImage(t *testing.T, fields map[string]bool, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	img := image.NewRGBA(image.Rect(0, 0, 80, 80))
	for x := 0; x < 80; x++ {
		for y := 0; y < 80; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 3), uint8(y * 3), 120, 255})
		}
	}

	for field, valid := range fields {
		part, err := mw.CreateFormFile(field, field+".png")
		if err != nil {
			t.Fatalf("creating form file: %v", err)
		}
		if valid {
			if err := png.Encode(part, img); err != nil {
				t.Fatalf("encoding image: %v", err)
			}
		} else {
			part.Write([]byte("not an image"))
		}
	}
	for k, v := range values {
		mw.WriteField(k, v)
	}
	mw.Close()

	return &buf, mw.FormDataContentType()
}

func postMultipart(t *testing.T, handler http.HandlerFunc, path string,
	fields map[string]bool, values map[string]string,
) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType := multipartImage(t, fields, values)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response body: %v\n%s", err, rec.Body.String())
	}
	return body
}

func newRecognizer(detector recognize.FaceDetector, embedder recognize.FaceEmbedder,
	opts ...recognize.Option,
) *recognize.Recognizer {
	return recognize.New(detector, embedder, opts...)
}
