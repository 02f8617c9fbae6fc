package model

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kozaktomas/face-match/internal/config"
	"github.com/kozaktomas/face-match/internal/match"
	"github.com/kozaktomas/face-match/internal/preprocess"
)

// Embedder extracts face embeddings from preprocessed input tensors using
// an ONNX embedding model (MobileFaceNet or ArcFace class).
type Embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	profile      config.ModelProfile
	name         string
}

// NewEmbedder loads the ONNX embedding model described by the profile.
// The runtime environment must already be initialized via InitRuntime.
func NewEmbedder(modelPath, profileName string, profile config.ModelProfile) (*Embedder, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("embedding model %s: %w", modelPath, err)
	}
	if profile.Dim <= 0 {
		return nil, fmt.Errorf("profile %s has invalid embedding dimension %d", profileName, profile.Dim)
	}

	inputShape := tensorShape(profile)
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(profile.Dim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{profile.Input},
		[]string{profile.Output},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("creating embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		profile:      profile,
		name:         profileName,
	}, nil
}

// tensorShape builds the ONNX input shape for the profile's layout.
func tensorShape(profile config.ModelProfile) ort.Shape {
	if profile.Layout == string(preprocess.LayoutNCHW) {
		return ort.NewShape(1, 3, int64(profile.Height), int64(profile.Width))
	}
	return ort.NewShape(1, int64(profile.Height), int64(profile.Width), 3)
}

// Spec returns the preprocessing spec matching the model's input tensor.
func (e *Embedder) Spec() preprocess.TensorSpec {
	return preprocess.TensorSpec{
		Width:  e.profile.Width,
		Height: e.profile.Height,
		Layout: preprocess.Layout(e.profile.Layout),
		Mean:   e.profile.Mean,
		Scale:  e.profile.Scale,
	}
}

// Dim returns the embedding vector dimension.
func (e *Embedder) Dim() int {
	return e.profile.Dim
}

// Name returns the profile name, stored with enrolled faces.
func (e *Embedder) Name() string {
	return e.name
}

// Embed runs the model over a preprocessed input tensor and returns the
// L2-normalized embedding vector.
func (e *Embedder) Embed(tensor []float32) ([]float32, error) {
	inputData := e.inputTensor.GetData()
	if len(tensor) != len(inputData) {
		return nil, fmt.Errorf("input tensor size mismatch: got %d, model expects %d", len(tensor), len(inputData))
	}
	copy(inputData, tensor)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("running embedding model: %w", err)
	}

	embedding := make([]float32, e.profile.Dim)
	copy(embedding, e.outputTensor.GetData())
	match.Normalize(embedding)
	return embedding, nil
}

// Close destroys the session and its tensors.
func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
