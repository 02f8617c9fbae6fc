package model

import (
	"encoding/json"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/kozaktomas/face-match/internal/match"
)

// ClassifierMetadata is the sidecar JSON emitted by the offline model
// conversion script alongside the classifier ONNX file.
type ClassifierMetadata struct {
	Names      []string `json:"names"`
	NumClasses int      `json:"num_classes"`
	InputShape []int    `json:"input_shape"`
	ModelType  string   `json:"model_type"`
	Format     string   `json:"format"`
}

// Validate checks internal consistency and agreement with the embedding
// dimension. Mismatches are load-time errors, not per-call surprises.
func (m *ClassifierMetadata) Validate(embeddingDim int) error {
	if len(m.Names) == 0 {
		return fmt.Errorf("classifier metadata has no class names")
	}
	if m.NumClasses != len(m.Names) {
		return fmt.Errorf("classifier metadata num_classes=%d does not match %d names", m.NumClasses, len(m.Names))
	}
	if len(m.InputShape) != 1 {
		return fmt.Errorf("classifier metadata input_shape must have one dimension, got %v", m.InputShape)
	}
	if m.InputShape[0] != embeddingDim {
		return fmt.Errorf("classifier input dimension %d does not match embedding dimension %d", m.InputShape[0], embeddingDim)
	}
	return nil
}

// LoadClassifierMetadata reads and parses the classifier metadata JSON.
func LoadClassifierMetadata(path string) (*ClassifierMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading classifier metadata: %w", err)
	}

	var meta ClassifierMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing classifier metadata: %w", err)
	}
	return &meta, nil
}

// Prediction is the result of classifying one embedding.
type Prediction struct {
	Label         string
	Confidence    float64
	Probabilities []float32 // softmax distribution over meta.Names, same order
}

// Classifier runs the small trained classifier over face embeddings.
// The exported model may end in raw logits; Predict applies softmax in Go
// either way, so the output is always a valid distribution.
type Classifier struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	meta         *ClassifierMetadata
	dim          int
}

// NewClassifier loads the classifier ONNX model and its metadata sidecar.
// embeddingDim is the dimension produced by the active embedder; metadata
// disagreement fails here rather than at prediction time.
func NewClassifier(modelPath, metaPath string, embeddingDim int) (*Classifier, error) {
	meta, err := LoadClassifierMetadata(metaPath)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(embeddingDim); err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("classifier model %s: %w", modelPath, err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(embeddingDim)))
	if err != nil {
		return nil, fmt.Errorf("creating classifier input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(meta.NumClasses)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("creating classifier output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"output"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("creating classifier session: %w", err)
	}

	return &Classifier{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		meta:         meta,
		dim:          embeddingDim,
	}, nil
}

// Names returns the class labels in model output order.
func (c *Classifier) Names() []string {
	return c.meta.Names
}

// Predict classifies an embedding and returns the argmax label with its
// softmax confidence. Thresholding is the caller's decision.
func (c *Classifier) Predict(embedding []float32) (*Prediction, error) {
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("embedding size mismatch: got %d, classifier expects %d", len(embedding), c.dim)
	}

	copy(c.inputTensor.GetData(), embedding)

	if err := c.session.Run(); err != nil {
		return nil, fmt.Errorf("running classifier: %w", err)
	}

	logits := make([]float32, c.meta.NumClasses)
	copy(logits, c.outputTensor.GetData())

	probs := match.Softmax(logits)
	best := match.ArgMax(probs)
	if best < 0 {
		return nil, fmt.Errorf("classifier produced no output")
	}

	return &Prediction{
		Label:         c.meta.Names[best],
		Confidence:    float64(probs[best]),
		Probabilities: probs,
	}, nil
}

// Close destroys the session and its tensors.
func (c *Classifier) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
	if c.inputTensor != nil {
		c.inputTensor.Destroy()
	}
	if c.outputTensor != nil {
		c.outputTensor.Destroy()
	}
}
