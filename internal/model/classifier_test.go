package model

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMetadata(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "classifier.onnx.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write metadata file: %v", err)
	}
	return path
}

func TestLoadClassifierMetadata(t *testing.T) {
	path := writeMetadata(t, `{
		"names": ["alice", "bob", "carol"],
		"num_classes": 3,
		"input_shape": [512],
		"model_type": "EmbeddingClassifier",
		"format": "onnx"
	}`)

	meta, err := LoadClassifierMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(meta.Names) != 3 {
		t.Errorf("expected 3 names, got %d", len(meta.Names))
	}
	if meta.Names[0] != "alice" {
		t.Errorf("expected first name 'alice', got '%s'", meta.Names[0])
	}
	if meta.ModelType != "EmbeddingClassifier" {
		t.Errorf("expected model_type 'EmbeddingClassifier', got '%s'", meta.ModelType)
	}
	if err := meta.Validate(512); err != nil {
		t.Errorf("expected valid metadata, got: %v", err)
	}
}

func TestLoadClassifierMetadata_MissingFile(t *testing.T) {
	_, err := LoadClassifierMetadata(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing metadata file")
	}
}

func TestLoadClassifierMetadata_InvalidJSON(t *testing.T) {
	path := writeMetadata(t, `{"names": [truncated`)

	if _, err := LoadClassifierMetadata(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestClassifierMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    ClassifierMetadata
		dim     int
		wantErr bool
	}{
		{
			name: "valid",
			meta: ClassifierMetadata{
				Names:      []string{"a", "b"},
				NumClasses: 2,
				InputShape: []int{512},
			},
			dim: 512,
		},
		{
			name: "no names",
			meta: ClassifierMetadata{
				NumClasses: 0,
				InputShape: []int{512},
			},
			dim:     512,
			wantErr: true,
		},
		{
			name: "class count mismatch",
			meta: ClassifierMetadata{
				Names:      []string{"a", "b", "c"},
				NumClasses: 2,
				InputShape: []int{512},
			},
			dim:     512,
			wantErr: true,
		},
		{
			name: "dimension mismatch",
			meta: ClassifierMetadata{
				Names:      []string{"a", "b"},
				NumClasses: 2,
				InputShape: []int{128},
			},
			dim:     512,
			wantErr: true,
		},
		{
			name: "multi-dimensional input shape",
			meta: ClassifierMetadata{
				Names:      []string{"a", "b"},
				NumClasses: 2,
				InputShape: []int{1, 512},
			},
			dim:     512,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.Validate(tt.dim)
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}
