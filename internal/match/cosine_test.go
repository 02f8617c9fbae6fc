package match

import (
	"math"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{"unit x", []float32{1, 0, 0}},
		{"scaled", []float32{3, 4, 0}},
		{"negative components", []float32{-1, 2, -3}},
		{"high dimension", []float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := make([]float32, len(tt.vector))
			copy(v, tt.vector)
			Normalize(v)
			if norm := Norm(v); math.Abs(norm-1.0) > 0.0001 {
				t.Errorf("Norm after Normalize = %f, want 1.0", norm)
			}
		})
	}
}

func TestNormalizeZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("zero vector changed at index %d: %f", i, x)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical vectors", []float32{1, 0, 0}, []float32{1, 0, 0}, 1.0},
		{"identical unnormalized", []float32{3, 4, 0}, []float32{3, 4, 0}, 1.0},
		{"orthogonal vectors", []float32{1, 0, 0}, []float32{0, 1, 0}, 0.0},
		{"opposite vectors", []float32{1, 0, 0}, []float32{-1, 0, 0}, -1.0},
		{"scaled copy", []float32{1, 2, 3}, []float32{2, 4, 6}, 1.0},
		{"45 degrees", []float32{1, 0}, []float32{1, 1}, math.Sqrt2 / 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineSimilarity(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("CosineSimilarity() = %f, want %f", result, tt.expected)
			}
		})
	}
}

func TestCosineSimilarityInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
	}{
		{"mismatched lengths", []float32{1, 0}, []float32{1, 0, 0}},
		{"empty vectors", []float32{}, []float32{}},
		{"zero vector a", []float32{0, 0, 0}, []float32{1, 0, 0}},
		{"zero vector b", []float32{1, 0, 0}, []float32{0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := CosineSimilarity(tt.a, tt.b); result != -1 {
				t.Errorf("CosineSimilarity() = %f, want -1 for invalid input", result)
			}
			if result := CosineDistance(tt.a, tt.b); result != 2.0 {
				t.Errorf("CosineDistance() = %f, want 2.0 for invalid input", result)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0.0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1.0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CosineDistance(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("CosineDistance() = %f, want %f", result, tt.expected)
			}
		})
	}
}

func TestBestMatch(t *testing.T) {
	refs := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
		{0, 0, 1},
	}

	tests := []struct {
		name    string
		probe   []float32
		wantIdx int
	}{
		{"exact first", []float32{1, 0, 0}, 0},
		{"exact second", []float32{0, 1, 0}, 1},
		{"closest to third", []float32{0.85, 0.15, 0}, 2},
		{"closest to last", []float32{0.1, 0.1, 0.95}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, sim := BestMatch(tt.probe, refs)
			if idx != tt.wantIdx {
				t.Errorf("BestMatch() index = %d, want %d (similarity %f)", idx, tt.wantIdx, sim)
			}
			if sim < -1 || sim > 1 {
				t.Errorf("BestMatch() similarity = %f, outside [-1, 1]", sim)
			}
		})
	}
}

func TestBestMatchEmptyRefs(t *testing.T) {
	idx, sim := BestMatch([]float32{1, 0, 0}, nil)
	if idx != -1 || sim != -1 {
		t.Errorf("BestMatch() with no refs = (%d, %f), want (-1, -1)", idx, sim)
	}
}

func TestBestMatchExactSimilarity(t *testing.T) {
	refs := [][]float32{
		{0, 1},
		{1, 1},
	}
	probe := []float32{1, 0}

	idx, sim := BestMatch(probe, refs)
	if idx != 1 {
		t.Fatalf("BestMatch() index = %d, want 1", idx)
	}
	if math.Abs(sim-math.Sqrt2/2) > 0.0001 {
		t.Errorf("BestMatch() similarity = %f, want %f", sim, math.Sqrt2/2)
	}
}
