// Package match implements the vector matching core: cosine similarity over
// L2-normalized face embeddings, nearest-neighbor selection, and the softmax
// used by the embedding classifier.
package match

import "math"

// Norm returns the Euclidean (L2) norm of a vector.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize scales v in place so its L2 norm equals 1, making dot product
// equivalent to cosine similarity. Zero vectors are left unchanged.
func Normalize(v []float32) {
	norm := Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical).
// Mismatched lengths and zero vectors return -1, which no real match can reach.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return -1
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return similarity
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
// Cosine distance = 1 - cosine similarity; invalid input yields the maximum 2.
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// BestMatch scans refs with a running maximum and returns the index of the
// reference most similar to probe along with its cosine similarity.
// Returns (-1, -1) when refs is empty. Thresholding is the caller's decision.
func BestMatch(probe []float32, refs [][]float32) (int, float64) {
	bestIdx := -1
	bestSim := -1.0
	for i, ref := range refs {
		if sim := CosineSimilarity(probe, ref); sim > bestSim {
			bestSim = sim
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return -1, -1
	}
	return bestIdx, bestSim
}
