package match

import "math"

// Softmax converts classifier logits into probabilities that sum to 1.
// The maximum logit is subtracted first for numerical stability, so the
// exported classifier may end in raw logits or an actual softmax layer;
// either way the result is a valid distribution with the same argmax.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}

	maxLogit := logits[0]
	for _, l := range logits[1:] {
		if l > maxLogit {
			maxLogit = l
		}
	}

	probs := make([]float32, len(logits))
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l - maxLogit))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}
	return probs
}

// ArgMax returns the index of the largest value, or -1 for an empty slice.
// Ties resolve to the first occurrence.
func ArgMax(values []float32) int {
	if len(values) == 0 {
		return -1
	}
	best := 0
	for i, v := range values[1:] {
		if v > values[best] {
			best = i + 1
		}
	}
	return best
}
