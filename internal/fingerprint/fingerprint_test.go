package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		hash1    uint64
		hash2    uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"four bits different", 0xF, 0x0, 4},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := HammingDistance(tc.hash1, tc.hash2)
			if result != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d",
					tc.hash1, tc.hash2, result, tc.expected)
			}
		})
	}
}

func TestHammingDistanceHex(t *testing.T) {
	d, err := HammingDistanceHex("00000000000000ff", "0000000000000000")
	if err != nil {
		t.Fatalf("HammingDistanceHex: %v", err)
	}
	if d != 8 {
		t.Errorf("expected distance 8, got %d", d)
	}

	if _, err := HammingDistanceHex("not-hex", "0"); err == nil {
		t.Error("expected error for invalid hex hash")
	}
}

func TestSimilar(t *testing.T) {
	tests := []struct {
		name      string
		hash1     uint64
		hash2     uint64
		threshold int
		expected  bool
	}{
		{"identical with threshold 0", 0x0, 0x0, 0, true},
		{"identical with threshold 6", 0x0, 0x0, 6, true},
		{"5 bits different, threshold 6", 0x0, 0x1F, 6, true},
		{"6 bits different, threshold 6", 0x0, 0x3F, 6, true},
		{"7 bits different, threshold 6", 0x0, 0x7F, 6, false},
		{"completely different, threshold 6", 0xFFFFFFFFFFFFFFFF, 0x0, 6, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := Similar(tc.hash1, tc.hash2, tc.threshold)
			if result != tc.expected {
				t.Errorf("Similar(%x, %x, %d) = %v; want %v",
					tc.hash1, tc.hash2, tc.threshold, result, tc.expected)
			}
		})
	}
}

func TestComputeHashes(t *testing.T) {
	img := createTestImage(100, 100, color.White)
	imgData := encodeJPEG(t, img)

	result, err := ComputeHashes(imgData)
	if err != nil {
		t.Fatalf("ComputeHashes failed: %v", err)
	}

	// 64-bit hashes render as 16 hex characters.
	if len(result.PHash) != 16 {
		t.Errorf("PHash should be 16 hex characters, got %d: %s", len(result.PHash), result.PHash)
	}
	if len(result.DHash) != 16 {
		t.Errorf("DHash should be 16 hex characters, got %d: %s", len(result.DHash), result.DHash)
	}
}

func TestHashImageConsistency(t *testing.T) {
	img := createGradientImage(100, 100)

	result1 := HashImage(img)
	result2 := HashImage(img)

	if result1.PHash != result2.PHash {
		t.Errorf("PHash should be consistent: %s vs %s", result1.PHash, result2.PHash)
	}
	if result1.DHash != result2.DHash {
		t.Errorf("DHash should be consistent: %s vs %s", result1.DHash, result2.DHash)
	}
}

func TestHashImageSurvivesReencoding(t *testing.T) {
	// A JPEG round trip must stay within the duplicate threshold.
	img := createGradientImage(100, 100)
	original := HashImage(img)

	reencoded, _, err := image.Decode(bytes.NewReader(encodeJPEG(t, img)))
	if err != nil {
		t.Fatalf("decoding re-encoded image: %v", err)
	}
	roundTrip := HashImage(reencoded)

	if d := HammingDistance(original.PHashBits, roundTrip.PHashBits); d > 6 {
		t.Errorf("pHash drifted %d bits after JPEG round trip", d)
	}
}

func TestHashImageGradient(t *testing.T) {
	result := HashImage(createGradientImage(100, 100))

	if result.PHashBits == 0 && result.DHashBits == 0 {
		t.Error("Gradient image should produce non-zero hashes")
	}
}

func TestComputeHashesInvalidImage(t *testing.T) {
	if _, err := ComputeHashes([]byte("not an image")); err == nil {
		t.Error("ComputeHashes should fail for invalid image data")
	}
}

func TestToGrayscale(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			img.Set(x, y, color.RGBA{255, 0, 0, 255}) // Red
		}
	}

	gray := toGrayscale(img)

	if len(gray) != 10 {
		t.Errorf("Grayscale width should be 10, got %d", len(gray))
	}
	if len(gray[0]) != 10 {
		t.Errorf("Grayscale height should be 10, got %d", len(gray[0]))
	}

	// Red should convert to approximately 0.299 * 255 = 76.245
	expectedLuma := 0.299 * 255
	tolerance := 1.0
	if gray[0][0] < expectedLuma-tolerance || gray[0][0] > expectedLuma+tolerance {
		t.Errorf("Red pixel luma should be ~%.2f, got %.2f", expectedLuma, gray[0][0])
	}
}

func TestComputeMedian(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"odd count", []float64{1, 2, 3, 4, 5}, 3},
		{"even count", []float64{1, 2, 3, 4}, 2.5},
		{"single value", []float64{42}, 42},
		{"unsorted", []float64{5, 1, 3, 2, 4}, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := computeMedian(tc.values)
			if result != tc.expected {
				t.Errorf("computeMedian(%v) = %f; want %f", tc.values, result, tc.expected)
			}
		})
	}
}

// Helper functions

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func createGradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gray := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{gray, gray, gray, 255})
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding JPEG: %v", err)
	}
	return buf.Bytes()
}
