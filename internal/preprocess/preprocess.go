// Package preprocess converts captured images into the fixed-size normalized
// tensors the embedding model consumes: decode, face crop, resize to the
// model resolution, and affine pixel normalization into NHWC or NCHW order.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

// Layout is the channel ordering of the flattened input tensor.
type Layout string

const (
	// LayoutNHWC interleaves channels per pixel: index = (y*w + x)*3 + c.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW groups by channel plane: index = c*h*w + y*w + x.
	LayoutNCHW Layout = "nchw"
)

// TensorSpec describes the input tensor a model expects. Pixel values are
// normalized as (value - Mean) / Scale per channel.
type TensorSpec struct {
	Width  int
	Height int
	Layout Layout
	Mean   float32
	Scale  float32
}

// Len returns the flattened tensor length (always 3 channels).
func (s TensorSpec) Len() int {
	return s.Width * s.Height * 3
}

// Validate checks the spec for usable dimensions and a known layout.
func (s TensorSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("invalid tensor dimensions %dx%d", s.Width, s.Height)
	}
	if s.Layout != LayoutNHWC && s.Layout != LayoutNCHW {
		return fmt.Errorf("unknown tensor layout %q", s.Layout)
	}
	if s.Scale == 0 {
		return fmt.Errorf("tensor scale must not be zero")
	}
	return nil
}

// Decode reads and decodes a JPEG, PNG or GIF image.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// DecodeBytes decodes an in-memory image.
func DecodeBytes(data []byte) (image.Image, error) {
	return Decode(bytes.NewReader(data))
}

// Resize scales an image to the specified dimensions.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// CropSquare extracts a square region around box, expanded by margin
// (a fraction of the box size) and clamped to the image bounds. The square
// is centered on the box center and sized to its longer side.
func CropSquare(img image.Image, box image.Rectangle, margin float64) (*image.RGBA, error) {
	box = box.Canon()
	if box.Dx() <= 0 || box.Dy() <= 0 {
		return nil, fmt.Errorf("empty crop box %v", box)
	}

	size := box.Dx()
	if box.Dy() > size {
		size = box.Dy()
	}
	size = int(float64(size) * (1 + margin))

	bounds := img.Bounds()
	cx := box.Min.X + box.Dx()/2
	cy := box.Min.Y + box.Dy()/2

	crop := image.Rect(cx-size/2, cy-size/2, cx-size/2+size, cy-size/2+size)
	crop = crop.Intersect(bounds)
	if crop.Empty() {
		return nil, fmt.Errorf("crop box %v outside image bounds %v", box, bounds)
	}

	dst := image.NewRGBA(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(dst, dst.Bounds(), img, crop.Min, draw.Src)
	return dst, nil
}

// ToTensor resizes img to the spec resolution and flattens its RGB channels
// into a normalized float buffer in the spec's layout order. The returned
// slice has length spec.Len().
func ToTensor(img image.Image, spec TensorSpec) ([]float32, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	rgba := Resize(img, spec.Width, spec.Height)
	data := make([]float32, spec.Len())
	planeSize := spec.Width * spec.Height

	for y := range spec.Height {
		for x := range spec.Width {
			offset := rgba.PixOffset(x, y)
			r := rgba.Pix[offset]
			g := rgba.Pix[offset+1]
			b := rgba.Pix[offset+2]

			pixel := y*spec.Width + x
			switch spec.Layout {
			case LayoutNHWC:
				data[pixel*3+0] = (float32(r) - spec.Mean) / spec.Scale
				data[pixel*3+1] = (float32(g) - spec.Mean) / spec.Scale
				data[pixel*3+2] = (float32(b) - spec.Mean) / spec.Scale
			case LayoutNCHW:
				data[0*planeSize+pixel] = (float32(r) - spec.Mean) / spec.Scale
				data[1*planeSize+pixel] = (float32(g) - spec.Mean) / spec.Scale
				data[2*planeSize+pixel] = (float32(b) - spec.Mean) / spec.Scale
			}
		}
	}
	return data, nil
}
