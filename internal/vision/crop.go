package vision

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrEmptyFrame is returned for a zero-length JPEG payload
var ErrEmptyFrame = errors.New("vision: empty frame")

// Detector finds the face region in a frame.
// ok is false when no face is present.
type Detector interface {
	Detect(img image.Image) (region image.Rectangle, ok bool, err error)
}

// DetectorFunc adapts a function to the Detector interface
type DetectorFunc func(img image.Image) (image.Rectangle, bool, error)

// Detect calls f(img)
func (f DetectorFunc) Detect(img image.Image) (image.Rectangle, bool, error) {
	return f(img)
}

// FaceCropper decodes frames, crops the detected face and resizes it to Size x Size.
// Without a detector, or when no face is found, the whole frame is resized.
type FaceCropper struct {
	Detector Detector
	Size     int
}

// NewFaceCropper creates a cropper producing size x size images
func NewFaceCropper(d Detector, size int) *FaceCropper {
	return &FaceCropper{Detector: d, Size: size}
}

// Crop decodes a JPEG payload and returns the resized face crop
func (c *FaceCropper) Crop(payload []byte) (image.Image, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyFrame
	}

	img, err := jpeg.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: decode jpeg: %w", err)
	}

	return c.CropImage(img)
}

// CropImage crops and resizes an already decoded frame
func (c *FaceCropper) CropImage(img image.Image) (image.Image, error) {
	if c.Size < 1 {
		return nil, fmt.Errorf("vision: invalid crop size %d", c.Size)
	}

	src := img.Bounds()
	if c.Detector != nil {
		region, ok, err := c.Detector.Detect(img)
		if err != nil {
			return nil, fmt.Errorf("vision: detect: %w", err)
		}
		if ok {
			if sq := SquareRegion(region, img.Bounds()); !sq.Empty() {
				src = sq
			}
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, c.Size, c.Size))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst, nil
}

// SquareRegion grows r to a square around its center, then clips it to bounds.
// The clipped result may be non-square near the frame edges.
func SquareRegion(r, bounds image.Rectangle) image.Rectangle {
	r = r.Canon()
	side := max(r.Dx(), r.Dy())
	cx := r.Min.X + r.Dx()/2
	cy := r.Min.Y + r.Dy()/2

	sq := image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side)
	return sq.Intersect(bounds)
}
