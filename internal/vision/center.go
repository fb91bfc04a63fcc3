package vision

import (
	"fmt"
	"image"
)

// CenterDetector assumes the speaker is framed in the middle of the picture,
// which is how the sender's camera is usually set up.
// It reports a square of Scale times the shorter frame edge around the center.
type CenterDetector struct {
	Scale float64
}

// Detect implements Detector
func (d CenterDetector) Detect(img image.Image) (image.Rectangle, bool, error) {
	if d.Scale <= 0 || d.Scale > 1 {
		return image.Rectangle{}, false, fmt.Errorf("vision: center scale %f out of range", d.Scale)
	}

	b := img.Bounds()
	side := int(float64(min(b.Dx(), b.Dy())) * d.Scale)
	if side < 1 {
		return image.Rectangle{}, false, nil
	}

	cx := b.Min.X + b.Dx()/2
	cy := b.Min.Y + b.Dy()/2
	return image.Rect(cx-side/2, cy-side/2, cx-side/2+side, cy-side/2+side), true, nil
}

// NewDetector returns the detector registered under name.
// "none" and "" return a nil detector, which crops the whole frame.
func NewDetector(name string, scale float64) (Detector, error) {
	switch name {
	case "", "none":
		return nil, nil
	case "center":
		return CenterDetector{Scale: scale}, nil
	default:
		return nil, fmt.Errorf("vision: unknown detector %q", name)
	}
}
