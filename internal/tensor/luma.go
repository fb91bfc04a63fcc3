package tensor

import "image"

// Luma writes the normalized luma of img into dst in raster order.
// With rotate set the frame is read rotated a quarter turn: output row y,
// column x takes the source pixel at column y, row Dy-1-x, so the output is
// Dx rows of Dy values. dst must hold Dx*Dy values.
func Luma(dst []float32, img image.Image, rotate bool) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rows, cols := h, w
	if rotate {
		rows, cols = w, h
	}
	src := func(y, x int) (int, int) {
		if rotate {
			return b.Min.X + y, b.Min.Y + h - 1 - x
		}
		return b.Min.X + x, b.Min.Y + y
	}

	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				i := rgba.PixOffset(src(y, x))
				dst[y*cols+x] = luma8(rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
			}
		}
		return
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			r, g, bl, _ := img.At(src(y, x)).RGBA()
			dst[y*cols+x] = luma8(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}
}

func luma8(r, g, b uint8) float32 {
	return min((0.299*float32(r)+0.587*float32(g)+0.114*float32(b))/255, 1)
}
