package imagegen

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"sd_backend/core"
)

// FitSize returns the largest size with the aspect ratio of w×h that fits
// inside box. Images already inside the box keep their size.
func FitSize(w, h int, box core.Size) (int, int) {
	if w <= 0 || h <= 0 || (w <= box.Width && h <= box.Height) {
		return w, h
	}

	if float64(w)/float64(h) >= float64(box.Width)/float64(box.Height) {
		nh := int(math.Round(float64(h) * float64(box.Width) / float64(w)))
		return box.Width, clamp(nh, 1, box.Height)
	}
	nw := int(math.Round(float64(w) * float64(box.Height) / float64(h)))
	return clamp(nw, 1, box.Width), box.Height
}

// Thumbnail scales img down to fit inside box with CatmullRom resampling.
// It never upscales; an image that already fits is returned as is.
func Thumbnail(img image.Image, box core.Size) image.Image {
	bounds := img.Bounds()
	w, h := FitSize(bounds.Dx(), bounds.Dy(), box)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
