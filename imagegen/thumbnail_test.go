package imagegen

import (
	"image"
	"math"
	"testing"

	"sd_backend/core"
)

var thumbBox = core.Size{Width: 300, Height: 300}

func TestFitSize(t *testing.T) {
	tests := []struct {
		name         string
		w, h         int
		wantW, wantH int
	}{
		{"square", 512, 512, 300, 300},
		{"landscape", 1024, 512, 300, 150},
		{"portrait", 512, 768, 200, 300},
		{"already small", 256, 128, 256, 128},
		{"exact fit", 300, 300, 300, 300},
		{"one side over", 301, 100, 300, 100},
		{"extreme ratio", 2048, 128, 300, 19},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := FitSize(tt.w, tt.h, thumbBox)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("FitSize(%d, %d) = %dx%d, want %dx%d", tt.w, tt.h, w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestThumbnail_PreservesAspect(t *testing.T) {
	sizes := [][2]int{{512, 512}, {1024, 576}, {640, 1536}, {2048, 2048}, {128, 2048}}

	for _, s := range sizes {
		src := image.NewNRGBA(image.Rect(0, 0, s[0], s[1]))
		thumb := Thumbnail(src, thumbBox)
		b := thumb.Bounds()

		if max(b.Dx(), b.Dy()) > 300 {
			t.Errorf("%dx%d: thumbnail %dx%d exceeds the box", s[0], s[1], b.Dx(), b.Dy())
		}
		srcRatio := float64(s[0]) / float64(s[1])
		gotRatio := float64(b.Dx()) / float64(b.Dy())
		// one pixel of rounding on the short side
		tolerance := srcRatio / float64(min(b.Dx(), b.Dy()))
		if math.Abs(srcRatio-gotRatio) > tolerance+1e-9 {
			t.Errorf("%dx%d: ratio %.4f became %.4f", s[0], s[1], srcRatio, gotRatio)
		}
	}
}

func TestThumbnail_NeverUpscales(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	if thumb := Thumbnail(src, thumbBox); thumb != image.Image(src) {
		t.Errorf("Thumbnail() resized an image that already fits: %v", thumb.Bounds())
	}
}
