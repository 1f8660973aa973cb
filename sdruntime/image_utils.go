package sdruntime

import (
	"errors"
	"fmt"
	"image"
)

// ErrImageInvalidSize is returned when a raw pixel buffer does not match
// its declared dimensions.
var ErrImageInvalidSize = errors.New("sdruntime: invalid image dimensions")

// PixelsToImage wraps a raw RGB or RGBA buffer, as returned by
// stable-diffusion.cpp, in an image.NRGBA. The buffer is copied.
func PixelsToImage(pixels []byte, width, height, channels int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d height=%d", ErrImageInvalidSize, width, height)
	}
	if channels != 3 && channels != 4 {
		return nil, fmt.Errorf("%w: unsupported channel count %d", ErrImageInvalidSize, channels)
	}

	expected := width * height * channels
	if len(pixels) != expected {
		return nil, fmt.Errorf("%w: expected %d bytes for %dx%dx%d, got %d",
			ErrImageInvalidSize, expected, width, height, channels, len(pixels))
	}

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	if channels == 4 {
		copy(img.Pix, pixels)
		return img, nil
	}

	for src, dst := 0, 0; src < len(pixels); src, dst = src+3, dst+4 {
		img.Pix[dst] = pixels[src]
		img.Pix[dst+1] = pixels[src+1]
		img.Pix[dst+2] = pixels[src+2]
		img.Pix[dst+3] = 0xff
	}
	return img, nil
}
