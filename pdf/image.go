package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

var errUnsupportedImage = errors.New("unsupported image encoding")

// rawToImage wraps decoded 8-bit samples in an image.Image.
func rawToImage(data []byte, width, height int, colorSpace string) (image.Image, error) {
	rect := image.Rect(0, 0, width, height)
	switch colorSpace {
	case colorSpaceGray:
		if len(data) < width*height {
			return nil, fmt.Errorf("gray image data too short: %d bytes for %dx%d", len(data), width, height)
		}
		return &image.Gray{Pix: data[:width*height], Stride: width, Rect: rect}, nil
	case colorSpaceRGB:
		if len(data) < width*height*3 {
			return nil, fmt.Errorf("rgb image data too short: %d bytes for %dx%d", len(data), width, height)
		}
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < width*height*3; i, j = i+3, j+4 {
			img.Pix[j] = data[i]
			img.Pix[j+1] = data[i+1]
			img.Pix[j+2] = data[i+2]
			img.Pix[j+3] = 0xff
		}
		return img, nil
	case colorSpaceCMYK:
		if len(data) < width*height*4 {
			return nil, fmt.Errorf("cmyk image data too short: %d bytes for %dx%d", len(data), width, height)
		}
		img := image.NewCMYK(rect)
		copy(img.Pix, data)
		return img, nil
	}
	return nil, fmt.Errorf("%w: color space %q", errUnsupportedImage, colorSpace)
}

// scaledSize returns the target dimensions for scale, never below 1x1.
func scaledSize(width, height int, scale float64) (int, int) {
	w := int(float64(width) * scale)
	h := int(float64(height) * scale)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// scaleImage resamples img to width x height. Gray sources stay gray.
func scaleImage(img image.Image, width, height int) image.Image {
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	if isGray(img) {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

func isGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return true
	}
	return false
}
