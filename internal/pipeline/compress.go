package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// Quality ladders for the byte-ceiling re-encode. The HD ladder starts at
// near-lossless; the preview ladder starts lower since the preview is a
// display derivative anyway, which also keeps its bytes from ever matching
// the HD artifact's.
var (
	hdQualityLadder      = []int{92, 85, 78, 70, 60}
	previewQualityLadder = []int{85, 78, 70, 60}
)

// downscaleFactor is applied once when no ladder quality fits the target.
const downscaleFactor = 0.75

// compressToTarget re-encodes img as JPEG, walking the quality ladder until
// the output fits targetBytes. The goal is the smallest acceptable quality
// loss that fits the budget, so the first fitting level wins. If no level
// fits, the image is downscaled once and re-encoded at the ladder floor.
func compressToTarget(img image.Image, targetBytes int, ladder []int) ([]byte, error) {
	var out []byte
	for _, quality := range ladder {
		encoded, err := encodeJPEG(img, quality)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= targetBytes {
			return encoded, nil
		}
		out = encoded
	}

	floor := ladder[len(ladder)-1]
	bounds := img.Bounds()
	scaled := scaleTo(img,
		int(float64(bounds.Dx())*downscaleFactor),
		int(float64(bounds.Dy())*downscaleFactor))
	encoded, err := encodeJPEG(scaled, floor)
	if err != nil {
		return nil, err
	}
	if len(encoded) <= targetBytes || len(encoded) < len(out) {
		return encoded, nil
	}
	return out, nil
}

// resizeToMax scales img so neither dimension exceeds maxDim, preserving the
// aspect ratio. Images already inside the cap are returned as-is.
func resizeToMax(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return scaleTo(img, maxDim, h*maxDim/w)
	}
	return scaleTo(img, w*maxDim/h, maxDim)
}

func scaleTo(img image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("pipeline: jpeg encode at q%d: %w", quality, err)
	}
	return buf.Bytes(), nil
}
