package pipeline

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const watermarkText = "PREVIEW"

// Tile spacing for the watermark grid; alternating rows are offset so crops
// cannot dodge the overlay.
const (
	watermarkStepX = 220
	watermarkStepY = 140
)

// applyTiledWatermark overlays a repeating translucent text grid on img. The
// input is never mutated; the result is a fresh RGBA copy.
func applyTiledWatermark(img image.Image) (image.Image, error) {
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, errors.New("pipeline: empty image")
	}
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, img, bounds.Min, draw.Src)

	face := basicfont.Face7x13
	drawer := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 96}),
		Face: face,
	}
	shadow := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.RGBA{A: 72}),
		Face: face,
	}

	row := 0
	for y := bounds.Min.Y + watermarkStepY/2; y < bounds.Max.Y; y += watermarkStepY {
		offset := 0
		if row%2 == 1 {
			offset = watermarkStepX / 2
		}
		for x := bounds.Min.X + offset; x < bounds.Max.X; x += watermarkStepX {
			at := fixed.P(x, y)
			shadow.Dot = fixed.P(x+1, y+1)
			shadow.DrawString(watermarkText)
			drawer.Dot = at
			drawer.DrawString(watermarkText)
		}
		row++
	}
	return dst, nil
}
