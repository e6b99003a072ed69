package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/fxbridge/mlclient/internal/raster"
)

// loadPNG reads a PNG into a 3-channel float raster, samples scaled to 0..1.
func loadPNG(path string) (raster.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return raster.Image{}, err
	}
	defer func() { _ = f.Close() }()

	src, err := png.Decode(f)
	if err != nil {
		return raster.Image{}, err
	}
	b := src.Bounds()
	im := raster.New(b.Dx(), b.Dy(), 3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			im.Pix[i] = float32(r) / 65535
			im.Pix[i+1] = float32(g) / 65535
			im.Pix[i+2] = float32(bl) / 65535
			i += 3
		}
	}
	return im, nil
}

// savePNG writes a 1- or 3-channel float raster as an 8-bit PNG, clamping
// samples to 0..1.
func savePNG(path string, im raster.Image) error {
	if !im.Valid() {
		return fmt.Errorf("raster has inconsistent dimensions")
	}
	if im.Channels != 1 && im.Channels != 3 {
		return fmt.Errorf("cannot write %d-channel raster as PNG", im.Channels)
	}
	dst := image.NewRGBA(image.Rect(0, 0, im.Width, im.Height))
	i := 0
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			var r, g, b float32
			if im.Channels == 1 {
				r, g, b = im.Pix[i], im.Pix[i], im.Pix[i]
			} else {
				r, g, b = im.Pix[i], im.Pix[i+1], im.Pix[i+2]
			}
			i += im.Channels
			dst.SetRGBA(x, y, color.RGBA{R: clamp8(r), G: clamp8(g), B: clamp8(b), A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return png.Encode(f, dst)
}

func clamp8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
