package simulator

import (
	"image"
	"image/color"
	"image/png"
	"os"
)

// writePNG writes a flat-colored placeholder whose hue varies with seed.
func writePNG(path string, width, height, seed int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	c := color.RGBA{R: uint8(seed * 53), G: uint8(seed * 97), B: uint8(seed * 193), A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
