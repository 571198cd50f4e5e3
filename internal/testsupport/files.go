package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// Paint returns the colour of pixel (x, y).
type Paint func(x, y int) color.Color

// Solid paints every pixel with c.
func Solid(c color.Color) Paint {
	return func(int, int) color.Color { return c }
}

// WritePNG encodes a w×h image painted by paint to path, creating parent
// directories as needed.
func WritePNG(t testing.TB, path string, w, h int, paint Paint) string {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, paint(x, y))
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}
