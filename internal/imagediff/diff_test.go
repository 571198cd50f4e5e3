package imagediff_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"shotdiff/internal/imagediff"
)

func writePNG(t *testing.T, dir, name string, w, h int, paint func(x, y int) color.Color) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, paint(x, y))
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	return path
}

func white(int, int) color.Color { return color.White }

func TestDiffIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "a.png", 4, 3, white)

	res, err := imagediff.Diff(context.Background(), path, path, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if res.Score != 0 || res.HasArtifact() {
		t.Fatalf("expected zero score and no artifact, got %+v", res)
	}
	if res.Width != 4 || res.Height != 3 {
		t.Fatalf("unexpected dimensions %dx%d", res.Width, res.Height)
	}
}

func TestDiffDecodedIdenticalHasNoArtifact(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 2, 2, white)
	b := filepath.Join(dir, "b.png")
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range rgba.Pix {
		rgba.Pix[i] = 0xff
	}
	f, err := os.Create(b)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(f, rgba); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	res, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if res.Score != 0 || res.HasArtifact() {
		t.Fatalf("expected no difference, got %+v", res)
	}
}

func TestDiffCountsDifferingPixels(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 4, 4, white)
	b := writePNG(t, dir, "b.png", 4, 4, func(x, y int) color.Color {
		if y == 0 {
			return color.Black
		}
		return color.White
	})

	res, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if math.Abs(res.Score-0.25) > 1e-9 {
		t.Fatalf("expected score 0.25, got %v", res.Score)
	}
	if !res.HasArtifact() {
		t.Fatal("expected mask artifact")
	}
	f, err := os.Open(res.Path)
	if err != nil {
		t.Fatalf("open mask: %v", err)
	}
	defer f.Close()
	mask, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode mask: %v", err)
	}
	if _, _, _, alpha := mask.At(0, 0).RGBA(); alpha == 0 {
		t.Fatal("expected differing pixel to be opaque in mask")
	}
	if _, _, _, alpha := mask.At(0, 1).RGBA(); alpha != 0 {
		t.Fatal("expected matching pixel to be transparent in mask")
	}
}

func TestDiffToleranceAbsorbsSmallDeltas(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 2, 2, func(int, int) color.Color { return color.NRGBA{100, 100, 100, 255} })
	b := writePNG(t, dir, "b.png", 2, 2, func(int, int) color.Color { return color.NRGBA{102, 100, 99, 255} })

	exact, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if exact.Score != imagediff.MaxPixelScore {
		t.Fatalf("expected every pixel to differ without tolerance, got %v", exact.Score)
	}

	tolerant, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir, ChannelTolerance: 2})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if tolerant.Score != 0 || tolerant.HasArtifact() {
		t.Fatalf("expected tolerance to absorb delta, got %+v", tolerant)
	}
}

func TestDiffEveryPixelChangedStaysBelowLayoutScore(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 4, 4, func(int, int) color.Color { return color.NRGBA{A: 255} })
	b := writePNG(t, dir, "b.png", 4, 4, white)

	res, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if res.Score >= imagediff.LayoutScore || res.Score < 0.999 {
		t.Fatalf("expected score just below layout score, got %v", res.Score)
	}
	if !res.HasArtifact() {
		t.Fatal("expected mask artifact")
	}
}

func TestDiffLayoutDifference(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 3, 5, white)
	b := writePNG(t, dir, "b.png", 6, 2, white)

	res, err := imagediff.Diff(context.Background(), a, b, imagediff.Options{TempDir: dir})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if res.Score != imagediff.LayoutScore {
		t.Fatalf("expected layout score, got %v", res.Score)
	}
	if res.Width != 6 || res.Height != 5 {
		t.Fatalf("expected max dimensions 6x5, got %dx%d", res.Width, res.Height)
	}
	if !res.HasArtifact() {
		t.Fatal("expected mask artifact for layout difference")
	}
}

func TestDiffMissingSource(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 1, 1, white)
	_, err := imagediff.Diff(context.Background(), a, filepath.Join(dir, "missing.png"), imagediff.Options{})
	if !errors.Is(err, imagediff.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}

func TestDiffUndecodableSource(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 1, 1, white)
	bad := filepath.Join(dir, "bad.png")
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := imagediff.Diff(context.Background(), a, bad, imagediff.Options{})
	if !errors.Is(err, imagediff.ErrImageDiffFailed) {
		t.Fatalf("expected ErrImageDiffFailed, got %v", err)
	}
}

func TestDiffHonoursCancellation(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 2, 2, white)
	b := writePNG(t, dir, "b.png", 2, 2, func(int, int) color.Color { return color.Black })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := imagediff.Diff(ctx, a, b, imagediff.Options{TempDir: dir}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDimensionsReadsHeader(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "wide.png", 7, 3, white)
	w, h, err := imagediff.Dimensions(path)
	if err != nil {
		t.Fatalf("Dimensions: %v", err)
	}
	if w != 7 || h != 3 {
		t.Fatalf("dimensions = %dx%d, want 7x3", w, h)
	}
	if _, _, err := imagediff.Dimensions(filepath.Join(dir, "missing.png")); !errors.Is(err, imagediff.ErrImageNotFound) {
		t.Fatalf("expected ErrImageNotFound, got %v", err)
	}
}
