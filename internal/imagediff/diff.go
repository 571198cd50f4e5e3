package imagediff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io/fs"
	"math"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrImageNotFound indicates a source image path does not exist.
	ErrImageNotFound = errors.New("image not found")
	// ErrImageDiffFailed indicates decoding, comparing or encoding failed.
	ErrImageDiffFailed = errors.New("image diff failed")
)

// LayoutScore is reported when the two images differ in size.
const LayoutScore = 1.0

// MaxPixelScore caps same-size comparisons so that only a layout difference
// scores LayoutScore.
var MaxPixelScore = math.Nextafter(LayoutScore, 0)

var maskColor = color.NRGBA{R: 255, A: 255}

// Options tunes the comparison.
type Options struct {
	// ChannelTolerance is the largest per-channel 8-bit delta still treated
	// as equal. Zero means exact.
	ChannelTolerance uint8
	// TempDir receives mask artifacts; empty uses os.TempDir.
	TempDir string
}

// Result describes one comparison. Path is empty when no artifact was
// produced, which happens only for identical images.
type Result struct {
	Width  int
	Height int
	Path   string
	Score  float64
}

// HasArtifact reports whether a mask file was written.
func (r Result) HasArtifact() bool {
	return r.Path != ""
}

// Diff compares basePath against comparePath.
func Diff(ctx context.Context, basePath, comparePath string, opts Options) (Result, error) {
	baseBytes, err := readSource(basePath)
	if err != nil {
		return Result{}, err
	}
	compareBytes, err := readSource(comparePath)
	if err != nil {
		return Result{}, err
	}

	baseImg, err := decode(baseBytes, basePath)
	if err != nil {
		return Result{}, err
	}
	compareImg, err := decode(compareBytes, comparePath)
	if err != nil {
		return Result{}, err
	}

	bb, cb := baseImg.Bounds(), compareImg.Bounds()
	result := Result{
		Width:  max(bb.Dx(), cb.Dx()),
		Height: max(bb.Dy(), cb.Dy()),
	}
	if bytes.Equal(baseBytes, compareBytes) {
		return result, nil
	}

	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		mask := image.NewNRGBA(image.Rect(0, 0, result.Width, result.Height))
		draw.Draw(mask, mask.Bounds(), image.NewUniform(maskColor), image.Point{}, draw.Src)
		path, err := writeMask(mask, opts.TempDir)
		if err != nil {
			return Result{}, err
		}
		result.Path = path
		result.Score = LayoutScore
		return result, nil
	}

	base := normalize(baseImg)
	compare := normalize(compareImg)
	mask := image.NewNRGBA(base.Bounds())
	differing := 0
	for y := 0; y < result.Height; y++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for x := 0; x < result.Width; x++ {
			i := base.PixOffset(x, y)
			if pixelsMatch(base.Pix[i:i+4], compare.Pix[i:i+4], opts.ChannelTolerance) {
				continue
			}
			differing++
			mask.SetNRGBA(x, y, maskColor)
		}
	}
	if differing == 0 {
		return result, nil
	}

	path, err := writeMask(mask, opts.TempDir)
	if err != nil {
		return Result{}, err
	}
	result.Path = path
	result.Score = math.Min(float64(differing)/float64(result.Width*result.Height), MaxPixelScore)
	return result, nil
}

func readSource(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrImageDiffFailed, path, err)
	}
	return data, nil
}

func decode(data []byte, path string) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrImageDiffFailed, path, err)
	}
	return img, nil
}

// normalize converts any decoded image to a zero-origin RGBA buffer so pixel
// offsets line up across formats.
func normalize(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func pixelsMatch(a, b []uint8, tolerance uint8) bool {
	for c := 0; c < 4; c++ {
		d := int(a[c]) - int(b[c])
		if d < 0 {
			d = -d
		}
		if d > int(tolerance) {
			return false
		}
	}
	return true
}

func writeMask(mask image.Image, dir string) (string, error) {
	file, err := os.CreateTemp(dir, "shotdiff-mask-*.png")
	if err != nil {
		return "", fmt.Errorf("%w: create mask: %v", ErrImageDiffFailed, err)
	}
	path := file.Name()
	if err := png.Encode(file, mask); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: encode mask: %v", ErrImageDiffFailed, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("%w: close mask: %v", ErrImageDiffFailed, err)
	}
	return path, nil
}

// Dimensions reads only the image header at path.
func Dimensions(path string) (width, height int, err error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return 0, 0, fmt.Errorf("%w: open %s: %v", ErrImageDiffFailed, path, err)
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: decode %s: %v", ErrImageDiffFailed, path, err)
	}
	return cfg.Width, cfg.Height, nil
}
