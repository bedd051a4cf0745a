package imagediff

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	// Page rasters are PNG by default; TIFF when raster_format is tiff.
	_ "golang.org/x/image/tiff"
)

// ErrSizeMismatch is returned by WriteDiffImage for rasters of different size.
var ErrSizeMismatch = errors.New("raster dimensions differ")

// Load decodes a PNG or TIFF raster.
func Load(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	img, _, err = image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// WriteDiffImage writes a 3-panel PNG to path: current on the left, the
// changed pixels in the middle (red, brighter for larger deltas, black
// where unchanged) and the baseline on the right.
func WriteDiffImage(path string, baseline, current image.Image, channelThreshold int) (err error) {
	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return fmt.Errorf("%w: baseline %dx%d, current %dx%d", ErrSizeMismatch, bb.Dx(), bb.Dy(), cb.Dx(), cb.Dy())
	}

	w, h := bb.Dx(), bb.Dy()
	a, b := toRGB(baseline), toRGB(current)
	out := image.NewNRGBA(image.Rect(0, 0, w*3, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3

			out.SetNRGBA(x, y, color.NRGBA{R: b[i], G: b[i+1], B: b[i+2], A: 255})

			mark := color.NRGBA{A: 255}
			if d := maxDelta(a[i:i+3], b[i:i+3]); d > channelThreshold {
				mark.R = uint8(max(d, 64))
			}
			out.SetNRGBA(x+w, y, mark)

			out.SetNRGBA(x+2*w, y, color.NRGBA{R: a[i], G: a[i+1], B: a[i+2], A: 255})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = png.Encode(f, out)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
