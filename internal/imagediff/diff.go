// Package imagediff quantifies visual drift between a baseline page raster
// and the current one.
//
// Drift is the percentage of pixels whose largest per-channel RGB difference
// is strictly greater than a sensitivity threshold. Every pixel is compared;
// there is no sampling and no early exit, so a shifted footer a few pixels
// tall is still detected. Rasters of different size are maximal drift (100%)
// rather than an error: a size change is a structural rendering change.
package imagediff

import (
	"image"
	"image/color"
)

// MaxDrift is reported for rasters whose dimensions differ.
const MaxDrift = 100.0

// Stats describes one comparison.
type Stats struct {
	Width, Height int
	Changed       int
	Total         int
	SizeMismatch  bool
}

// Percent returns the drift percentage in [0, 100], unrounded.
func (s Stats) Percent() float64 {
	if s.SizeMismatch {
		return MaxDrift
	}
	if s.Total == 0 {
		return 0
	}
	return 100.0 * float64(s.Changed) / float64(s.Total)
}

// DiffPercent returns the percentage of pixels that changed by more than
// channelThreshold in at least one of R, G or B.
func DiffPercent(baseline, current image.Image, channelThreshold int) float64 {
	return Measure(baseline, current, channelThreshold).Percent()
}

// Measure compares two rasters pixel by pixel. It does not modify its inputs.
func Measure(baseline, current image.Image, channelThreshold int) Stats {
	bb, cb := baseline.Bounds(), current.Bounds()
	if bb.Dx() != cb.Dx() || bb.Dy() != cb.Dy() {
		return Stats{SizeMismatch: true}
	}

	a, b := toRGB(baseline), toRGB(current)
	s := Stats{Width: bb.Dx(), Height: bb.Dy(), Total: bb.Dx() * bb.Dy()}
	for i := 0; i < len(a); i += 3 {
		if maxDelta(a[i:i+3], b[i:i+3]) > channelThreshold {
			s.Changed++
		}
	}
	return s
}

func maxDelta(p, q []uint8) int {
	d := absDiff(p[0], q[0])
	if g := absDiff(p[1], q[1]); g > d {
		d = g
	}
	if b := absDiff(p[2], q[2]); b > d {
		d = b
	}
	return d
}

func absDiff(x, y uint8) int {
	if x > y {
		return int(x - y)
	}
	return int(y - x)
}

// toRGB flattens img into row-major RGB triples, dropping alpha.
func toRGB(img image.Image) []uint8 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, 0, w*h*3)

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w*4]
			for x := 0; x < len(row); x += 4 {
				out = append(out, row[x], row[x+1], row[x+2])
			}
		}
		return out
	case *image.RGBA:
		// Premultiplied and straight alpha agree only for opaque pixels.
		if src.Opaque() {
			for y := 0; y < h; y++ {
				row := src.Pix[y*src.Stride : y*src.Stride+w*4]
				for x := 0; x < len(row); x += 4 {
					out = append(out, row[x], row[x+1], row[x+2])
				}
			}
			return out
		}
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}
