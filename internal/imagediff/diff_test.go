package imagediff

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func noisy(seed int64, w, h int) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

func TestDiffPercentIdentity(t *testing.T) {
	img := noisy(1, 37, 23)
	for _, threshold := range []int{0, 1, 15, 255} {
		assert.Equal(t, 0.0, DiffPercent(img, img, threshold))
	}
}

func TestDiffPercentSymmetry(t *testing.T) {
	a, b := noisy(1, 40, 30), noisy(2, 40, 30)
	for _, threshold := range []int{0, 15, 100, 200} {
		assert.Equal(t, DiffPercent(a, b, threshold), DiffPercent(b, a, threshold))
	}
}

func TestDiffPercentMonotoneInThreshold(t *testing.T) {
	a, b := noisy(3, 50, 50), noisy(4, 50, 50)
	prev := DiffPercent(a, b, 0)
	for threshold := 1; threshold <= 256; threshold++ {
		got := DiffPercent(a, b, threshold)
		assert.LessOrEqual(t, got, prev, "threshold %d", threshold)
		prev = got
	}
	assert.Equal(t, 0.0, prev)
}

func TestDiffPercentSizeMismatch(t *testing.T) {
	a := solid(10, 10, white)
	for _, b := range []image.Image{solid(10, 11, white), solid(11, 10, white), solid(0, 0, white)} {
		for _, threshold := range []int{0, 255, 1000} {
			assert.Equal(t, MaxDrift, DiffPercent(a, b, threshold))
		}
	}
}

func TestDiffPercentStrictThreshold(t *testing.T) {
	a := solid(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	b := solid(2, 1, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	b.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 115, B: 100, A: 255})

	assert.Equal(t, 0.0, DiffPercent(a, b, 15), "delta equal to threshold is unchanged")
	assert.Equal(t, 50.0, DiffPercent(a, b, 14))
}

func TestDiffPercentUsesLargestChannel(t *testing.T) {
	a := solid(4, 1, color.NRGBA{R: 50, G: 50, B: 50, A: 255})
	b := solid(4, 1, color.NRGBA{R: 50, G: 50, B: 50, A: 255})
	b.SetNRGBA(0, 0, color.NRGBA{R: 60, G: 60, B: 60, A: 255}) // 10 on every channel
	b.SetNRGBA(1, 0, color.NRGBA{R: 50, G: 50, B: 90, A: 255}) // 40 on blue only

	assert.Equal(t, 25.0, DiffPercent(a, b, 15))
	assert.Equal(t, 50.0, DiffPercent(a, b, 9))
}

func TestDiffPercentFraction(t *testing.T) {
	a := solid(10, 10, white)
	b := solid(10, 10, white)
	for x := 0; x < 10; x++ {
		b.SetNRGBA(x, 3, color.NRGBA{A: 255})
		b.SetNRGBA(x, 7, color.NRGBA{A: 255})
	}

	s := Measure(a, b, 15)
	assert.Equal(t, Stats{Width: 10, Height: 10, Changed: 20, Total: 100}, s)
	assert.Equal(t, 20.0, s.Percent())
}

func TestDiffPercentAcrossImageTypes(t *testing.T) {
	nrgba := noisy(5, 16, 8)

	rgba := image.NewRGBA(nrgba.Bounds())
	gray := image.NewGray(nrgba.Bounds())
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			rgba.Set(x, y, nrgba.At(x, y))
			gray.Set(x, y, color.Gray{Y: nrgba.NRGBAAt(x, y).R})
		}
	}
	assert.Equal(t, 0.0, DiffPercent(nrgba, rgba, 0))

	grayAsNRGBA := image.NewNRGBA(gray.Bounds())
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			v := gray.GrayAt(x, y).Y
			grayAsNRGBA.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	assert.Equal(t, 0.0, DiffPercent(gray, grayAsNRGBA, 0))
}

func TestDiffPercentSubImageOrigin(t *testing.T) {
	big := noisy(6, 20, 20)
	sub := big.SubImage(image.Rect(5, 5, 15, 15))

	shifted := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			shifted.SetNRGBA(x, y, big.NRGBAAt(x+5, y+5))
		}
	}
	assert.Equal(t, 0.0, DiffPercent(sub, shifted, 0))
}

func TestDiffPercentDoesNotMutate(t *testing.T) {
	a, b := noisy(7, 8, 8), noisy(8, 8, 8)
	ac := append([]uint8(nil), a.Pix...)
	bc := append([]uint8(nil), b.Pix...)

	DiffPercent(a, b, 15)

	assert.Equal(t, ac, a.Pix)
	assert.Equal(t, bc, b.Pix)
}

func TestLoadAndWriteDiffImage(t *testing.T) {
	dir := t.TempDir()
	a := noisy(9, 6, 4)
	path := filepath.Join(dir, "page_1.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, a))
	require.NoError(t, f.Close())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, DiffPercent(a, loaded, 0))

	b := solid(6, 4, white)
	out := filepath.Join(dir, "diff", "page_1.png")
	require.NoError(t, WriteDiffImage(out, a, b, 15))

	panel, err := Load(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 18, 4), panel.Bounds())

	err = WriteDiffImage(filepath.Join(dir, "x.png"), a, solid(5, 4, white), 15)
	assert.ErrorIs(t, err, ErrSizeMismatch)

	_, err = Load(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func ExampleDiffPercent() {
	baseline := solid(10, 10, white)
	current := solid(10, 10, white)
	for x := 0; x < 10; x++ {
		current.SetNRGBA(x, 9, color.NRGBA{A: 255}) // footer moved into the last row
	}
	fmt.Printf("%.1f%%\n", DiffPercent(baseline, current, 15))
	fmt.Printf("%.1f%%\n", DiffPercent(baseline, solid(10, 12, white), 15))
	// Output:
	// 10.0%
	// 100.0%
}
