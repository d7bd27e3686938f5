package vision

import (
	"image"
	"image/color"
	"image/draw"
	"math/rand/v2"
	"testing"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noise(w, h int, seed uint64) *image.RGBA {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(rng.IntN(256))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{128, 128, 128, 255}), image.Point{}, draw.Src)
	return img
}

func paste(dst *image.RGBA, src image.Image, at image.Point) {
	draw.Draw(dst, src.Bounds().Add(at), src, src.Bounds().Min, draw.Src)
}

func TestMatchTemplateReturnsCentre(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	defer v.Close()

	screen := noise(120, 90, 1)
	template := screen.SubImage(image.Rect(40, 60, 60, 70))

	at, score, err := v.MatchTemplate(screen, template)

	require.NoError(t, err)
	assert.Equal(t, engine.Point{X: 50, Y: 65}, at)
	assert.InDelta(t, 1.0, score, 1e-3)
}

func TestMatchTemplateLargerThanScreen(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	defer v.Close()

	_, score, err := v.MatchTemplate(noise(10, 10, 1), noise(20, 20, 2))

	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestSimilarity(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	defer v.Close()

	a := noise(40, 30, 1)

	assert.InDelta(t, 1.0, v.Similarity(a, a), 1e-4)
	assert.Less(t, v.Similarity(a, noise(40, 30, 9)), 0.2)
	assert.Zero(t, v.Similarity(a, noise(41, 30, 1)))
}

func TestSimilarityOfCrops(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	defer v.Close()

	screen := noise(100, 100, 3)
	crop := screen.SubImage(image.Rect(10, 10, 50, 40))
	copied := image.NewRGBA(image.Rect(0, 0, 40, 30))
	draw.Draw(copied, copied.Bounds(), crop, crop.Bounds().Min, draw.Src)

	assert.InDelta(t, 1.0, v.Similarity(crop, copied), 1e-4)
}

func TestExtractDigits(t *testing.T) {
	glyphs := map[string]image.Image{}
	for i, d := range []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"} {
		glyphs[d] = noise(8, 12, uint64(100+i))
	}
	v, err := New(glyphs)
	require.NoError(t, err)
	defer v.Close()

	region := blank(60, 50)
	paste(region, glyphs["1"], image.Pt(12, 20))
	paste(region, glyphs["4"], image.Pt(22, 19))

	digits, ok := v.ExtractDigits(region)

	require.True(t, ok)
	assert.Equal(t, "14", digits)

	_, ok = v.ExtractDigits(blank(60, 50))
	assert.False(t, ok)
}

func TestResize(t *testing.T) {
	v, err := New(nil)
	require.NoError(t, err)
	defer v.Close()

	resized := v.Resize(noise(740, 1020, 1), image.Pt(200, 300))

	assert.Equal(t, image.Rect(0, 0, 200, 300), resized.Bounds())
}
