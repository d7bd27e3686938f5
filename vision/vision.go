package vision

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/nathanieltooley/pocketbot/engine"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"gocv.io/x/gocv"
)

const (
	// minimum normalized correlation for a digit glyph hit
	digitThreshold = 0.8
	// side of the square SSIM window
	ssimWindow = 7
)

var (
	ssimC1 = math.Pow(0.01*255, 2)
	ssimC2 = math.Pow(0.03*255, 2)
)

type glyph struct {
	digit string
	mat   gocv.Mat
}

// Vision implements template matching, SSIM similarity and digit reading on
// OpenCV. Close releases the glyph templates.
type Vision struct {
	glyphs []glyph
}

// New takes the digit glyph templates keyed by the digit they show
func New(digits map[string]image.Image) (*Vision, error) {
	v := &Vision{}

	for _, digit := range slices.Sorted(maps.Keys(digits)) {
		mat, err := toGray(digits[digit])
		if err != nil {
			v.Close()
			return nil, fmt.Errorf("digit glyph %s: %w", digit, err)
		}
		v.glyphs = append(v.glyphs, glyph{digit: digit, mat: mat})
	}

	return v, nil
}

func (v *Vision) Close() {
	for _, g := range v.glyphs {
		g.mat.Close()
	}
	v.glyphs = nil
}

// toRGBA copies img into a zero-origin RGBA so crops convert like full images
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func toGray(img image.Image) (gocv.Mat, error) {
	if img == nil || img.Bounds().Empty() {
		return gocv.NewMat(), errors.New("empty image")
	}

	color, err := gocv.ImageToMatRGB(toRGBA(img))
	if err != nil {
		return gocv.NewMat(), err
	}
	defer color.Close()

	gray := gocv.NewMat()
	gocv.CvtColor(color, &gray, gocv.ColorBGRToGray)
	return gray, nil
}

// MatchTemplate finds the best normalized correlation of template inside
// screenshot and returns the centre of the match in screenshot coordinates.
func (v *Vision) MatchTemplate(screenshot, template image.Image) (engine.Point, float64, error) {
	s, err := toGray(screenshot)
	if err != nil {
		return engine.Point{}, 0, fmt.Errorf("screenshot: %w", err)
	}
	defer s.Close()

	t, err := toGray(template)
	if err != nil {
		return engine.Point{}, 0, fmt.Errorf("template: %w", err)
	}
	defer t.Close()

	if t.Cols() > s.Cols() || t.Rows() > s.Rows() {
		return engine.Point{}, 0, nil
	}

	loc, score := bestMatch(s, t)
	origin := screenshot.Bounds().Min
	return engine.Point{X: origin.X + loc.X + t.Cols()/2, Y: origin.Y + loc.Y + t.Rows()/2}, score, nil
}

func bestMatch(s, t gocv.Mat) (image.Point, float64) {
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(s, t, &result, gocv.TmCcoeffNormed, mask)
	_, maxVal, _, maxLoc := gocv.MinMaxLoc(result)

	score := float64(maxVal)
	// flat templates have no variance to correlate with
	if math.IsNaN(score) || math.IsInf(score, 0) {
		score = 0
	}

	return maxLoc, score
}

// Similarity is the mean structural similarity of two same sized images in
// grayscale. Differently sized images score 0.
func (v *Vision) Similarity(a, b image.Image) float64 {
	if a == nil || b == nil || a.Bounds().Size() != b.Bounds().Size() {
		return 0
	}

	ga, err := toGray(a)
	if err != nil {
		return 0
	}
	defer ga.Close()
	gb, err := toGray(b)
	if err != nil {
		return 0
	}
	defer gb.Close()

	if ga.Rows() < ssimWindow || ga.Cols() < ssimWindow {
		log.Debug().Int("rows", ga.Rows()).Int("cols", ga.Cols()).Msg("image smaller than the ssim window")
		return 0
	}

	return ssim(ga, gb)
}

// ssim uses a 7x7 uniform window and sample covariance. The mean skips a
// half-window border so the border mode never matters.
func ssim(a, b gocv.Mat) float64 {
	x := floatMat(a)
	defer x.Close()
	y := floatMat(b)
	defer y.Close()

	window := image.Pt(ssimWindow, ssimWindow)
	covNorm := float32(ssimWindow*ssimWindow) / float32(ssimWindow*ssimWindow-1)

	mats := []*gocv.Mat{}
	newMat := func() *gocv.Mat {
		m := gocv.NewMat()
		mats = append(mats, &m)
		return &m
	}
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	blur := func(src gocv.Mat) *gocv.Mat {
		dst := newMat()
		gocv.Blur(src, dst, window)
		return dst
	}
	mul := func(p, q gocv.Mat) *gocv.Mat {
		dst := newMat()
		gocv.Multiply(p, q, dst)
		return dst
	}

	ux, uy := blur(x), blur(y)
	uxx, uyy, uxy := blur(*mul(x, x)), blur(*mul(y, y)), blur(*mul(x, y))

	// variances and covariance
	vx, vy, vxy := newMat(), newMat(), newMat()
	gocv.Subtract(*uxx, *mul(*ux, *ux), vx)
	gocv.Subtract(*uyy, *mul(*uy, *uy), vy)
	gocv.Subtract(*uxy, *mul(*ux, *uy), vxy)
	vx.MultiplyFloat(covNorm)
	vy.MultiplyFloat(covNorm)
	vxy.MultiplyFloat(covNorm)

	// (2*ux*uy + C1) * (2*vxy + C2)
	a1 := mul(*ux, *uy)
	a1.MultiplyFloat(2)
	a1.AddFloat(float32(ssimC1))
	a2 := vxy.Clone()
	mats = append(mats, &a2)
	a2.MultiplyFloat(2)
	a2.AddFloat(float32(ssimC2))

	// (ux^2 + uy^2 + C1) * (vx + vy + C2)
	b1 := newMat()
	gocv.Add(*mul(*ux, *ux), *mul(*uy, *uy), b1)
	b1.AddFloat(float32(ssimC1))
	b2 := newMat()
	gocv.Add(*vx, *vy, b2)
	b2.AddFloat(float32(ssimC2))

	ssimMap := newMat()
	gocv.Divide(*mul(*a1, a2), *mul(*b1, *b2), ssimMap)

	pad := (ssimWindow - 1) / 2
	inner := ssimMap.Region(image.Rect(pad, pad, ssimMap.Cols()-pad, ssimMap.Rows()-pad))
	defer inner.Close()

	return inner.Mean().Val1
}

func floatMat(m gocv.Mat) gocv.Mat {
	f := gocv.NewMat()
	m.ConvertTo(&f, gocv.MatTypeCV32F)
	return f
}

type digitHit struct {
	digit string
	x     int
	width int
	score float32
}

// ExtractDigits reads the number shown in img by matching every digit glyph
// across it and reading the surviving hits left to right.
func (v *Vision) ExtractDigits(img image.Image) (string, bool) {
	region, err := toGray(img)
	if err != nil {
		return "", false
	}
	defer region.Close()

	hits := []digitHit{}
	for _, g := range v.glyphs {
		if g.mat.Cols() > region.Cols() || g.mat.Rows() > region.Rows() {
			continue
		}
		hits = append(hits, glyphHits(region, g)...)
	}

	// strongest hit wins where glyphs overlap
	slices.SortFunc(hits, func(a, b digitHit) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return a.x - b.x
	})
	kept := []digitHit{}
	for _, hit := range hits {
		overlaps := lo.ContainsBy(kept, func(k digitHit) bool {
			return abs(k.x-hit.x) < min(k.width, hit.width)/2+1
		})
		if !overlaps {
			kept = append(kept, hit)
		}
	}
	if len(kept) == 0 {
		return "", false
	}

	slices.SortFunc(kept, func(a, b digitHit) int { return a.x - b.x })
	digits := strings.Join(lo.Map(kept, func(h digitHit, _ int) string { return h.digit }), "")
	return digits, true
}

// glyphHits returns every column where g matches above the digit threshold,
// keeping only the best row and suppressing neighbours within a glyph width.
func glyphHits(region gocv.Mat, g glyph) []digitHit {
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(region, g.mat, &result, gocv.TmCcoeffNormed, mask)
	scores, err := result.DataPtrFloat32()
	if err != nil {
		return nil
	}

	cols, rows := result.Cols(), result.Rows()
	best := make([]float32, cols)
	for r := range rows {
		for c := range cols {
			if s := scores[r*cols+c]; s > best[c] {
				best[c] = s
			}
		}
	}

	hits := []digitHit{}
	width := g.mat.Cols()
	for c := 0; c < cols; c++ {
		if best[c] <= digitThreshold {
			continue
		}
		peak := c
		for n := c; n < cols && n < c+width; n++ {
			if best[n] > best[peak] {
				peak = n
			}
		}
		hits = append(hits, digitHit{digit: g.digit, x: peak, width: width, score: best[peak]})
		c = peak + width - 1
	}

	return hits
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Resize scales img to size. The original is returned if OpenCV fails.
func (v *Vision) Resize(img image.Image, size image.Point) image.Image {
	src, err := gocv.ImageToMatRGB(toRGBA(img))
	if err != nil {
		return img
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, size, 0, 0, gocv.InterpolationLinear)

	resized, err := dst.ToImage()
	if err != nil {
		log.Debug().Err(err).Msg("resize failed")
		return img
	}
	return resized
}

// Decode reads any format OpenCV understands, webp included
func Decode(data []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, errors.New("could not decode image")
	}
	return mat.ToImage()
}
