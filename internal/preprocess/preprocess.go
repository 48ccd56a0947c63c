// Package preprocess turns an acquired page into an OCR-friendly image:
// deskewed, upright, large enough, evenly lit, contrast stretched and padded.
package preprocess

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/deskew"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/orientation"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Config controls the enhancement stages.
type Config struct {
	// SkewThreshold is the minimum estimated skew (degrees) that is corrected.
	SkewThreshold float64
	// Sharpen enables the unsharp mask stage; LiteMode disables it as well.
	Sharpen  bool
	LiteMode bool
	// MinSide is the side length below which the page is upscaled.
	MinSide int
	// MaxUpscale caps the upscale factor.
	MaxUpscale float64
	// BorderPx is the white padding added on every side.
	BorderPx int
	// ShadowSpread is the block-mean luminance range that triggers shadow removal.
	ShadowSpread float64
	// Force4Way checks all four rotations on portrait pages.
	Force4Way bool
}

// DefaultConfig returns the standard enhancement settings.
func DefaultConfig() Config {
	return Config{
		SkewThreshold: 0.5,
		Sharpen:       true,
		MinSide:       1200,
		MaxUpscale:    3,
		BorderPx:      10,
		ShadowSpread:  30,
	}
}

// Result is the enhanced page and a record of the corrections applied.
type Result struct {
	Image         *image.NRGBA
	Rotated       bool
	RotationAngle int
	Deskewed      bool
	SkewAngle     float64
	ShadowRemoved bool
	Enhanced      bool
	Upscaled      bool
	ScaleFactor   float64
	StrokeAdjust  string
}

// Info returns the audit subset stored on the extraction result.
func (r *Result) Info() *document.PreprocessInfo {
	return &document.PreprocessInfo{
		Rotated:       r.Rotated,
		RotationAngle: r.RotationAngle,
		Deskewed:      r.Deskewed,
		SkewAngle:     r.SkewAngle,
		ShadowRemoved: r.ShadowRemoved,
		Enhanced:      r.Enhanced,
	}
}

// Enhancer runs the fixed stage sequence.
type Enhancer struct {
	cfg       Config
	estimator *deskew.Estimator
	detector  *orientation.Detector
}

// NewEnhancer creates an enhancer with its own skew estimator and rotation detector.
func NewEnhancer(cfg Config) *Enhancer {
	def := DefaultConfig()
	if cfg.MinSide <= 0 {
		cfg.MinSide = def.MinSide
	}
	if cfg.MaxUpscale < 1 {
		cfg.MaxUpscale = def.MaxUpscale
	}
	if cfg.BorderPx < 0 {
		cfg.BorderPx = 0
	}
	if cfg.ShadowSpread <= 0 {
		cfg.ShadowSpread = def.ShadowSpread
	}
	ocfg := orientation.DefaultConfig()
	ocfg.Force4Way = cfg.Force4Way
	return &Enhancer{
		cfg:       cfg,
		estimator: deskew.NewEstimator(deskew.DefaultConfig()),
		detector:  orientation.NewDetector(ocfg),
	}
}

// Enhance runs deskew, rotation, upscale, shadow removal, contrast stretch,
// stroke adjustment, sharpening and border padding in that order. A page
// that needs none of the substantive corrections and is already large enough
// is returned unchanged with Enhanced=false.
func (e *Enhancer) Enhance(ctx context.Context, img image.Image) (*Result, error) {
	if img == nil {
		return nil, document.NewError(document.ErrPreprocess, "preprocess", "nil image", nil)
	}
	start := time.Now()
	src := utils.ToRGB(img)
	res := &Result{Image: src, ScaleFactor: 1}
	cur := src

	// 1. deskew
	skew, err := e.estimator.Estimate(cur)
	if err != nil {
		return nil, wrap("deskew", err)
	}
	if deskew.ShouldCorrect(skew.Angle, e.cfg.SkewThreshold) {
		cur = imaging.Rotate(cur, -skew.Angle, color.White)
		res.Deskewed = true
		res.SkewAngle = skew.Angle
	}
	if err := checkpoint(ctx, "deskew"); err != nil {
		return nil, err
	}

	// 2. rotate, decided on the deskewed page
	rot, err := e.detector.Detect(cur)
	if err != nil {
		return nil, wrap("rotate", err)
	}
	if rot.Angle != 0 {
		cur = orientation.Rotate(cur, rot.Angle)
		res.Rotated = true
		res.RotationAngle = rot.Angle
	}
	if err := checkpoint(ctx, "rotate"); err != nil {
		return nil, err
	}

	// 3. upscale
	b := cur.Bounds()
	if b.Dx() < e.cfg.MinSide || b.Dy() < e.cfg.MinSide {
		factor := math.Max(float64(e.cfg.MinSide)/float64(b.Dx()), float64(e.cfg.MinSide)/float64(b.Dy()))
		factor = math.Min(factor, e.cfg.MaxUpscale)
		if factor > 1 {
			w := int(math.Round(float64(b.Dx()) * factor))
			h := int(math.Round(float64(b.Dy()) * factor))
			cur = imaging.Resize(cur, w, h, imaging.CatmullRom)
			res.Upscaled = true
			res.ScaleFactor = factor
		}
	}
	if err := checkpoint(ctx, "upscale"); err != nil {
		return nil, err
	}

	plane, err := utils.ToPlane(cur)
	if err != nil {
		return nil, wrap("luminance", err)
	}

	// 4. shadow removal
	if shadowed(plane, e.cfg.ShadowSpread) {
		plane = removeShadow(plane)
		res.ShadowRemoved = true
	}
	if err := checkpoint(ctx, "shadow"); err != nil {
		return nil, err
	}

	// 5. contrast stretch
	plane = utils.StretchPercentile(plane, 2, 98)

	// 6. stroke adjust
	op := strokeOp(plane)
	if op != utils.MorphNone {
		plane = utils.ApplyMorphologicalOperation(plane, utils.MorphConfig{Operation: op, KernelSize: 2, Iterations: 1})
		res.StrokeAdjust = op.String()
	}
	if err := checkpoint(ctx, "stroke"); err != nil {
		return nil, err
	}

	substantive := res.Deskewed || res.Rotated || res.Upscaled || res.ShadowRemoved || res.StrokeAdjust != ""
	if !substantive {
		slog.Debug("preprocess skipped", "width", b.Dx(), "height", b.Dy(),
			"duration_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	// 7. sharpen
	if e.cfg.Sharpen && !e.cfg.LiteMode {
		plane = utils.UnsharpMask(plane, 1.0, 1.5)
	}

	// 8. border
	res.Image = pad(plane.ToNRGBA(), e.cfg.BorderPx)
	res.Enhanced = true
	slog.Debug("preprocess done",
		"skew", res.SkewAngle, "rotation", res.RotationAngle, "scale", res.ScaleFactor,
		"shadow", res.ShadowRemoved, "stroke", res.StrokeAdjust,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// shadowed reports whether the 4×4 block means of luminance spread more than spread.
func shadowed(p *utils.Plane, spread float64) bool {
	means := utils.BlockMeans(p, 4)
	if len(means) == 0 {
		return false
	}
	lo, hi := means[0], means[0]
	for _, m := range means[1:] {
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	return hi-lo > spread
}

// removeShadow divides the page by a heavily blurred background estimate
// and rescales to the background mean. The blur runs at quarter resolution.
func removeShadow(p *utils.Plane) *utils.Plane {
	k := max(p.W, p.H) / 10
	if k%2 == 0 {
		k++
	}
	k = max(k, 51)

	small := utils.Downscale(p, 4)
	kq := k / 4
	if kq%2 == 0 {
		kq++
	}
	kq = max(kq, 3)
	bgSmall := utils.GaussianBlur(small, utils.SigmaForKernel(kq), kq)
	bg := utils.ResizeBilinear(bgSmall, p.W, p.H)

	mean := float32(bg.Mean())
	out := utils.NewPlane(p.W, p.H)
	for i, v := range p.Pix {
		b := bg.Pix[i]
		if b < 1 {
			b = 1
		}
		out.Pix[i] = utils.ClampValue(v / b * mean)
	}
	return utils.StretchPercentile(out, 2, 98)
}

// strokeOp thickens faint text and thins bleeding text based on the Otsu
// ink ratio. A page without ink is left alone.
func strokeOp(p *utils.Plane) utils.MorphologicalOp {
	ratio := utils.InkRatio(utils.InkMask(p))
	switch {
	case ratio > 0 && ratio < 0.03:
		return utils.MorphDilate
	case ratio > 0.15:
		return utils.MorphErode
	default:
		return utils.MorphNone
	}
}

func pad(img *image.NRGBA, border int) *image.NRGBA {
	if border <= 0 {
		return img
	}
	b := img.Bounds()
	canvas := imaging.New(b.Dx()+2*border, b.Dy()+2*border, color.White)
	return imaging.Paste(canvas, img, image.Pt(border, border))
}

func checkpoint(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return document.NewError(document.ErrPreprocess, "preprocess", stage+" interrupted", err)
	}
	return nil
}

func wrap(stage string, err error) error {
	return document.NewError(document.ErrPreprocess, "preprocess", stage, err)
}
