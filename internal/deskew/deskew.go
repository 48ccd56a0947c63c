// Package deskew estimates the small rotation (a few degrees) of scanned
// text relative to the horizontal.
package deskew

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Estimation methods.
const (
	MethodHough = "hough"
	MethodPCA   = "pca"
	MethodNone  = "none"
)

// Config controls skew estimation.
type Config struct {
	// MaxSide bounds the analysis resolution; larger images are box-downscaled.
	MaxSide int
	// ClipLimit and Tiles configure CLAHE.
	ClipLimit float64
	Tiles     int
	// CannyLow and CannyHigh are the hysteresis thresholds.
	CannyLow  float32
	CannyHigh float32
	// HoughThreshold is the minimum accumulator vote count.
	HoughThreshold int
	// MaxAngle is the window around horizontal in which lines are kept.
	MaxAngle float64
	// MinPCAPixels is the dark pixel count required for the PCA fallback.
	MinPCAPixels int
	// MaxPCAPixels caps the PCA sample.
	MaxPCAPixels int
	// PCARejectAngle rejects PCA estimates at or above this magnitude.
	PCARejectAngle float64
	// MinSupportLines is the number of Hough lines that makes a near-zero
	// estimate trustworthy without the PCA fallback.
	MinSupportLines int
}

// DefaultConfig returns the standard estimator settings.
func DefaultConfig() Config {
	return Config{
		MaxSide:         1600,
		ClipLimit:       2.0,
		Tiles:           8,
		CannyLow:        50,
		CannyHigh:       150,
		HoughThreshold:  80,
		MaxAngle:        20,
		MinPCAPixels:    500,
		MaxPCAPixels:    200_000,
		PCARejectAngle:  25,
		MinSupportLines: 3,
	}
}

// Result is a skew estimate. Angle is in degrees, positive when text rises
// to the right (counter-clockwise); correct it by rotating by -Angle.
type Result struct {
	Angle  float64 `json:"angle"`
	Method string  `json:"method"`
	Lines  int     `json:"lines"`
}

// Estimator runs the Hough estimate with a PCA fallback.
type Estimator struct {
	cfg Config
}

// NewEstimator creates an estimator; zero fields take defaults.
func NewEstimator(cfg Config) *Estimator {
	def := DefaultConfig()
	if cfg.MaxSide <= 0 {
		cfg.MaxSide = def.MaxSide
	}
	if cfg.ClipLimit <= 0 {
		cfg.ClipLimit = def.ClipLimit
	}
	if cfg.Tiles <= 0 {
		cfg.Tiles = def.Tiles
	}
	if cfg.CannyHigh <= 0 {
		cfg.CannyLow, cfg.CannyHigh = def.CannyLow, def.CannyHigh
	}
	if cfg.HoughThreshold <= 0 {
		cfg.HoughThreshold = def.HoughThreshold
	}
	if cfg.MaxAngle <= 0 {
		cfg.MaxAngle = def.MaxAngle
	}
	if cfg.MinPCAPixels <= 0 {
		cfg.MinPCAPixels = def.MinPCAPixels
	}
	if cfg.MaxPCAPixels <= 0 {
		cfg.MaxPCAPixels = def.MaxPCAPixels
	}
	if cfg.PCARejectAngle <= 0 {
		cfg.PCARejectAngle = def.PCARejectAngle
	}
	if cfg.MinSupportLines <= 0 {
		cfg.MinSupportLines = def.MinSupportLines
	}
	return &Estimator{cfg: cfg}
}

// Estimate measures the skew of img.
func (e *Estimator) Estimate(img image.Image) (Result, error) {
	if img == nil {
		return Result{}, &utils.ImageProcessingError{Operation: "deskew", Err: fmt.Errorf("nil image")}
	}
	p, err := utils.ToPlane(img)
	if err != nil {
		return Result{}, err
	}
	if side := max(p.W, p.H); side > e.cfg.MaxSide {
		p = utils.Downscale(p, (side+e.cfg.MaxSide-1)/e.cfg.MaxSide)
	}

	angle, lines := e.houghAngle(p)
	res := Result{Angle: angle, Method: MethodHough, Lines: lines}
	if lines == 0 {
		res.Method = MethodNone
	}
	if math.Abs(angle) < 0.1 && lines < e.cfg.MinSupportLines {
		res = e.pcaAngle(p, lines)
	}
	slog.Debug("skew estimated", "angle", res.Angle, "method", res.Method, "lines", res.Lines)
	return res, nil
}

// houghAngle returns the median tilt of near-horizontal Hough lines and
// the number of lines supporting it.
func (e *Estimator) houghAngle(p *utils.Plane) (float64, int) {
	enhanced := utils.CLAHE(p, e.cfg.ClipLimit, e.cfg.Tiles)
	edges := utils.Canny(enhanced, e.cfg.CannyLow, e.cfg.CannyHigh)

	lo, hi := 90-e.cfg.MaxAngle, 90+e.cfg.MaxAngle+1
	coarse := e.horizontal(utils.HoughLines(edges, p.W, p.H, lo, hi, 1, e.cfg.HoughThreshold))
	if len(coarse) == 0 {
		return 0, 0
	}
	peak := 90 - utils.Median(coarse)

	fine := e.horizontal(utils.HoughLines(edges, p.W, p.H, peak-1, peak+1.05, 0.1, e.cfg.HoughThreshold))
	if len(fine) == 0 {
		return utils.Median(coarse), len(coarse)
	}
	return utils.Median(fine), len(fine)
}

func (e *Estimator) horizontal(lines []utils.Line) []float64 {
	angles := make([]float64, 0, len(lines))
	for _, l := range lines {
		if l.IsNearHorizontal(e.cfg.MaxAngle) {
			angles = append(angles, l.AngleDeg())
		}
	}
	return angles
}

// pcaAngle estimates the tilt from the principal axis of the ink pixels.
func (e *Estimator) pcaAngle(p *utils.Plane, lines int) Result {
	mask := utils.InkMask(p)
	angle, n := utils.PrincipalAngle(mask, p.W, p.H, e.cfg.MaxPCAPixels)
	if n < min(e.cfg.MinPCAPixels, e.cfg.MaxPCAPixels) {
		return Result{Method: MethodNone, Lines: lines}
	}
	if math.Abs(angle) >= e.cfg.PCARejectAngle {
		return Result{Method: MethodNone, Lines: lines}
	}
	return Result{Angle: angle, Method: MethodPCA, Lines: lines}
}

// ShouldCorrect reports whether the angle is large enough to rotate for.
func ShouldCorrect(angle, threshold float64) bool {
	return math.Abs(angle) >= threshold
}
