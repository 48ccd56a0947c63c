// Package orientation decides whether a scanned page must be rotated by a
// multiple of 90 degrees before OCR.
package orientation

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Signal weights.
const (
	weightEdge       = 0.3
	weightPosition   = 0.2
	weightProjection = 0.3
	weightHough      = 0.2
)

// Config controls rotation detection.
type Config struct {
	// Force4Way checks all four angles on portrait pages instead of {0, 180}.
	Force4Way bool
	// MinMargin is the score lead over 0° a rotation needs.
	MinMargin float64
	// ThumbnailSide is the maximum side of the analysis thumbnail.
	ThumbnailSide int
	// HoughTolerance is the angular window (degrees) counting as horizontal or vertical.
	HoughTolerance float64
}

// DefaultConfig provides the standard detection settings.
func DefaultConfig() Config {
	return Config{
		MinMargin:      0.1,
		ThumbnailSide:  800,
		HoughTolerance: 15,
	}
}

// Signals are the raw per-candidate measurements.
type Signals struct {
	EdgeRatio  float64 `json:"edge_ratio"`
	Position   float64 `json:"position"`
	Projection float64 `json:"projection"`
	Hough      float64 `json:"hough"`
}

// Result is the rotation decision. Angle is the counter-clockwise rotation
// that makes the text upright.
type Result struct {
	Angle     int             `json:"angle"`
	Score     float64         `json:"score"`
	Margin    float64         `json:"margin"`
	Landscape bool            `json:"landscape"`
	Scores    map[int]float64 `json:"scores"`
	Signals   map[int]Signals `json:"-"`
}

// Detector scores candidate rotations with edge, ink position, projection
// and Hough line signals.
type Detector struct {
	cfg Config
}

// NewDetector creates a rotation detector.
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.MinMargin <= 0 {
		cfg.MinMargin = def.MinMargin
	}
	if cfg.ThumbnailSide <= 0 {
		cfg.ThumbnailSide = def.ThumbnailSide
	}
	if cfg.HoughTolerance <= 0 {
		cfg.HoughTolerance = def.HoughTolerance
	}
	return &Detector{cfg: cfg}
}

// Candidates returns the angles examined for an image of the given size.
// 0° is always scored as the baseline.
func (d *Detector) Candidates(width, height int) []int {
	switch {
	case width > height:
		return []int{90, 270}
	case d.cfg.Force4Way:
		return []int{0, 90, 180, 270}
	default:
		return []int{0, 180}
	}
}

// Detect returns the rotation that makes img upright. Blank or degenerate
// images yield angle 0.
func (d *Detector) Detect(img image.Image) (Result, error) {
	if img == nil {
		return Result{}, &utils.ImageProcessingError{Operation: "orientation", Err: fmt.Errorf("nil image")}
	}
	b := img.Bounds()
	if b.Dx() < 2 || b.Dy() < 2 {
		return Result{}, nil
	}
	thumb := prepareThumbnail(img, d.cfg.ThumbnailSide)
	landscape := b.Dx() > b.Dy()

	angles := d.Candidates(b.Dx(), b.Dy())
	scored := angles
	if !containsAngle(angles, 0) {
		scored = append([]int{0}, angles...)
	}

	signals := make(map[int]Signals, len(scored))
	for _, angle := range scored {
		s, err := d.measure(rotate(thumb, angle))
		if err != nil {
			return Result{}, err
		}
		signals[angle] = s
	}
	scores := combine(signals)

	best := angles[0]
	for _, a := range angles[1:] {
		if scores[a] > scores[best] {
			best = a
		}
	}
	res := Result{
		Angle:     best,
		Score:     scores[best],
		Margin:    scores[best] - scores[0],
		Landscape: landscape,
		Scores:    scores,
		Signals:   signals,
	}
	if res.Margin < d.cfg.MinMargin {
		res.Angle = 0
	}
	slog.Debug("orientation decided", "angle", res.Angle, "best", best, "margin", res.Margin,
		"landscape", landscape, "scores", scores)
	return res, nil
}

// measure computes the four raw signals on an upright-candidate thumbnail.
func (d *Detector) measure(img *image.NRGBA) (Signals, error) {
	p, err := utils.ToPlane(img)
	if err != nil {
		return Signals{}, err
	}
	gx, gy := utils.Sobel(p)
	var sumX, sumY float64
	for i := range gx.Pix {
		sumX += math.Abs(float64(gx.Pix[i]))
		sumY += math.Abs(float64(gy.Pix[i]))
	}

	mask := utils.InkMask(p)
	var top, bottom float64
	rows := make([]float64, p.H)
	cols := make([]float64, p.W)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			if !mask[y*p.W+x] {
				continue
			}
			rows[y]++
			cols[x]++
			if y < p.H/2 {
				top++
			} else {
				bottom++
			}
		}
	}

	return Signals{
		EdgeRatio:  sumY / (sumX + 1),
		Position:   top / (bottom + 0.01),
		Projection: utils.Variance(rows) / (utils.Variance(cols) + 1),
		Hough:      d.houghScore(p),
	}, nil
}

// houghScore compares near-horizontal with near-vertical line counts.
func (d *Detector) houghScore(p *utils.Plane) float64 {
	edges := utils.Canny(p, 50, 150)
	threshold := max(30, min(p.W, p.H)/6)
	lines := utils.HoughLines(edges, p.W, p.H, 0, 180, 1, threshold)
	var horizontal, vertical int
	for _, l := range lines {
		switch {
		case l.IsNearHorizontal(d.cfg.HoughTolerance):
			horizontal++
		case l.IsNearVertical(d.cfg.HoughTolerance):
			vertical++
		}
	}
	return float64(horizontal) / float64(vertical+1)
}

// combine normalizes every signal by its maximum over the candidates and
// applies the weights.
func combine(signals map[int]Signals) map[int]float64 {
	var maxS Signals
	for _, s := range signals {
		maxS.EdgeRatio = math.Max(maxS.EdgeRatio, s.EdgeRatio)
		maxS.Position = math.Max(maxS.Position, s.Position)
		maxS.Projection = math.Max(maxS.Projection, s.Projection)
		maxS.Hough = math.Max(maxS.Hough, s.Hough)
	}
	scores := make(map[int]float64, len(signals))
	for angle, s := range signals {
		scores[angle] = weightEdge*ratio(s.EdgeRatio, maxS.EdgeRatio) +
			weightPosition*ratio(s.Position, maxS.Position) +
			weightProjection*ratio(s.Projection, maxS.Projection) +
			weightHough*ratio(s.Hough, maxS.Hough)
	}
	return scores
}

func ratio(v, maxV float64) float64 {
	if maxV <= 0 {
		return 0
	}
	return v / maxV
}

func prepareThumbnail(img image.Image, side int) *image.NRGBA {
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) <= side {
		return utils.ToRGB(img)
	}
	return imaging.Fit(utils.ToRGB(img), side, side, imaging.Box)
}

// Rotate turns img counter-clockwise by a multiple of 90 degrees.
func Rotate(img image.Image, angle int) *image.NRGBA {
	return rotate(img, angle)
}

func rotate(img image.Image, angle int) *image.NRGBA {
	switch ((angle % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate90(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate270(img)
	default:
		return imaging.Clone(img)
	}
}

func containsAngle(angles []int, a int) bool {
	for _, v := range angles {
		if v == a {
			return true
		}
	}
	return false
}
