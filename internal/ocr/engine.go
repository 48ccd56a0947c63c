// Package ocr defines the OCR engine contract and the adapter that runs a
// primary engine with a fallback.
package ocr

import (
	"context"
	"image"
	"math"
	"sort"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Engine tags understood by the registry.
const (
	KindPaddle    = "paddle"
	KindTesseract = "tesseract"
	KindNone      = "none"
)

// Engine recognizes text in a page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) (*Result, error)
	Close() error
}

// Detection is one recognized text region.
type Detection struct {
	Quad       utils.Quad `json:"quad"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
}

// Result is an engine's output for one image.
type Result struct {
	Text       string      `json:"text"`
	Confidence float64     `json:"confidence"`
	Detections []Detection `json:"detections,omitempty"`
	Engine     string      `json:"engine"`
}

// Line is a group of detections sharing a baseline, left to right.
type Line struct {
	Text       string
	Box        utils.Box
	Detections []Detection
}

// lineOverlap is the minimum vertical overlap for two detections to share a line.
const lineOverlap = 0.5

// Lines groups the detections into reading-order lines.
func (r *Result) Lines() []Line {
	return GroupLines(r.Detections)
}

// GroupLines sorts detections top to bottom and merges those that overlap
// vertically into lines. Within a line, words are joined with a space only
// when the horizontal gap exceeds half the line height.
func GroupLines(dets []Detection) []Line {
	if len(dets) == 0 {
		return nil
	}
	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quad.Bounds().CenterY() < sorted[j].Quad.Bounds().CenterY()
	})

	var lines []Line
	for _, d := range sorted {
		b := d.Quad.Bounds()
		if n := len(lines); n > 0 && lines[n-1].Box.VerticalOverlap(b) >= lineOverlap {
			cur := &lines[n-1]
			cur.Detections = append(cur.Detections, d)
			cur.Box = utils.NewBox(math.Min(cur.Box.MinX, b.MinX), math.Min(cur.Box.MinY, b.MinY),
				math.Max(cur.Box.MaxX, b.MaxX), math.Max(cur.Box.MaxY, b.MaxY))
			continue
		}
		lines = append(lines, Line{Box: b, Detections: []Detection{d}})
	}

	for i := range lines {
		ds := lines[i].Detections
		sort.SliceStable(ds, func(a, b int) bool {
			return ds[a].Quad.Bounds().MinX < ds[b].Quad.Bounds().MinX
		})
		var sb strings.Builder
		prevMaxX := math.Inf(-1)
		gap := lines[i].Box.Height() / 2
		for _, d := range ds {
			b := d.Quad.Bounds()
			if sb.Len() > 0 && b.MinX-prevMaxX > gap {
				sb.WriteByte(' ')
			}
			sb.WriteString(strings.TrimSpace(d.Text))
			prevMaxX = b.MaxX
		}
		lines[i].Text = sb.String()
	}
	return lines
}

// JoinLines renders lines as newline separated text.
func JoinLines(lines []Line) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Text != "" {
			parts = append(parts, l.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MeanConfidence averages detection confidences; zero when there are none.
func MeanConfidence(dets []Detection) float64 {
	if len(dets) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dets {
		sum += d.Confidence
	}
	return sum / float64(len(dets))
}
