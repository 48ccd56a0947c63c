package testutil

import (
	"context"
	"image"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// FakeEngine is a deterministic OCR engine returning fixed text.
type FakeEngine struct {
	EngineName string
	Text       string
	Confidence float64
	Err        error
	Delay      time.Duration
	Calls      atomic.Int32
	Closed     atomic.Bool
}

// NewFakeEngine returns an engine that answers every image with text.
func NewFakeEngine(name, text string) *FakeEngine {
	return &FakeEngine{EngineName: name, Text: text, Confidence: 0.95}
}

// Name implements ocr.Engine.
func (f *FakeEngine) Name() string { return f.EngineName }

// Recognize implements ocr.Engine. Each text line becomes one detection on
// a fixed 40px grid so line grouping reproduces the text.
func (f *FakeEngine) Recognize(ctx context.Context, _ image.Image) (*ocr.Result, error) {
	f.Calls.Add(1)
	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	var dets []ocr.Detection
	for i, line := range strings.Split(f.Text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		y := float64(20 + 40*i)
		dets = append(dets, ocr.Detection{
			Quad:       utils.QuadFromBox(utils.NewBox(20, y, 20+float64(len(line))*12, y+30)),
			Text:       line,
			Confidence: f.Confidence,
		})
	}
	return &ocr.Result{Text: f.Text, Confidence: f.Confidence, Detections: dets}, nil
}

// Close implements ocr.Engine.
func (f *FakeEngine) Close() error {
	f.Closed.Store(true)
	return nil
}

// Factory returns an ocr.Factory that always yields f.
func (f *FakeEngine) Factory() ocr.Factory {
	return func(ocr.Key) (ocr.Engine, error) { return f, nil }
}
