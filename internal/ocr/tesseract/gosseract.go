//go:build gosseract

package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sort"

	"github.com/otiai10/gosseract/v2"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Factory returns a registry factory for the libtesseract engine.
func Factory(cfg Config) ocr.Factory {
	return func(key ocr.Key) (ocr.Engine, error) {
		return NewClient(cfg, key.LanguageList()), nil
	}
}

// ClientEngine recognizes through gosseract, one client per call.
type ClientEngine struct {
	cfg           Config
	languages     []string
	clientFactory func() *gosseract.Client
}

// NewClient builds a gosseract-backed engine.
func NewClient(cfg Config, languages []string) *ClientEngine {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	return &ClientEngine{cfg: cfg, languages: orderLanguages(languages), clientFactory: gosseract.NewClient}
}

// Name implements ocr.Engine.
func (e *ClientEngine) Name() string { return ocr.KindTesseract }

// Close implements ocr.Engine.
func (e *ClientEngine) Close() error { return nil }

// Recognize implements ocr.Engine.
func (e *ClientEngine) Recognize(ctx context.Context, img image.Image) (*ocr.Result, error) {
	if img == nil {
		return nil, errors.New("tesseract: nil image")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("tesseract: encode page: %w", err)
	}

	c := e.clientFactory()
	defer c.Close()
	if e.cfg.TessdataDir != "" {
		if err := c.SetTessdataPrefix(e.cfg.TessdataDir); err != nil {
			return nil, fmt.Errorf("tesseract: set tessdata: %w", err)
		}
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("tesseract: set languages: %w", err)
	}
	if e.cfg.PSM > 0 {
		if err := c.SetPageSegMode(gosseract.PageSegMode(e.cfg.PSM)); err != nil {
			return nil, fmt.Errorf("tesseract: set psm: %w", err)
		}
	}
	if err := c.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("tesseract: set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("tesseract: recognize: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	groups := make(map[lineID][]ocr.Detection)
	var order []lineID
	var all []ocr.Detection
	for _, b := range boxes {
		if b.Word == "" || b.Confidence < 0 {
			continue
		}
		id := lineID{b.BlockNum, b.ParNum, b.LineNum}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		box := utils.NewBox(float64(b.Box.Min.X), float64(b.Box.Min.Y), float64(b.Box.Max.X), float64(b.Box.Max.Y))
		d := ocr.Detection{Quad: utils.QuadFromBox(box), Text: b.Word, Confidence: b.Confidence / 100}
		groups[id] = append(groups[id], d)
		all = append(all, d)
	}
	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.block != b.block {
			return a.block < b.block
		}
		if a.par != b.par {
			return a.par < b.par
		}
		return a.line < b.line
	})
	var lines []ocr.Line
	for _, id := range order {
		lines = append(lines, ocr.GroupLines(groups[id])...)
	}
	return &ocr.Result{Text: ocr.JoinLines(lines), Confidence: ocr.MeanConfidence(all), Detections: all}, nil
}
