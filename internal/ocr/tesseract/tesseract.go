// Package tesseract is the fallback OCR engine. The default build shells out
// to the tesseract CLI; building with the gosseract tag links libtesseract
// through cgo instead.
package tesseract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// DefaultLanguages is used when the registry key carries none.
var DefaultLanguages = []string{"jpn", "eng"}

// Config configures the engine.
type Config struct {
	// Path is the tesseract executable.
	Path        string
	TessdataDir string
	// PSM is the page segmentation mode; zero leaves tesseract's default.
	PSM    int
	Runner ocr.Runner
}

// DefaultConfig returns the CLI defaults (single block segmentation).
func DefaultConfig() Config {
	return Config{Path: "tesseract", PSM: 6}
}

// CLIEngine runs the tesseract executable once per image.
type CLIEngine struct {
	cfg       Config
	languages []string
	runner    ocr.Runner
}

// NewCLI builds a CLI engine. It does not check that the executable exists;
// a missing binary surfaces as a Recognize error so the adapter can record it.
func NewCLI(cfg Config, languages []string) *CLIEngine {
	if cfg.Path == "" {
		cfg.Path = "tesseract"
	}
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	r := cfg.Runner
	if r == nil {
		r = ocr.ExecRunner{}
	}
	return &CLIEngine{cfg: cfg, languages: orderLanguages(languages), runner: r}
}

// orderLanguages puts jpn first; tesseract treats the first language as primary.
func orderLanguages(langs []string) []string {
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		if l == "jpn" {
			out = append(out, l)
		}
	}
	for _, l := range langs {
		if l != "jpn" {
			out = append(out, l)
		}
	}
	return out
}

// Name implements ocr.Engine.
func (e *CLIEngine) Name() string { return ocr.KindTesseract }

// Close implements ocr.Engine.
func (e *CLIEngine) Close() error { return nil }

// Args returns the command line for an image file.
func (e *CLIEngine) Args(imagePath string) []string {
	args := []string{imagePath, "stdout", "-l", strings.Join(e.languages, "+")}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(e.cfg.PSM))
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return append(args, "tsv")
}

// Recognize writes img to a scratch PNG and parses tesseract's TSV output.
func (e *CLIEngine) Recognize(ctx context.Context, img image.Image) (*ocr.Result, error) {
	if img == nil {
		return nil, errors.New("tesseract: nil image")
	}
	start := time.Now()
	var res *ocr.Result
	err := ocr.ScratchDir("seisan-tess-*", func(dir string) error {
		path := filepath.Join(dir, "page.png")
		if err := writePNG(path, img); err != nil {
			return err
		}
		out, errb, err := e.runner.Run(ctx, e.cfg.Path, e.Args(path)...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("tesseract: %w", ctxErr)
			}
			msg := strings.TrimSpace(string(errb))
			if msg != "" {
				return fmt.Errorf("tesseract: %w: %s", err, msg)
			}
			return fmt.Errorf("tesseract: %w", err)
		}
		res, err = ParseTSV(out)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("tesseract recognized", "words", len(res.Detections), "confidence", res.Confidence,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("tesseract: encode page: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("tesseract: write page: %w", err)
	}
	return nil
}

// TSV column indices (tesseract 4+).
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	tsvColumns
)

// wordLevel is the TSV level of individual words.
const wordLevel = 5

type lineID struct{ block, par, line int }

// ParseTSV converts tesseract TSV into word detections. Words are grouped
// into lines by their block, paragraph and line ids; confidence is the mean
// word confidence scaled to [0,1].
func ParseTSV(data []byte) (*ocr.Result, error) {
	rows := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	if len(rows) == 0 || !strings.HasPrefix(rows[0], "level") {
		if strings.TrimSpace(string(data)) == "" {
			return &ocr.Result{}, nil
		}
		return nil, errors.New("tesseract: output is not TSV")
	}

	var (
		order  []lineID
		groups = make(map[lineID][]ocr.Detection)
		all    []ocr.Detection
	)
	for _, row := range rows[1:] {
		cols := strings.Split(row, "\t")
		if len(cols) < tsvColumns {
			continue
		}
		if lvl, err := strconv.Atoi(cols[colLevel]); err != nil || lvl != wordLevel {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[colText:], "\t"))
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf < 0 || text == "" {
			continue
		}
		box, ok := parseBox(cols)
		if !ok {
			continue
		}
		id := lineID{atoi(cols[colBlock]), atoi(cols[colPar]), atoi(cols[colLine])}
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		d := ocr.Detection{Quad: utils.QuadFromBox(box), Text: text, Confidence: conf / 100}
		groups[id] = append(groups[id], d)
		all = append(all, d)
	}

	var lines []ocr.Line
	for _, id := range order {
		lines = append(lines, ocr.GroupLines(groups[id])...)
	}
	return &ocr.Result{
		Text:       ocr.JoinLines(lines),
		Confidence: ocr.MeanConfidence(all),
		Detections: all,
	}, nil
}

func parseBox(cols []string) (utils.Box, bool) {
	var v [4]float64
	for i, c := range []int{colLeft, colTop, colWidth, colHeight} {
		f, err := strconv.ParseFloat(cols[c], 64)
		if err != nil {
			return utils.Box{}, false
		}
		v[i] = f
	}
	return utils.NewBox(v[0], v[1], v[0]+v[2], v[1]+v[3]), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
