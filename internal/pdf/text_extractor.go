package pdf

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/dslipak/pdf"
)

// DefaultQualityThreshold is the minimum text layer quality that replaces OCR.
const DefaultQualityThreshold = 0.7

// minQualityRunes is the non-space length at which length stops limiting quality.
const minQualityRunes = 20

// TextLayer is the vector text of page 1.
type TextLayer struct {
	Text    string   `json:"text"`
	Lines   []string `json:"lines"`
	Quality float64  `json:"quality"`
}

// Usable reports whether the layer is good enough to skip OCR.
func (t *TextLayer) Usable(threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}
	return t != nil && t.Quality >= threshold
}

// ExtractTextLayer reads page 1's text with dslipak/pdf, grouping glyphs into
// rows by Y and ordering each row by X.
func ExtractTextLayer(filename string) (tl *TextLayer, err error) {
	defer func() {
		// the parser panics on some malformed content streams
		if p := recover(); p != nil {
			tl, err = nil, fmt.Errorf("text layer: parser panic: %v", p)
		}
	}()

	reader, err := pdf.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF %q: %w", filename, err)
	}
	if reader.NumPage() < 1 {
		return &TextLayer{}, nil
	}
	page := reader.Page(1)
	if page.V.IsNull() {
		return &TextLayer{}, nil
	}

	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("text layer: %w", err)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position > rows[j].Position })

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		if line := joinRow(row.Content); line != "" {
			lines = append(lines, line)
		}
	}
	text := strings.Join(lines, "\n")
	return &TextLayer{Text: text, Lines: lines, Quality: assessTextQuality(text)}, nil
}

// joinRow concatenates a row's glyph runs left to right, inserting a space
// where the gap is wider than a third of the font size.
func joinRow(texts pdf.TextHorizontal) string {
	sorted := append(pdf.TextHorizontal(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var sb strings.Builder
	prevEnd := math.Inf(-1)
	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		gap := math.Max(t.FontSize/3, 1)
		if sb.Len() > 0 && t.X-prevEnd > gap {
			sb.WriteByte(' ')
		}
		sb.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return strings.TrimSpace(sb.String())
}

// assessTextQuality scores text by its printable ratio, scaled down for
// very short layers.
func assessTextQuality(text string) float64 {
	total, printable, nonSpace := 0, 0, 0
	for _, r := range text {
		if r == '\n' {
			continue
		}
		total++
		if r != unicode.ReplacementChar && unicode.IsPrint(r) {
			printable++
		}
		if !unicode.IsSpace(r) {
			nonSpace++
		}
	}
	if total == 0 || nonSpace == 0 {
		return 0
	}
	ratio := float64(printable) / float64(total)
	length := math.Min(1, float64(nonSpace)/minQualityRunes)
	return ratio * length
}
