package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Page sources.
const (
	SourceEmbedded = "embedded"
	SourceRendered = "rendered"
)

// ErrNoRaster is returned when neither extraction nor rendering produced an image.
var ErrNoRaster = errors.New("no raster for page 1")

// MinEmbeddedDPI is the native resolution an embedded image needs to stand
// in for the rendered page. Targets below it lower the bar to the target.
const MinEmbeddedDPI = 100

// maxAspectDrift is the relative aspect ratio difference tolerated between an
// embedded image and the page.
const maxAspectDrift = 0.1

// Config configures image acquisition.
type Config struct {
	DPI          int
	PdftoppmPath string
	Runner       ocr.Runner
}

// DefaultConfig returns 300 DPI with pdftoppm from PATH.
func DefaultConfig() Config {
	return Config{DPI: 300, PdftoppmPath: "pdftoppm"}
}

// Page is the acquired first page.
type Page struct {
	Image     *image.NRGBA
	PageCount int
	// WidthPt and HeightPt are the page size in PDF points.
	WidthPt  float64
	HeightPt float64
	Source   string
}

// Acquirer turns a PDF path into a page-1 raster.
type Acquirer struct {
	cfg Config
}

// NewAcquirer creates an acquirer.
func NewAcquirer(cfg Config) *Acquirer {
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.PdftoppmPath == "" {
		cfg.PdftoppmPath = "pdftoppm"
	}
	if cfg.Runner == nil {
		cfg.Runner = ocr.ExecRunner{}
	}
	return &Acquirer{cfg: cfg}
}

// CheckFile validates that path is a readable, non-empty PDF with at least
// one page and returns the page count. Failures have kind document.ErrInput.
func CheckFile(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // G304: caller-supplied document path
	if err != nil {
		return 0, document.NewError(document.ErrInput, "acquire", "cannot open file", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, document.NewError(document.ErrInput, "acquire", "cannot stat file", err)
	}
	if info.IsDir() {
		return 0, document.Inputf("acquire", "%s is a directory", filepath.Base(path))
	}
	if info.Size() == 0 {
		return 0, document.Inputf("acquire", "empty file")
	}

	head := make([]byte, 1024)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, document.NewError(document.ErrInput, "acquire", "cannot read file", err)
	}
	if !bytes.Contains(head[:n], []byte("%PDF-")) {
		return 0, document.Inputf("acquire", "not a PDF")
	}

	pages, err := PageCount(path)
	if err != nil {
		return 0, document.NewError(document.ErrInput, "acquire", "not a PDF", err)
	}
	if pages == 0 {
		return 0, document.Inputf("acquire", "zero pages")
	}
	return pages, nil
}

// FirstPage returns page 1 as an opaque RGB image at the configured DPI.
// An embedded image is used only when it is a scan of the whole page;
// anything else is rendered with pdftoppm. When no raster
// can be produced the returned Page has a nil Image and the error has kind
// document.ErrPreprocess.
func (a *Acquirer) FirstPage(ctx context.Context, path string) (*Page, error) {
	pages, err := CheckFile(path)
	if err != nil {
		return nil, err
	}
	w, h := PageSize(path)
	page := &Page{PageCount: pages, WidthPt: w, HeightPt: h}

	start := time.Now()
	images, extractErr := ExtractImages(path, 1)
	if extractErr != nil {
		slog.Debug("embedded image extraction failed", "file", filepath.Base(path), "error", extractErr)
	}
	img := Largest(images)
	if img != nil && !CoversPage(img.Bounds(), w, h, a.cfg.DPI) {
		slog.Debug("embedded image does not cover the page", "file", filepath.Base(path),
			"width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "page_width_pt", w, "page_height_pt", h)
		img = nil
	}
	if img != nil {
		page.Image = a.scaleToDPI(utils.ToRGB(img), w, h)
		page.Source = SourceEmbedded
		slog.Debug("page acquired", "source", page.Source, "width", page.Image.Bounds().Dx(),
			"height", page.Image.Bounds().Dy(), "duration_ms", time.Since(start).Milliseconds())
		return page, nil
	}

	if err := ctx.Err(); err != nil {
		return page, document.NewError(document.ErrPreprocess, "acquire", "cancelled", err)
	}
	rendered, renderErr := a.render(ctx, path)
	if renderErr != nil {
		return page, document.NewError(document.ErrPreprocess, "acquire", "render failed",
			errors.Join(ErrNoRaster, renderErr))
	}
	page.Image = utils.ToRGB(rendered)
	page.Source = SourceRendered
	slog.Debug("page acquired", "source", page.Source, "width", page.Image.Bounds().Dx(),
		"height", page.Image.Bounds().Dy(), "duration_ms", time.Since(start).Milliseconds())
	return page, nil
}

// CoversPage reports whether an image of bounds b can stand in for a page of
// widthPt x heightPt points: the aspect ratios match in either orientation
// and the native resolution reaches min(MinEmbeddedDPI, targetDPI).
func CoversPage(b image.Rectangle, widthPt, heightPt float64, targetDPI int) bool {
	iw, ih := float64(b.Dx()), float64(b.Dy())
	if iw <= 0 || ih <= 0 || widthPt <= 0 || heightPt <= 0 {
		return false
	}
	if (iw > ih) != (widthPt > heightPt) {
		widthPt, heightPt = heightPt, widthPt
	}
	if math.Abs((iw/ih)/(widthPt/heightPt)-1) > maxAspectDrift {
		return false
	}
	minDPI := float64(MinEmbeddedDPI)
	if targetDPI > 0 && float64(targetDPI) < minDPI {
		minDPI = float64(targetDPI)
	}
	return iw/(widthPt/72) >= minDPI*0.98
}

// scaleToDPI resizes an embedded image to the pixel size the page would have
// at the configured DPI. Differences under 5% are left alone.
func (a *Acquirer) scaleToDPI(img *image.NRGBA, widthPt, heightPt float64) *image.NRGBA {
	b := img.Bounds()
	iw, ih := b.Dx(), b.Dy()
	if (iw > ih) != (widthPt > heightPt) {
		widthPt, heightPt = heightPt, widthPt
	}
	target := widthPt / 72 * float64(a.cfg.DPI)
	factor := target / float64(iw)
	factor = math.Max(0.25, math.Min(4, factor))
	if math.Abs(factor-1) < 0.05 {
		return img
	}
	nw := int(math.Round(float64(iw) * factor))
	nh := int(math.Round(float64(ih) * factor))
	filter := imaging.CatmullRom
	if factor < 1 {
		filter = imaging.Lanczos
	}
	return imaging.Resize(img, nw, nh, filter)
}

// render rasterizes page 1 with pdftoppm inside a scratch directory.
func (a *Acquirer) render(ctx context.Context, path string) (image.Image, error) {
	var img image.Image
	err := ocr.ScratchDir("seisan-render-*", func(dir string) error {
		prefix := filepath.Join(dir, "page")
		_, stderr, err := a.cfg.Runner.Run(ctx, a.cfg.PdftoppmPath,
			"-r", strconv.Itoa(a.cfg.DPI), "-f", "1", "-l", "1", "-png", path, prefix)
		if err != nil {
			return fmt.Errorf("pdftoppm: %w: %s", err, bytes.TrimSpace(stderr))
		}
		matches, _ := filepath.Glob(prefix + "*.png")
		sort.Strings(matches)
		if len(matches) == 0 {
			return errors.New("pdftoppm produced no images")
		}
		img, err = loadImageFile(matches[0])
		return err
	})
	return img, err
}
