// Package pdf acquires the first page of a PDF as an RGB raster and reads
// its vector text layer.
package pdf

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // decoders for extracted images
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

var disableConfigOnce sync.Once

// pdfcpuConfig returns a relaxed configuration that never touches the user
// config directory.
func pdfcpuConfig() *model.Configuration {
	disableConfigOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount validates the file with pdfcpu and returns its page count.
func PageCount(filename string) (int, error) {
	conf := pdfcpuConfig()
	if err := api.ValidateFile(filename, conf); err != nil {
		return 0, fmt.Errorf("invalid PDF: %w", err)
	}
	n, err := api.PageCountFile(filename)
	if err != nil {
		return 0, fmt.Errorf("read page count: %w", err)
	}
	return n, nil
}

// PageSize returns the first page's size in points; A4 when unavailable.
func PageSize(filename string) (width, height float64) {
	pdfcpuConfig()
	dims, err := api.PageDimsFile(filename)
	if err != nil || len(dims) == 0 || dims[0].Width <= 0 || dims[0].Height <= 0 {
		return 595.28, 841.89
	}
	return dims[0].Width, dims[0].Height
}

// ExtractImages extracts the embedded images of the given page using
// pdfcpu's extract functionality.
func ExtractImages(filename string, page int) ([]image.Image, error) {
	tempDir, err := os.MkdirTemp("", "seisan-extract-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	if err := api.ExtractImagesFile(filename, tempDir, []string{strconv.Itoa(page)}, pdfcpuConfig()); err != nil {
		return nil, fmt.Errorf("failed to extract images from PDF: %w", err)
	}

	byPage, err := collectExtractedImages(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to process extracted images: %w", err)
	}
	if imgs := byPage[page]; len(imgs) > 0 {
		return imgs, nil
	}
	// Only the requested page was extracted; accept any naming scheme.
	var all []image.Image
	for _, imgs := range byPage {
		all = append(all, imgs...)
	}
	return all, nil
}

// Largest returns the image with the most pixels.
func Largest(images []image.Image) image.Image {
	var best image.Image
	bestArea := 0
	for _, img := range images {
		b := img.Bounds()
		if area := b.Dx() * b.Dy(); area > bestArea {
			best, bestArea = img, area
		}
	}
	return best
}

func loadImageFile(path string) (image.Image, error) {
	file, err := os.Open(path) //nolint:gosec // G304: files inside our own temp dir
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	img, _, err := image.Decode(file)
	return img, err
}

// collectExtractedImages walks dir and groups images by page number.
// It expects filenames in the pdfcpu format: <name>_<page>_<obj>.<ext> or
// page_<num>_image_<idx>.<ext>.
func collectExtractedImages(dir string) (map[int][]image.Image, error) {
	result := make(map[int][]image.Image)
	var names []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			names = append(names, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	for _, path := range names {
		pageNum, err := parsePageFromFilename(filepath.Base(path))
		if err != nil {
			pageNum = 0
		}
		img, err := loadImageFile(path)
		if err != nil || img == nil {
			continue
		}
		result[pageNum] = append(result[pageNum], img)
	}
	return result, nil
}

// parsePageFromFilename extracts the page number from a pdfcpu extracted filename.
func parsePageFromFilename(filename string) (int, error) {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return 0, errors.New("invalid filename format")
	}
	if parts[0] == "page" {
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return 0, errors.New("invalid page number")
		}
		return n, nil
	}
	// pdfcpu default naming: <file>_<page>_<objNr>
	if len(parts) >= 3 {
		if n, err := strconv.Atoi(parts[len(parts)-2]); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("not a page file")
}
