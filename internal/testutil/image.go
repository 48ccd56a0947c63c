package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// ImageSize represents image dimensions.
type ImageSize struct {
	Width  int
	Height int
}

// Common page sizes.
var (
	SmallPage = ImageSize{600, 800}
	A4At150   = ImageSize{1240, 1754}
)

// ReceiptImageConfig controls synthetic receipt rendering.
type ReceiptImageConfig struct {
	Lines      []string
	Size       ImageSize
	Background color.Color
	Foreground color.Color
	// Scale magnifies the 7x13 bitmap font.
	Scale int
	// Rotation is applied counter-clockwise after rendering, in degrees.
	Rotation float64
}

// DefaultReceiptLines is a top-heavy receipt body in ASCII.
var DefaultReceiptLines = []string{
	"RECEIPT  NO 000123",
	"ACME PARKING SERVICE CO LTD",
	"2026/01/09 10:42",
	"------------------------------",
	"PARKING FEE        1,500",
	"TAX INCLUDED         136",
	"TOTAL              1,500",
	"------------------------------",
	"REG T8010001140514",
	"THANK YOU VERY MUCH",
	"PLEASE KEEP THIS RECEIPT",
}

// DefaultReceiptImageConfig returns a portrait page with the default body.
func DefaultReceiptImageConfig() ReceiptImageConfig {
	return ReceiptImageConfig{
		Lines:      DefaultReceiptLines,
		Size:       SmallPage,
		Background: color.White,
		Foreground: color.Black,
		Scale:      2,
	}
}

// GenerateReceiptImage renders the lines top-left aligned from a fixed
// margin so ink concentrates in the upper half of the page.
func GenerateReceiptImage(cfg ReceiptImageConfig) *image.NRGBA {
	scale := cfg.Scale
	if scale < 1 {
		scale = 1
	}
	face := basicfont.Face7x13
	smallW := cfg.Size.Width / scale
	smallH := cfg.Size.Height / scale
	small := image.NewNRGBA(image.Rect(0, 0, smallW, smallH))
	draw.Draw(small, small.Bounds(), &image.Uniform{cfg.Background}, image.Point{}, draw.Src)

	drawer := &font.Drawer{Dst: small, Src: &image.Uniform{cfg.Foreground}, Face: face}
	lineHeight := face.Metrics().Height.Ceil() + 3
	marginX, marginY := smallW/12, smallH/20
	for i, line := range cfg.Lines {
		drawer.Dot = fixed.P(marginX, marginY+(i+1)*lineHeight)
		drawer.DrawString(line)
	}

	img := imaging.Resize(small, smallW*scale, smallH*scale, imaging.NearestNeighbor)
	if cfg.Rotation != 0 {
		img = imaging.Rotate(img, cfg.Rotation, color.White)
	}
	return img
}

// SolidImage creates an opaque image filled with c.
func SolidImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// ApplyShadow darkens the image with a left-to-right gradient.
func ApplyShadow(img *image.NRGBA, strength float64) *image.NRGBA {
	out := imaging.Clone(img)
	b := out.Bounds()
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			f := 1 - strength*(1-float64(x)/float64(b.Dx()))
			i := y*out.Stride + 4*x
			for c := 0; c < 3; c++ {
				out.Pix[i+c] = uint8(float64(out.Pix[i+c]) * f)
			}
		}
	}
	return out
}

// SaveImage writes img as PNG.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, EnsureDir(filepath.Dir(path)))

	file, err := os.Create(path) //nolint:gosec // G304: test file creation with controlled path
	require.NoError(t, err, "Failed to create file %s", path)
	defer func() {
		require.NoError(t, file.Close())
	}()
	require.NoError(t, png.Encode(file, img), "Failed to encode PNG image")
}
