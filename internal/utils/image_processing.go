package utils

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
)

// ImageProcessingError represents errors that can occur during image processing.
type ImageProcessingError struct {
	Operation string
	Err       error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageProcessingError) Unwrap() error { return e.Err }

// Plane is a single-channel float image with luminance values in [0,255].
type Plane struct {
	W, H int
	Pix  []float32
}

// NewPlane allocates a zeroed plane.
func NewPlane(w, h int) *Plane {
	return &Plane{W: w, H: h, Pix: make([]float32, w*h)}
}

// At returns the value at (x, y) with coordinates clamped to the plane.
func (p *Plane) At(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= p.W {
		x = p.W - 1
	}
	if y < 0 {
		y = 0
	} else if y >= p.H {
		y = p.H - 1
	}
	return p.Pix[y*p.W+x]
}

// Clone returns a deep copy.
func (p *Plane) Clone() *Plane {
	out := NewPlane(p.W, p.H)
	copy(out.Pix, p.Pix)
	return out
}

// Mean returns the average value.
func (p *Plane) Mean() float64 {
	if len(p.Pix) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.Pix {
		sum += float64(v)
	}
	return sum / float64(len(p.Pix))
}

// ToPlane converts any image to luminance (ITU-R BT.601 weights).
// Transparent pixels are composited onto white first.
func ToPlane(img image.Image) (*Plane, error) {
	if img == nil {
		return nil, &ImageProcessingError{Operation: "to_plane", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &ImageProcessingError{Operation: "to_plane", Err: fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())}
	}
	rgb := ToRGB(img)
	p := NewPlane(b.Dx(), b.Dy())
	for y := 0; y < p.H; y++ {
		row := rgb.Pix[y*rgb.Stride : y*rgb.Stride+4*p.W]
		for x := 0; x < p.W; x++ {
			r, g, bl := float32(row[4*x]), float32(row[4*x+1]), float32(row[4*x+2])
			p.Pix[y*p.W+x] = 0.299*r + 0.587*g + 0.114*bl
		}
	}
	return p, nil
}

// ToNRGBA renders the plane as an opaque gray RGB image.
func (p *Plane) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, p.W, p.H))
	for i, v := range p.Pix {
		c := clampByte(v)
		out.Pix[4*i] = c
		out.Pix[4*i+1] = c
		out.Pix[4*i+2] = c
		out.Pix[4*i+3] = 255
	}
	return out
}

// ToRGB returns an opaque RGB copy of img with origin (0,0). Alpha is
// composited onto white; gray, paletted and CMYK sources are expanded.
func ToRGB(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 255
	}
	return out
}

// IsOpaqueRGB reports whether img is already an opaque NRGBA/RGBA image.
func IsOpaqueRGB(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA:
		return m.Opaque()
	case *image.RGBA:
		return m.Opaque()
	}
	return false
}

// Downscale returns p shrunk by an integer factor using box averaging.
func Downscale(p *Plane, factor int) *Plane {
	if factor <= 1 {
		return p.Clone()
	}
	w, h := maxInt(1, p.W/factor), maxInt(1, p.H/factor)
	out := NewPlane(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			var n int
			for dy := 0; dy < factor; dy++ {
				sy := y*factor + dy
				if sy >= p.H {
					break
				}
				for dx := 0; dx < factor; dx++ {
					sx := x*factor + dx
					if sx >= p.W {
						break
					}
					sum += p.Pix[sy*p.W+sx]
					n++
				}
			}
			out.Pix[y*w+x] = sum / float32(n)
		}
	}
	return out
}

// ResizeBilinear resamples p to w×h.
func ResizeBilinear(p *Plane, w, h int) *Plane {
	out := NewPlane(w, h)
	sx := float64(p.W) / float64(w)
	sy := float64(p.H) / float64(h)
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		y0 := int(math.Floor(fy))
		ty := float32(fy - float64(y0))
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			x0 := int(math.Floor(fx))
			tx := float32(fx - float64(x0))
			a := p.At(x0, y0)*(1-tx) + p.At(x0+1, y0)*tx
			c := p.At(x0, y0+1)*(1-tx) + p.At(x0+1, y0+1)*tx
			out.Pix[y*w+x] = a*(1-ty) + c*ty
		}
	}
	return out
}

// GrayColor returns an opaque gray color.
func GrayColor(v uint8) color.NRGBA {
	return color.NRGBA{R: v, G: v, B: v, A: 255}
}

func clampByte(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// ClampValue clamps v to [0,255].
func ClampValue(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
