package utils

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestGaussianKernel_Normalized(t *testing.T) {
	for _, tc := range []struct {
		sigma float64
		ksize int
		want  int
	}{
		{1.0, 0, 7},
		{0, 5, 5},
		{2.0, 4, 5},
	} {
		k := GaussianKernel(tc.sigma, tc.ksize)
		assert.Len(t, k, tc.want)
		var sum float32
		for _, v := range k {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestSigmaForKernel(t *testing.T) {
	assert.InDelta(t, 1.1, SigmaForKernel(5), 1e-9)
}

func TestSobel_VerticalEdge(t *testing.T) {
	p := NewPlane(6, 6)
	for y := 0; y < 6; y++ {
		for x := 3; x < 6; x++ {
			p.Pix[y*6+x] = 100
		}
	}
	gx, gy := Sobel(p)
	assert.Greater(t, gx.Pix[2*6+3], float32(0))
	assert.Equal(t, float32(0), gy.Pix[2*6+3])
}

func TestUnsharpMask_FlatUnchanged(t *testing.T) {
	p := NewPlane(8, 8)
	for i := range p.Pix {
		p.Pix[i] = 120
	}
	out := UnsharpMask(p, 1.0, 1.5)
	for _, v := range out.Pix {
		assert.InDelta(t, 120, v, 0.01)
	}
}

// TestGaussianBlur_RangePreserved checks the blur never leaves the input range.
func TestGaussianBlur_RangePreserved(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("blur stays within [min,max] of the source", prop.ForAll(
		func(width, height, seed int, sigma float64) bool {
			p := NewPlane(width, height)
			for i := range p.Pix {
				p.Pix[i] = float32((i*seed + 13) % 256)
			}
			out := GaussianBlur(p, sigma, 0)
			for _, v := range out.Pix {
				if v < -0.01 || v > 255.01 {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 16),
		gen.IntRange(1, 50),
		gen.Float64Range(0.5, 3),
	))

	properties.TestingRun(t)
}
