package utils

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestApplyMorphologicalOperation_DilateThickensInk(t *testing.T) {
	p := NewPlane(6, 6)
	for i := range p.Pix {
		p.Pix[i] = 255
	}
	p.Pix[2*6+2] = 0

	out := ApplyMorphologicalOperation(p, MorphConfig{Operation: MorphDilate, KernelSize: 2, Iterations: 1})
	dark := 0
	for _, v := range out.Pix {
		if v == 0 {
			dark++
		}
	}
	assert.Equal(t, 4, dark)

	back := ApplyMorphologicalOperation(out, MorphConfig{Operation: MorphErode, KernelSize: 2, Iterations: 1})
	dark = 0
	for _, v := range back.Pix {
		if v == 0 {
			dark++
		}
	}
	assert.Equal(t, 1, dark)
}

func TestApplyMorphologicalOperation_None(t *testing.T) {
	p := NewPlane(3, 3)
	p.Pix[4] = 9
	out := ApplyMorphologicalOperation(p, MorphConfig{Operation: MorphNone, KernelSize: 3, Iterations: 1})
	assert.Equal(t, p.Pix, out.Pix)
	assert.Equal(t, "", MorphNone.String())
	assert.Equal(t, "dilate", MorphDilate.String())
	assert.Equal(t, "erode", MorphErode.String())
}

// TestApplyMorphologicalOperation_Ordering verifies erode ≥ src ≥ dilate pointwise.
func TestApplyMorphologicalOperation_Ordering(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("dilate lowers and erode raises luminance", prop.ForAll(
		func(width, height, kernel, seed int) bool {
			p := NewPlane(width, height)
			for i := range p.Pix {
				p.Pix[i] = float32((i*seed + 7*i) % 256)
			}
			d := ApplyMorphologicalOperation(p, MorphConfig{Operation: MorphDilate, KernelSize: kernel, Iterations: 1})
			e := ApplyMorphologicalOperation(p, MorphConfig{Operation: MorphErode, KernelSize: kernel, Iterations: 1})
			for i := range p.Pix {
				if d.Pix[i] > p.Pix[i] || e.Pix[i] < p.Pix[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 20),
		gen.IntRange(2, 20),
		gen.IntRange(2, 5),
		gen.IntRange(1, 97),
	))

	properties.TestingRun(t)
}
