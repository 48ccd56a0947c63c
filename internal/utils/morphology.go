package utils

// MorphologicalOp selects a stroke operation on a luminance plane.
type MorphologicalOp int

const (
	MorphNone MorphologicalOp = iota
	// MorphDilate thickens dark strokes (minimum filter on luminance).
	MorphDilate
	// MorphErode thins dark strokes (maximum filter on luminance).
	MorphErode
)

// String returns the name recorded in preprocess results.
func (op MorphologicalOp) String() string {
	switch op {
	case MorphDilate:
		return "dilate"
	case MorphErode:
		return "erode"
	default:
		return ""
	}
}

// MorphConfig holds configuration for morphological operations.
type MorphConfig struct {
	Operation  MorphologicalOp
	KernelSize int // square kernel side; even sizes anchor like OpenCV (center at k/2)
	Iterations int
}

// ApplyMorphologicalOperation applies op to p and returns a new plane.
func ApplyMorphologicalOperation(p *Plane, config MorphConfig) *Plane {
	if config.Operation == MorphNone || config.KernelSize <= 1 || config.Iterations <= 0 {
		return p.Clone()
	}
	out := p
	for i := 0; i < config.Iterations; i++ {
		switch config.Operation {
		case MorphDilate:
			out = rankFilter(out, config.KernelSize, false)
		case MorphErode:
			out = rankFilter(out, config.KernelSize, true)
		}
	}
	return out
}

// rankFilter takes the min (or max) over a k×k window. Out-of-bounds pixels
// are ignored.
func rankFilter(p *Plane, k int, takeMax bool) *Plane {
	out := NewPlane(p.W, p.H)
	lo := -(k / 2)
	hi := lo + k - 1
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			best := p.Pix[y*p.W+x]
			for ky := lo; ky <= hi; ky++ {
				ny := y + ky
				if ny < 0 || ny >= p.H {
					continue
				}
				for kx := lo; kx <= hi; kx++ {
					nx := x + kx
					if nx < 0 || nx >= p.W {
						continue
					}
					v := p.Pix[ny*p.W+nx]
					if takeMax {
						if v > best {
							best = v
						}
					} else if v < best {
						best = v
					}
				}
			}
			out.Pix[y*p.W+x] = best
		}
	}
	return out
}
