package utils

import (
	"math"
	"sort"
)

// Canny returns an edge map using 3×3 Sobel gradients (L1 magnitude),
// non-maximum suppression and hysteresis between low and high.
func Canny(p *Plane, low, high float32) []bool {
	w, h := p.W, p.H
	gx, gy := Sobel(p)
	mag := make([]float32, w*h)
	for i := range mag {
		mag[i] = abs32(gx.Pix[i]) + abs32(gy.Pix[i])
	}

	// 0 none, 1 weak, 2 strong
	state := make([]uint8, w*h)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			var n1, n2 float32
			switch gradientSector(gx.Pix[i], gy.Pix[i]) {
			case 0:
				n1, n2 = mag[i-1], mag[i+1]
			case 1:
				n1, n2 = mag[i-w+1], mag[i+w-1]
			case 2:
				n1, n2 = mag[i-w], mag[i+w]
			default:
				n1, n2 = mag[i-w-1], mag[i+w+1]
			}
			if m < n1 || m <= n2 {
				continue
			}
			if m > high {
				state[i] = 2
			} else {
				state[i] = 1
			}
		}
	}

	edges := make([]bool, w*h)
	stack := make([]int, 0, 1024)
	for i, s := range state {
		if s == 2 && !edges[i] {
			edges[i] = true
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			j := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			jx, jy := j%w, j/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := jx+dx, jy+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					k := ny*w + nx
					if state[k] != 0 && !edges[k] {
						edges[k] = true
						stack = append(stack, k)
					}
				}
			}
		}
	}
	return edges
}

// gradientSector quantizes the gradient direction: 0 horizontal, 1 45°,
// 2 vertical, 3 135° (image y axis pointing down).
func gradientSector(gx, gy float32) int {
	angle := math.Atan2(float64(gy), float64(gx)) * 180 / math.Pi
	if angle < 0 {
		angle += 180
	}
	switch {
	case angle < 22.5 || angle >= 157.5:
		return 0
	case angle < 67.5:
		return 3
	case angle < 112.5:
		return 2
	default:
		return 1
	}
}

// Line is a Hough line in normal form: x·cosθ + y·sinθ = ρ.
type Line struct {
	Rho      float64
	ThetaDeg float64
	Votes    int
}

// AngleDeg returns the line's tilt against the horizontal, positive when the
// line rises to the right (counter-clockwise on screen).
func (l Line) AngleDeg() float64 {
	return 90 - l.ThetaDeg
}

// IsNearHorizontal reports whether the line is within tol degrees of horizontal.
func (l Line) IsNearHorizontal(tol float64) bool {
	return math.Abs(l.AngleDeg()) <= tol
}

// IsNearVertical reports whether the line is within tol degrees of vertical.
func (l Line) IsNearVertical(tol float64) bool {
	return l.ThetaDeg <= tol || l.ThetaDeg >= 180-tol
}

// HoughLines runs the standard Hough transform over edges with 1px rho
// resolution and theta sampled in [thetaMin, thetaMax) with the given step
// (degrees). Accumulator local maxima with at least threshold votes are
// returned, strongest first.
func HoughLines(edges []bool, w, h int, thetaMin, thetaMax, step float64, threshold int) []Line {
	if step <= 0 || thetaMax <= thetaMin || w <= 0 || h <= 0 {
		return nil
	}
	nTheta := int(math.Ceil((thetaMax - thetaMin) / step))
	diag := int(math.Ceil(math.Hypot(float64(w), float64(h))))
	nRho := 2*diag + 1

	cosT := make([]float64, nTheta)
	sinT := make([]float64, nTheta)
	for t := 0; t < nTheta; t++ {
		rad := (thetaMin + float64(t)*step) * math.Pi / 180
		cosT[t], sinT[t] = math.Cos(rad), math.Sin(rad)
	}

	acc := make([]int32, nTheta*nRho)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !edges[y*w+x] {
				continue
			}
			for t := 0; t < nTheta; t++ {
				r := int(math.Round(float64(x)*cosT[t]+float64(y)*sinT[t])) + diag
				acc[t*nRho+r]++
			}
		}
	}

	var lines []Line
	for t := 0; t < nTheta; t++ {
		for r := 0; r < nRho; r++ {
			v := acc[t*nRho+r]
			if int(v) < threshold {
				continue
			}
			if (r > 0 && acc[t*nRho+r-1] > v) || (r < nRho-1 && acc[t*nRho+r+1] >= v) ||
				(t > 0 && acc[(t-1)*nRho+r] > v) || (t < nTheta-1 && acc[(t+1)*nRho+r] >= v) {
				continue
			}
			lines = append(lines, Line{
				Rho:      float64(r - diag),
				ThetaDeg: thetaMin + float64(t)*step,
				Votes:    int(v),
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Votes > lines[j].Votes })
	return lines
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
