package utils

import (
	"math"
	"sort"
)

// SigmaForKernel returns the Gaussian sigma OpenCV derives from an odd kernel size.
func SigmaForKernel(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

// GaussianKernel builds a normalized 1-D kernel. A non-positive ksize is
// derived from sigma (radius 3σ).
func GaussianKernel(sigma float64, ksize int) []float32 {
	if ksize <= 0 {
		ksize = 2*int(math.Ceil(3*sigma)) + 1
	}
	if ksize%2 == 0 {
		ksize++
	}
	if sigma <= 0 {
		sigma = SigmaForKernel(ksize)
	}
	half := ksize / 2
	k := make([]float32, ksize)
	var sum float64
	for i := -half; i <= half; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		k[i+half] = float32(v)
		sum += v
	}
	for i := range k {
		k[i] = float32(float64(k[i]) / sum)
	}
	return k
}

// GaussianBlur applies a separable Gaussian with replicated borders.
func GaussianBlur(p *Plane, sigma float64, ksize int) *Plane {
	k := GaussianKernel(sigma, ksize)
	half := len(k) / 2
	tmp := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for i, w := range k {
				acc += w * p.At(x+i-half, y)
			}
			tmp.Pix[y*p.W+x] = acc
		}
	}
	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			var acc float32
			for i, w := range k {
				acc += w * tmp.At(x, y+i-half)
			}
			out.Pix[y*p.W+x] = acc
		}
	}
	return out
}

// Sobel returns the horizontal and vertical 3×3 derivatives.
func Sobel(p *Plane) (gx, gy *Plane) {
	gx = NewPlane(p.W, p.H)
	gy = NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			tl, tc, tr := p.At(x-1, y-1), p.At(x, y-1), p.At(x+1, y-1)
			ml, mr := p.At(x-1, y), p.At(x+1, y)
			bl, bc, br := p.At(x-1, y+1), p.At(x, y+1), p.At(x+1, y+1)
			gx.Pix[y*p.W+x] = (tr + 2*mr + br) - (tl + 2*ml + bl)
			gy.Pix[y*p.W+x] = (bl + 2*bc + br) - (tl + 2*tc + tr)
		}
	}
	return gx, gy
}

// UnsharpMask returns src + amount·(src − gaussian(src, sigma)), clamped.
func UnsharpMask(p *Plane, sigma, amount float64) *Plane {
	blur := GaussianBlur(p, sigma, 0)
	out := NewPlane(p.W, p.H)
	a := float32(amount)
	for i, v := range p.Pix {
		out.Pix[i] = ClampValue(v + a*(v-blur.Pix[i]))
	}
	return out
}

// Percentile returns the q-th percentile (0..100) of the plane values.
func Percentile(p *Plane, q float64) float32 {
	if len(p.Pix) == 0 {
		return 0
	}
	var hist [256]int
	for _, v := range p.Pix {
		hist[clampByte(v)]++
	}
	target := int(math.Ceil(q / 100 * float64(len(p.Pix))))
	if target < 1 {
		target = 1
	}
	acc := 0
	for i, c := range hist {
		acc += c
		if acc >= target {
			return float32(i)
		}
	}
	return 255
}

// StretchPercentile linearly maps the [lowPct, highPct] percentile range to
// [0,255]. A flat plane is returned unchanged.
func StretchPercentile(p *Plane, lowPct, highPct float64) *Plane {
	lo := Percentile(p, lowPct)
	hi := Percentile(p, highPct)
	out := p.Clone()
	if hi-lo < 1 {
		return out
	}
	scale := 255 / (hi - lo)
	for i, v := range out.Pix {
		out.Pix[i] = ClampValue((v - lo) * scale)
	}
	return out
}

// BlockMeans returns the mean of each cell of an n×n grid.
func BlockMeans(p *Plane, n int) []float64 {
	means := make([]float64, 0, n*n)
	for by := 0; by < n; by++ {
		y0, y1 := by*p.H/n, (by+1)*p.H/n
		for bx := 0; bx < n; bx++ {
			x0, x1 := bx*p.W/n, (bx+1)*p.W/n
			var sum float64
			cnt := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sum += float64(p.Pix[y*p.W+x])
					cnt++
				}
			}
			if cnt > 0 {
				means = append(means, sum/float64(cnt))
			}
		}
	}
	return means
}

// Median returns the median of vals; it sorts a copy.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// Variance returns the population variance of vals.
func Variance(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var acc float64
	for _, v := range vals {
		acc += (v - mean) * (v - mean)
	}
	return acc / float64(len(vals))
}
