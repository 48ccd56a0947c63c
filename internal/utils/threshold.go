package utils

// OtsuThreshold returns the global threshold maximizing inter-class variance
// of the 256-bin luminance histogram.
func OtsuThreshold(p *Plane) float32 {
	var hist [256]int
	for _, v := range p.Pix {
		hist[clampByte(v)]++
	}
	total := len(p.Pix)
	if total == 0 {
		return 128
	}
	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}
	var sumB float64
	var wB int
	best, threshold := -1.0, 0
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = t
		}
	}
	return float32(threshold)
}

// InkMask binarizes p with Otsu's threshold; true marks dark (ink) pixels.
func InkMask(p *Plane) []bool {
	t := OtsuThreshold(p)
	mask := make([]bool, len(p.Pix))
	for i, v := range p.Pix {
		mask[i] = v <= t
	}
	return mask
}

// InkRatio returns the fraction of pixels marked true.
func InkRatio(mask []bool) float64 {
	if len(mask) == 0 {
		return 0
	}
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	return float64(n) / float64(len(mask))
}
