package utils

import "math"

// PrincipalAngle returns the orientation (degrees, counter-clockwise positive,
// normalized to (-90, 90]) of the principal axis of the marked pixels, and the
// number of pixels used. At most maxPoints pixels are sampled with a fixed stride.
func PrincipalAngle(mask []bool, w, h, maxPoints int) (float64, int) {
	total := 0
	for _, m := range mask {
		if m {
			total++
		}
	}
	if total == 0 {
		return 0, 0
	}
	stride := 1
	if maxPoints > 0 && total > maxPoints {
		stride = (total + maxPoints - 1) / maxPoints
	}

	var n, sx, sy, sxx, syy, sxy float64
	seen := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			seen++
			if (seen-1)%stride != 0 {
				continue
			}
			fx, fy := float64(x), -float64(y)
			n++
			sx += fx
			sy += fy
			sxx += fx * fx
			syy += fy * fy
			sxy += fx * fy
		}
	}
	mx, my := sx/n, sy/n
	cxx := sxx/n - mx*mx
	cyy := syy/n - my*my
	cxy := sxy/n - mx*my
	angle := 0.5 * math.Atan2(2*cxy, cxx-cyy) * 180 / math.Pi
	if angle <= -90 {
		angle += 180
	} else if angle > 90 {
		angle -= 180
	}
	return angle, int(n)
}
