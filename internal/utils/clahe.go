package utils

// CLAHE applies contrast-limited adaptive histogram equalization with a
// tiles×tiles grid. clipLimit is relative to the uniform bin height, as in
// OpenCV; tile mappings are blended bilinearly between tile centers.
func CLAHE(p *Plane, clipLimit float64, tiles int) *Plane {
	if tiles < 1 {
		tiles = 1
	}
	if p.W < tiles || p.H < tiles {
		return p.Clone()
	}
	tw := (p.W + tiles - 1) / tiles
	th := (p.H + tiles - 1) / tiles

	luts := make([][256]float32, tiles*tiles)
	for ty := 0; ty < tiles; ty++ {
		for tx := 0; tx < tiles; tx++ {
			x0, y0 := tx*tw, ty*th
			x1, y1 := min(x0+tw, p.W), min(y0+th, p.H)
			var hist [256]int
			area := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[clampByte(p.Pix[y*p.W+x])]++
					area++
				}
			}
			if area == 0 {
				for i := range luts[ty*tiles+tx] {
					luts[ty*tiles+tx][i] = float32(i)
				}
				continue
			}
			clip := int(clipLimit * float64(area) / 256)
			if clip < 1 {
				clip = 1
			}
			excess := 0
			for i, c := range hist {
				if c > clip {
					excess += c - clip
					hist[i] = clip
				}
			}
			bonus, rest := excess/256, excess%256
			for i := range hist {
				hist[i] += bonus
				if i < rest {
					hist[i]++
				}
			}
			acc := 0
			scale := 255 / float32(area)
			for i, c := range hist {
				acc += c
				luts[ty*tiles+tx][i] = float32(acc) * scale
			}
		}
	}

	out := NewPlane(p.W, p.H)
	for y := 0; y < p.H; y++ {
		fy := (float32(y)+0.5)/float32(th) - 0.5
		ty0 := clampInt(int(floor32(fy)), 0, tiles-1)
		ty1 := clampInt(ty0+1, 0, tiles-1)
		wy := clamp01f(fy - float32(ty0))
		for x := 0; x < p.W; x++ {
			fx := (float32(x)+0.5)/float32(tw) - 0.5
			tx0 := clampInt(int(floor32(fx)), 0, tiles-1)
			tx1 := clampInt(tx0+1, 0, tiles-1)
			wx := clamp01f(fx - float32(tx0))
			v := clampByte(p.Pix[y*p.W+x])
			a := luts[ty0*tiles+tx0][v]*(1-wx) + luts[ty0*tiles+tx1][v]*wx
			b := luts[ty1*tiles+tx0][v]*(1-wx) + luts[ty1*tiles+tx1][v]*wx
			out.Pix[y*p.W+x] = a*(1-wy) + b*wy
		}
	}
	return out
}

func floor32(v float32) float32 {
	i := float32(int(v))
	if v < 0 && i != v {
		return i - 1
	}
	return i
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clamp01f(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
