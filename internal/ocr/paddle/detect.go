package paddle

import (
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// detection resize: both sides become multiples of 32 and the long side is
// at most maxSide.
func resizeForDetection(img *image.NRGBA, maxSide int) (*image.NRGBA, float64, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if long := max(w, h); long > maxSide {
		scale = float64(maxSide) / float64(long)
	}
	nw := max(32, int(math.Round(float64(w)*scale/32))*32)
	nh := max(32, int(math.Round(float64(h)*scale/32))*32)
	resized := img
	if nw != w || nh != h {
		resized = imaging.Resize(img, nw, nh, imaging.Linear)
	}
	return resized, float64(w) / float64(nw), float64(h) / float64(nh)
}

// component is a 4-connected region of the thresholded probability map.
type component struct {
	count                  int
	sum                    float64
	minX, minY, maxX, maxY int
}

// boxesFromProbMap thresholds the DB probability map, groups pixels into
// 4-connected components, keeps those whose mean probability reaches
// boxThresh, expands them by the unclip ratio and scales them back to the
// source resolution.
func boxesFromProbMap(prob []float32, w, h int, thresh, boxThresh, unclip, sx, sy float64, srcW, srcH int) ([]utils.Box, []float64) {
	visited := make([]bool, w*h)
	queue := make([]int, 0, 256)
	var boxes []utils.Box
	var scores []float64

	for start := range prob {
		if visited[start] || float64(prob[start]) < thresh {
			continue
		}
		c := component{minX: start % w, minY: start / w, maxX: start % w, maxY: start / w}
		visited[start] = true
		queue = append(queue[:0], start)
		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := i%w, i/w
			c.count++
			c.sum += float64(prob[i])
			c.minX, c.maxX = min(c.minX, x), max(c.maxX, x)
			c.minY, c.maxY = min(c.minY, y), max(c.maxY, y)
			for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if !visited[ni] && float64(prob[ni]) >= thresh {
					visited[ni] = true
					queue = append(queue, ni)
				}
			}
		}
		if c.count < 3 {
			continue
		}
		score := c.sum / float64(c.count)
		if score < boxThresh {
			continue
		}
		box := unclipBox(utils.NewBox(float64(c.minX), float64(c.minY), float64(c.maxX+1), float64(c.maxY+1)), unclip)
		box = utils.NewBox(
			math.Max(0, box.MinX*sx), math.Max(0, box.MinY*sy),
			math.Min(float64(srcW), box.MaxX*sx), math.Min(float64(srcH), box.MaxY*sy))
		if box.Width() < 2 || box.Height() < 2 {
			continue
		}
		boxes = append(boxes, box)
		scores = append(scores, score)
	}
	sortReadingOrder(boxes, scores)
	return boxes, scores
}

// unclipBox grows a shrunk DB region by distance = area·ratio / perimeter.
func unclipBox(b utils.Box, ratio float64) utils.Box {
	w, h := b.Width(), b.Height()
	perimeter := 2 * (w + h)
	if perimeter == 0 {
		return b
	}
	d := w * h * ratio / perimeter
	return utils.NewBox(b.MinX-d, b.MinY-d, b.MaxX+d, b.MaxY+d)
}

// sortReadingOrder orders boxes top to bottom, then left to right for boxes
// whose tops are within half a line of each other.
func sortReadingOrder(boxes []utils.Box, scores []float64) {
	idx := make([]int, len(boxes))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ba, bb := boxes[idx[a]], boxes[idx[b]]
		tol := math.Min(ba.Height(), bb.Height()) / 2
		if math.Abs(ba.MinY-bb.MinY) <= tol {
			return ba.MinX < bb.MinX
		}
		return ba.MinY < bb.MinY
	})
	sortedBoxes := make([]utils.Box, len(boxes))
	sortedScores := make([]float64, len(scores))
	for i, j := range idx {
		sortedBoxes[i], sortedScores[i] = boxes[j], scores[j]
	}
	copy(boxes, sortedBoxes)
	copy(scores, sortedScores)
}
