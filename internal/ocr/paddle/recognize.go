package paddle

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// loadCharset reads the recognition dictionary. Index 0 of the model output
// is the CTC blank; dictionary tokens follow, then a trailing space class.
func loadCharset(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: dictionary inside the models directory
	if err != nil {
		return nil, fmt.Errorf("failed to open dictionary: %w", err)
	}
	defer func() { _ = f.Close() }()

	classes := []string{""}
	scanner := bufio.NewScanner(f)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if line == "" {
			continue
		}
		classes = append(classes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading dictionary: %w", err)
	}
	if len(classes) == 1 {
		return nil, fmt.Errorf("dictionary is empty: %s", path)
	}
	return append(classes, " "), nil
}

// cropForRecognition cuts the box out of img and resizes it to the model
// height, keeping the aspect ratio and capping the width.
func cropForRecognition(img *image.NRGBA, box utils.Box, height, maxWidth int) *image.NRGBA {
	r := image.Rect(int(math.Floor(box.MinX)), int(math.Floor(box.MinY)),
		int(math.Ceil(box.MaxX)), int(math.Ceil(box.MaxY))).Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	crop := imaging.Crop(img, r)
	w := int(math.Ceil(float64(r.Dx()) * float64(height) / float64(r.Dy())))
	w = max(1, min(w, maxWidth))
	return imaging.Resize(crop, w, height, imaging.Linear)
}

// decodeCTC performs greedy CTC decoding of a [T, C] score matrix: argmax
// per step, drop blanks (class 0) and collapse repeats. Confidence is the
// mean probability of the emitted characters.
func decodeCTC(scores []float32, steps, classes int, charset []string) (string, float64, error) {
	if steps <= 0 || classes <= 0 || len(scores) < steps*classes {
		return "", 0, errors.New("ctc: output shape does not match data")
	}
	var sb strings.Builder
	var probSum float64
	emitted := 0
	prev := -1
	for t := 0; t < steps; t++ {
		row := scores[t*classes : (t+1)*classes]
		idx, p := argmax(row)
		if idx != 0 && idx != prev {
			if idx < len(charset) {
				sb.WriteString(charset[idx])
			}
			probSum += softmaxProb(row, idx, p)
			emitted++
		}
		prev = idx
	}
	if emitted == 0 {
		return "", 0, nil
	}
	return sb.String(), probSum / float64(emitted), nil
}

func argmax(v []float32) (int, float32) {
	idx, best := 0, v[0]
	for i := 1; i < len(v); i++ {
		if v[i] > best {
			idx, best = i, v[i]
		}
	}
	return idx, best
}

// softmaxProb returns v[idx] when v already looks like a probability vector,
// otherwise its softmax probability.
func softmaxProb(v []float32, idx int, maxV float32) float64 {
	var sum float64
	minV := v[0]
	for _, x := range v {
		sum += float64(x)
		minV = min(minV, x)
	}
	if sum > 0.99 && sum < 1.01 && minV >= 0 {
		return float64(v[idx])
	}
	var denom float64
	for _, x := range v {
		denom += math.Exp(float64(x - maxV))
	}
	return 1 / denom
}
