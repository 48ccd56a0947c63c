package tesseract

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
)

const header = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext"

func tsv(rows ...string) []byte {
	return []byte(header + "\n" + strings.Join(rows, "\n") + "\n")
}

var sampleTSV = tsv(
	"1\t1\t0\t0\t0\t0\t0\t0\t600\t800\t-1\t",
	"2\t1\t1\t0\t0\t0\t20\t20\t300\t60\t-1\t",
	"4\t1\t1\t1\t1\t0\t20\t20\t300\t24\t-1\t",
	"5\t1\t1\t1\t1\t1\t20\t20\t24\t24\t96.5\t領",
	"5\t1\t1\t1\t1\t2\t46\t20\t24\t24\t93.5\t収書",
	"5\t1\t1\t1\t2\t1\t20\t60\t48\t24\t90\t合計",
	"5\t1\t1\t1\t2\t2\t120\t60\t60\t24\t80\t¥1,100",
	"5\t1\t1\t1\t2\t3\t200\t60\t10\t24\t-1\t ",
)

type stubRunner struct {
	out     []byte
	stderr  []byte
	err     error
	name    string
	args    []string
	sawFile bool
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.name, s.args = name, args
	if len(args) > 0 {
		_, err := os.Stat(args[0])
		s.sawFile = err == nil
	}
	return s.out, s.stderr, s.err
}

func TestParseTSV(t *testing.T) {
	res, err := ParseTSV(sampleTSV)
	require.NoError(t, err)
	require.Len(t, res.Detections, 4)
	assert.Equal(t, "領収書\n合計 ¥1,100", res.Text)
	assert.InDelta(t, (0.965+0.935+0.90+0.80)/4, res.Confidence, 1e-9)

	b := res.Detections[3].Quad.Bounds()
	assert.InDelta(t, 120, b.MinX, 1e-9)
	assert.InDelta(t, 84, b.MaxY, 1e-9)
}

func TestParseTSVEmptyAndMalformed(t *testing.T) {
	res, err := ParseTSV(nil)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)

	res, err = ParseTSV(tsv())
	require.NoError(t, err)
	assert.Empty(t, res.Detections)

	_, err = ParseTSV([]byte("Error opening data file\n"))
	assert.Error(t, err)
}

func TestParseTSVSkipsShortAndBadRows(t *testing.T) {
	res, err := ParseTSV(tsv(
		"5\t1\t1\t1\t1\t1\t20\t20",
		"5\t1\t1\t1\t1\t2\tx\t20\t24\t24\t90\tbad",
		"5\t1\t1\t1\t1\t3\t60\t20\t24\t24\tnan?\tbad",
		"5\t1\t1\t1\t1\t4\t90\t20\t24\t24\t88\tok",
	))
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "ok", res.Text)
}

func TestCLIArgs(t *testing.T) {
	e := NewCLI(Config{PSM: 6, TessdataDir: "/usr/share/tessdata"}, []string{"eng", "jpn"})
	assert.Equal(t, []string{
		"p.png", "stdout", "-l", "jpn+eng", "--psm", "6", "--tessdata-dir", "/usr/share/tessdata", "tsv",
	}, e.Args("p.png"))

	e = NewCLI(Config{}, nil)
	assert.Equal(t, []string{"p.png", "stdout", "-l", "jpn+eng", "tsv"}, e.Args("p.png"))
	assert.Equal(t, ocr.KindTesseract, e.Name())
	assert.NoError(t, e.Close())
}

func TestCLIRecognize(t *testing.T) {
	r := &stubRunner{out: sampleTSV}
	e := NewCLI(Config{Path: "/opt/tesseract", PSM: 6, Runner: r}, []string{"jpn", "eng"})

	res, err := e.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 40, 30)))
	require.NoError(t, err)
	assert.Equal(t, "/opt/tesseract", r.name)
	assert.True(t, r.sawFile, "page PNG should exist while tesseract runs")
	assert.Equal(t, "領収書\n合計 ¥1,100", res.Text)

	_, statErr := os.Stat(r.args[0])
	assert.True(t, os.IsNotExist(statErr), "scratch dir should be removed")
}

func TestCLIRecognizeErrors(t *testing.T) {
	r := &stubRunner{err: errors.New("exit status 1"), stderr: []byte("Failed loading language 'jpn'\n")}
	e := NewCLI(Config{Runner: r}, nil)
	_, err := e.Recognize(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed loading language")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Recognize(ctx, image.NewGray(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.Recognize(context.Background(), nil)
	assert.Error(t, err)
}

func TestOrderLanguages(t *testing.T) {
	assert.Equal(t, []string{"jpn", "eng"}, orderLanguages([]string{"eng", "jpn"}))
	assert.Equal(t, []string{"eng"}, orderLanguages([]string{"eng"}))
}
