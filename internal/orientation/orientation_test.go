package orientation

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
)

func receipt(t *testing.T, rotation float64) *testutil.ReceiptImageConfig {
	t.Helper()
	cfg := testutil.DefaultReceiptImageConfig()
	cfg.Rotation = rotation
	return &cfg
}

func TestDetectUprightPortrait(t *testing.T) {
	img := testutil.GenerateReceiptImage(*receipt(t, 0))
	res, err := NewDetector(DefaultConfig()).Detect(img)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
	assert.False(t, res.Landscape)
	assert.Contains(t, res.Scores, 180)
}

func TestDetectUpsideDown(t *testing.T) {
	img := testutil.GenerateReceiptImage(*receipt(t, 180))
	res, err := NewDetector(DefaultConfig()).Detect(img)
	require.NoError(t, err)
	assert.Equal(t, 180, res.Angle)
	assert.GreaterOrEqual(t, res.Margin, 0.1)
}

func TestDetectLandscapeRotatedPage(t *testing.T) {
	for _, rot := range []float64{90, 270} {
		img := testutil.GenerateReceiptImage(*receipt(t, rot))
		require.Greater(t, img.Bounds().Dx(), img.Bounds().Dy())

		res, err := NewDetector(DefaultConfig()).Detect(img)
		require.NoError(t, err)
		assert.Contains(t, []int{90, 270}, res.Angle, "rotation %v", rot)
		assert.True(t, res.Landscape)
		assert.Equal(t, (360-int(rot))%360, res.Angle, "rotation %v must be undone", rot)
	}
}

func TestDetectBlankPage(t *testing.T) {
	img := testutil.SolidImage(400, 600, color.White)
	res, err := NewDetector(DefaultConfig()).Detect(img)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Angle)
}

func TestDetectNil(t *testing.T) {
	_, err := NewDetector(DefaultConfig()).Detect(nil)
	require.Error(t, err)
}

func TestCandidates(t *testing.T) {
	d := NewDetector(DefaultConfig())
	assert.Equal(t, []int{90, 270}, d.Candidates(800, 600))
	assert.Equal(t, []int{0, 180}, d.Candidates(600, 800))

	four := NewDetector(Config{Force4Way: true})
	assert.Equal(t, []int{0, 90, 180, 270}, four.Candidates(600, 800))
	assert.Equal(t, []int{90, 270}, four.Candidates(800, 600))
}

func TestCombineNormalizesSignals(t *testing.T) {
	scores := combine(map[int]Signals{
		0:   {EdgeRatio: 2, Position: 1e6, Projection: 10, Hough: 4},
		180: {EdgeRatio: 2, Position: 0, Projection: 10, Hough: 4},
	})
	assert.InDelta(t, 1.0, scores[0], 1e-9)
	assert.InDelta(t, 0.8, scores[180], 1e-9)

	zero := combine(map[int]Signals{0: {}, 90: {}})
	assert.Zero(t, zero[0])
	assert.Zero(t, zero[90])
}

func TestRotate(t *testing.T) {
	img := testutil.SolidImage(30, 10, color.White)
	assert.Equal(t, 10, Rotate(img, 90).Bounds().Dx())
	assert.Equal(t, 30, Rotate(img, 180).Bounds().Dx())
	assert.Equal(t, 10, Rotate(img, -90).Bounds().Dx())
	assert.Equal(t, 30, Rotate(img, 0).Bounds().Dx())
}
