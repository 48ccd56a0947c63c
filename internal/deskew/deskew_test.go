package deskew

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

func tilted(angle float64) testutil.ReceiptImageConfig {
	cfg := testutil.DefaultReceiptImageConfig()
	cfg.Size = testutil.A4At150
	cfg.Scale = 3
	cfg.Rotation = angle
	return cfg
}

func TestEstimateTiltedPage(t *testing.T) {
	est := NewEstimator(DefaultConfig())
	for _, angle := range []float64{3, -3, 7.5} {
		res, err := est.Estimate(testutil.GenerateReceiptImage(tilted(angle)))
		require.NoError(t, err)
		assert.Equal(t, MethodHough, res.Method, "angle %v", angle)
		assert.Less(t, math.Abs(angle-res.Angle), 0.5, "angle %v estimated as %v", angle, res.Angle)
		assert.True(t, ShouldCorrect(res.Angle, 0.5))
	}
}

func TestEstimateStraightPage(t *testing.T) {
	res, err := NewEstimator(DefaultConfig()).Estimate(testutil.GenerateReceiptImage(tilted(0)))
	require.NoError(t, err)
	assert.Less(t, math.Abs(res.Angle), 0.5)
	assert.False(t, ShouldCorrect(res.Angle, 0.5))
	// Well supported text rows settle the angle without the PCA fallback.
	assert.Equal(t, MethodHough, res.Method)
	assert.GreaterOrEqual(t, res.Lines, DefaultConfig().MinSupportLines)
}

func TestEstimateBlankPage(t *testing.T) {
	res, err := NewEstimator(DefaultConfig()).Estimate(testutil.SolidImage(300, 400, color.White))
	require.NoError(t, err)
	assert.Zero(t, res.Angle)
	assert.Equal(t, MethodNone, res.Method)
}

func TestEstimateNilImage(t *testing.T) {
	_, err := NewEstimator(Config{}).Estimate(nil)
	assert.Error(t, err)
}

func TestPCAFallbackRejectsSteepAxis(t *testing.T) {
	// A vertical bar has a principal axis of 90°, which is not a skew.
	img := testutil.SolidImage(200, 400, color.White)
	for y := 50; y < 350; y++ {
		for x := 95; x < 105; x++ {
			img.Set(x, y, color.Black)
		}
	}
	res := NewEstimator(DefaultConfig()).pcaAngle(mustPlane(t, img), 0)
	assert.Equal(t, MethodNone, res.Method)
	assert.Zero(t, res.Angle)
}

func TestPCAFallbackNeedsEnoughInk(t *testing.T) {
	img := testutil.SolidImage(200, 200, color.White)
	for x := 20; x < 60; x++ {
		img.Set(x, 100, color.Black)
	}
	res := NewEstimator(DefaultConfig()).pcaAngle(mustPlane(t, img), 0)
	assert.Equal(t, MethodNone, res.Method)
}

func TestPCAFallbackMeasuresBand(t *testing.T) {
	img := testutil.SolidImage(400, 400, color.White)
	slope := math.Tan(4 * math.Pi / 180)
	for x := 50; x < 350; x++ {
		yc := 200 - slope*float64(x-200)
		for dy := -3; dy <= 3; dy++ {
			img.Set(x, int(math.Round(yc))+dy, color.Black)
		}
	}
	res := NewEstimator(DefaultConfig()).pcaAngle(mustPlane(t, img), 0)
	assert.Equal(t, MethodPCA, res.Method)
	assert.InDelta(t, 4, res.Angle, 0.5)
}

func TestShouldCorrectProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("symmetric in sign", prop.ForAll(
		func(angle, threshold float64) bool {
			return ShouldCorrect(angle, threshold) == ShouldCorrect(-angle, threshold)
		},
		gen.Float64Range(-20, 20), gen.Float64Range(0, 5),
	))
	properties.TestingRun(t)
}

func mustPlane(t *testing.T, img image.Image) *utils.Plane {
	t.Helper()
	p, err := utils.ToPlane(img)
	require.NoError(t, err)
	return p
}
