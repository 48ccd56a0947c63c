//go:build !gosseract

package tesseract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
)

func TestFactoryUsesKeyLanguages(t *testing.T) {
	eng, err := Factory(DefaultConfig())(ocr.NewKey(ocr.KindTesseract, []string{"jpn", "eng"}, false))
	require.NoError(t, err)
	cli, ok := eng.(*CLIEngine)
	require.True(t, ok)
	assert.Contains(t, cli.Args("x.png"), "jpn+eng")
}
