package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelsDir_Priority(t *testing.T) {
	t.Setenv(EnvModelsDir, "/env/models")
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))
	assert.Equal(t, "/env/models", GetModelsDir(""))
}

func TestResolveModelPath_OrganizedThenFlat(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, filepath.Join(dir, DetectionServer), DetectionModelPath(dir, false))

	organized := filepath.Join(dir, TypeDetection, VariantMobile)
	require.NoError(t, os.MkdirAll(organized, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(organized, DetectionMobile), []byte("x"), 0o600))
	assert.Equal(t, filepath.Join(organized, DetectionMobile), DetectionModelPath(dir, true))

	assert.Equal(t, filepath.Join(dir, RecognitionServer), RecognitionModelPath(dir, false))
	assert.Equal(t, filepath.Join(dir, DictionaryPPOCRv5), DictionaryPath(dir))
}

func TestValidateModelExists(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "m.onnx")
	assert.Error(t, ValidateModelExists(p))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	assert.NoError(t, ValidateModelExists(p))
}

func TestVariant(t *testing.T) {
	assert.Equal(t, VariantMobile, Variant(true))
	assert.Equal(t, VariantServer, Variant(false))
}
