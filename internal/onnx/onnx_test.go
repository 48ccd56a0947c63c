package onnx

import (
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGPUConfig(t *testing.T) {
	config := DefaultGPUConfig()
	assert.False(t, config.UseGPU)
	assert.Equal(t, "kNextPowerOfTwo", config.ArenaExtendStrategy)
	assert.Equal(t, "DEFAULT", config.CUDNNConvAlgoSearch)
	assert.True(t, config.DoCopyInDefaultStream)
}

func TestValidateGPUConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  GPUConfig
		wantErr bool
	}{
		{"cpu config", DefaultGPUConfig(), false},
		{"gpu config", GPUConfig{UseGPU: true, ArenaExtendStrategy: "kSameAsRequested"}, false},
		{"negative device", GPUConfig{UseGPU: true, DeviceID: -1}, true},
		{"bad arena", GPUConfig{UseGPU: true, ArenaExtendStrategy: "grow"}, true},
		{"bad algo", GPUConfig{UseGPU: true, CUDNNConvAlgoSearch: "FAST"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGPUConfig(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseMemoryLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"auto", 0, false},
		{"", 0, false},
		{"512MB", 512 << 20, false},
		{"2gb", 2 << 30, false},
		{"100B", 100, false},
		{"lots", 0, true},
		{"xGB", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMemoryLimit(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestCandidateLibraryPaths_EnvFirst(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/tmp/custom/libonnxruntime.so")
	paths := CandidateLibraryPaths(true)
	require.NotEmpty(t, paths)
	assert.Equal(t, "/tmp/custom/libonnxruntime.so", paths[0])
}

func TestSetONNXLibraryPath_NotFound(t *testing.T) {
	if _, err := os.Stat("/usr/local/lib/libonnxruntime.so"); err == nil {
		t.Skip("runtime installed on this host")
	}
	t.Setenv(EnvLibraryPath, "")
	t.Chdir(t.TempDir())
	assert.Error(t, SetONNXLibraryPath(false))
}

func TestNewImageTensor(t *testing.T) {
	_, err := NewImageTensor(nil, 3, 2, 2)
	assert.Error(t, err)
	_, err = NewImageTensor(make([]float32, 5), 3, 2, 2)
	assert.Error(t, err)
	tensor, err := NewImageTensor(make([]float32, 12), 3, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2, 2}, tensor.Shape)
	assert.NoError(t, ValidateNCHW(tensor.Shape))
	assert.Error(t, ValidateNCHW([]int64{1, 3, 2}))
	assert.Error(t, ValidateNCHW([]int64{1, 0, 2, 2}))
}

func TestNormalizeImage_PadsAndNormalizes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{255, 255, 255, 255})
	img.SetNRGBA(1, 0, color.NRGBA{0, 0, 0, 255})

	data := NormalizeImage(img, 4, [3]float32{0.5, 0.5, 0.5}, [3]float32{0.5, 0.5, 0.5})
	require.Len(t, data, 12)
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, -1.0, data[1], 1e-6)
	assert.Equal(t, float32(0), data[2])
	assert.Equal(t, float32(0), data[3])
}
