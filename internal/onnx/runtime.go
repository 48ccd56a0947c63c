package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath overrides ONNX Runtime shared library discovery.
const EnvLibraryPath = "SEISAN_ONNXRUNTIME_LIB"

var (
	initMu  sync.Mutex
	initErr error
	initRan bool
)

// LibraryName returns the shared library filename for the current OS.
func LibraryName() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// CandidateLibraryPaths lists where the runtime library is searched, in order.
func CandidateLibraryPaths(useGPU bool) []string {
	var paths []string
	if p := os.Getenv(EnvLibraryPath); p != "" {
		paths = append(paths, p)
	}
	name, err := LibraryName()
	if err != nil {
		return paths
	}
	if useGPU {
		paths = append(paths, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
	)
	if root, err := findProjectRoot(); err == nil {
		if useGPU {
			paths = append(paths, filepath.Join(root, "onnxruntime", "gpu", "lib", name))
		}
		paths = append(paths, filepath.Join(root, "onnxruntime", "lib", name))
	}
	return paths
}

// SetONNXLibraryPath points onnxruntime_go at the first existing candidate library.
func SetONNXLibraryPath(useGPU bool) error {
	for _, p := range CandidateLibraryPaths(useGPU) {
		if _, err := os.Stat(p); err == nil {
			onnxruntime_go.SetSharedLibraryPath(p)
			return nil
		}
	}
	return errors.New("ONNX Runtime library not found; set " + EnvLibraryPath)
}

// InitializeEnvironment loads the runtime once per process. A failure is
// remembered and returned to later callers.
func InitializeEnvironment(useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()
	if initRan {
		return initErr
	}
	initRan = true
	if onnxruntime_go.IsInitialized() {
		return nil
	}
	if err := SetONNXLibraryPath(useGPU); err != nil {
		initErr = fmt.Errorf("failed to set ONNX Runtime library path: %w", err)
		return initErr
	}
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		initErr = fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return initErr
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root")
		}
		dir = parent
	}
}
