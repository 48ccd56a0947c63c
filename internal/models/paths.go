// Package models resolves the ONNX model and dictionary files used by the
// primary OCR engine.
package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Model file names.
const (
	DetectionMobile   = "PP-OCRv5_mobile_det.onnx"
	DetectionServer   = "PP-OCRv5_server_det.onnx"
	RecognitionMobile = "PP-OCRv5_mobile_rec.onnx"
	RecognitionServer = "PP-OCRv5_server_rec.onnx"

	DictionaryPPOCRv5 = "ppocrv5_dict.txt"
)

// Directory layout below the models root.
const (
	TypeDetection    = "detection"
	TypeRecognition  = "recognition"
	TypeDictionaries = "dictionaries"

	VariantMobile = "mobile"
	VariantServer = "server"
)

// DefaultModelsDir is used when no directory is configured.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "SEISAN_MODELS_DIR"

// GetModelsDir returns the models directory.
// Priority: explicit argument, environment variable, project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if root, err := findProjectRoot(); err == nil {
		return filepath.Join(root, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers the organized layout (type/variant/file) and falls
// back to a flat directory.
func ResolveModelPath(modelsDir, modelType, variant, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organized := filepath.Join(base, modelType, filename)
		if variant != "" {
			organized = filepath.Join(base, modelType, variant, filename)
		}
		if _, err := os.Stat(organized); err == nil {
			return organized
		}
	}
	return filepath.Join(base, filename)
}

// Variant returns the model variant for the lite flag.
func Variant(lite bool) string {
	if lite {
		return VariantMobile
	}
	return VariantServer
}

// DetectionModelPath returns the detector model path.
func DetectionModelPath(modelsDir string, lite bool) string {
	name := DetectionServer
	if lite {
		name = DetectionMobile
	}
	return ResolveModelPath(modelsDir, TypeDetection, Variant(lite), name)
}

// RecognitionModelPath returns the recognizer model path.
func RecognitionModelPath(modelsDir string, lite bool) string {
	name := RecognitionServer
	if lite {
		name = RecognitionMobile
	}
	return ResolveModelPath(modelsDir, TypeRecognition, Variant(lite), name)
}

// DictionaryPath returns the recognizer character dictionary path.
func DictionaryPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, TypeDictionaries, "", DictionaryPPOCRv5)
}

// ValidateModelExists checks if a model file exists at the given path.
func ValidateModelExists(modelPath string) error {
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	return nil
}

func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}
