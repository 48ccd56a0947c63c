//go:build !gosseract

package tesseract

import "github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"

// Factory returns a registry factory for the CLI engine.
func Factory(cfg Config) ocr.Factory {
	return func(key ocr.Key) (ocr.Engine, error) {
		return NewCLI(cfg, key.LanguageList()), nil
	}
}
