// Package paddle runs PP-OCRv5 text detection and recognition models with
// ONNX Runtime.
package paddle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/models"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/onnx"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

// Config configures the engine.
type Config struct {
	ModelsDir  string
	Lite       bool
	UseGPU     bool
	GPU        onnx.GPUConfig
	NumThreads int
	// MaxSide bounds the detection input; zero selects 1536, or 960 in lite mode.
	MaxSide int
	// Thresh binarizes the probability map; BoxThresh filters regions by mean probability.
	Thresh    float64
	BoxThresh float64
	// UnclipRatio expands detected regions.
	UnclipRatio float64
	// RecHeight and RecMaxWidth size recognition crops.
	RecHeight   int
	RecMaxWidth int
}

// DefaultConfig returns the server-model settings.
func DefaultConfig() Config {
	return Config{
		ModelsDir:   models.DefaultModelsDir,
		GPU:         onnx.DefaultGPUConfig(),
		Thresh:      0.3,
		BoxThresh:   0.5,
		UnclipRatio: 1.5,
		RecHeight:   48,
		RecMaxWidth: 960,
	}
}

func (c Config) maxSide() int {
	switch {
	case c.MaxSide > 0:
		return c.MaxSide
	case c.Lite:
		return 960
	default:
		return 1536
	}
}

// Engine is the PP-OCRv5 engine. It is safe for concurrent use; each model
// session serializes its own Run calls.
type Engine struct {
	cfg     Config
	det     *session
	rec     *session
	charset []string
}

// New loads the detection and recognition models and the dictionary.
func New(cfg Config) (*Engine, error) {
	dir := models.GetModelsDir(cfg.ModelsDir)
	det, err := newSession(models.DetectionModelPath(dir, cfg.Lite), cfg)
	if err != nil {
		return nil, fmt.Errorf("paddle detector: %w", err)
	}
	rec, err := newSession(models.RecognitionModelPath(dir, cfg.Lite), cfg)
	if err != nil {
		_ = det.close()
		return nil, fmt.Errorf("paddle recognizer: %w", err)
	}
	charset, err := loadCharset(models.DictionaryPath(dir))
	if err != nil {
		_ = det.close()
		_ = rec.close()
		return nil, fmt.Errorf("paddle dictionary: %w", err)
	}
	slog.Info("paddle engine ready", "models_dir", dir, "variant", models.Variant(cfg.Lite),
		"classes", len(charset), "gpu", cfg.UseGPU)
	return &Engine{cfg: cfg, det: det, rec: rec, charset: charset}, nil
}

// Factory returns a registry factory; the key's GPU flag overrides cfg.
func Factory(cfg Config) ocr.Factory {
	return func(key ocr.Key) (ocr.Engine, error) {
		c := cfg
		c.UseGPU = key.UseGPU
		return New(c)
	}
}

// Name implements ocr.Engine.
func (e *Engine) Name() string { return ocr.KindPaddle }

// Recognize detects text regions and recognizes each one in reading order.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (*ocr.Result, error) {
	if img == nil {
		return nil, errors.New("paddle: nil image")
	}
	start := time.Now()
	src := utils.ToRGB(img)

	boxes, boxScores, err := e.detect(src)
	if err != nil {
		return nil, err
	}

	dets := make([]ocr.Detection, 0, len(boxes))
	for i, box := range boxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, conf, err := e.recognize(src, box)
		if err != nil {
			return nil, err
		}
		if text == "" {
			continue
		}
		dets = append(dets, ocr.Detection{
			Quad:       utils.QuadFromBox(box),
			Text:       text,
			Confidence: conf * boxScores[i],
		})
	}

	lines := ocr.GroupLines(dets)
	res := &ocr.Result{
		Text:       ocr.JoinLines(lines),
		Confidence: ocr.MeanConfidence(dets),
		Detections: dets,
	}
	slog.Debug("paddle recognized", "regions", len(boxes), "detections", len(dets),
		"confidence", res.Confidence, "duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (e *Engine) detect(src *image.NRGBA) ([]utils.Box, []float64, error) {
	resized, sx, sy := resizeForDetection(src, e.cfg.maxSide())
	rb := resized.Bounds()
	data := onnx.NormalizeImage(resized, rb.Dx(), onnx.ImageNetMean, onnx.ImageNetStd)
	tensor, err := onnx.NewImageTensor(data, 3, rb.Dy(), rb.Dx())
	if err != nil {
		return nil, nil, fmt.Errorf("paddle detector: %w", err)
	}
	prob, shape, err := e.det.run(tensor)
	if err != nil {
		return nil, nil, fmt.Errorf("paddle detector: %w", err)
	}
	if len(shape) != 4 {
		return nil, nil, fmt.Errorf("paddle detector: expected 4D output, got %v", shape)
	}
	h, w := int(shape[2]), int(shape[3])
	sx *= float64(rb.Dx()) / float64(w)
	sy *= float64(rb.Dy()) / float64(h)
	sb := src.Bounds()
	boxes, scores := boxesFromProbMap(prob[:w*h], w, h, e.cfg.Thresh, e.cfg.BoxThresh, e.cfg.UnclipRatio,
		sx, sy, sb.Dx(), sb.Dy())
	return boxes, scores, nil
}

func (e *Engine) recognize(src *image.NRGBA, box utils.Box) (string, float64, error) {
	crop := cropForRecognition(src, box, e.cfg.RecHeight, e.cfg.RecMaxWidth)
	if crop == nil {
		return "", 0, nil
	}
	cb := crop.Bounds()
	half := [3]float32{0.5, 0.5, 0.5}
	tensor, err := onnx.NewImageTensor(onnx.NormalizeImage(crop, cb.Dx(), half, half), 3, cb.Dy(), cb.Dx())
	if err != nil {
		return "", 0, fmt.Errorf("paddle recognizer: %w", err)
	}
	scores, shape, err := e.rec.run(tensor)
	if err != nil {
		return "", 0, fmt.Errorf("paddle recognizer: %w", err)
	}
	if len(shape) != 3 {
		return "", 0, fmt.Errorf("paddle recognizer: expected 3D output, got %v", shape)
	}
	return decodeCTC(scores, int(shape[1]), int(shape[2]), e.charset)
}

// Close releases both sessions.
func (e *Engine) Close() error {
	return errors.Join(e.det.close(), e.rec.close())
}
