package paddle

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/models"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/onnx"
)

// session wraps one ONNX model. Run calls are serialized.
type session struct {
	mu     sync.Mutex
	sess   *onnxrt.DynamicAdvancedSession
	input  onnxrt.InputOutputInfo
	output onnxrt.InputOutputInfo
}

func newSession(modelPath string, cfg Config) (*session, error) {
	if err := models.ValidateModelExists(modelPath); err != nil {
		return nil, err
	}
	if err := onnx.InitializeEnvironment(cfg.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("model %s: expected 1 input and at least 1 output, got %d/%d",
			modelPath, len(inputs), len(outputs))
	}

	opts, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	gpu := cfg.GPU
	gpu.UseGPU = cfg.UseGPU
	if err := onnx.ConfigureSessionForGPU(opts, gpu); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	sess, err := onnxrt.NewDynamicAdvancedSession(modelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	slog.Debug("onnx session ready", "model", modelPath, "input", inputs[0].Name,
		"output", outputs[0].Name, "gpu", cfg.UseGPU)
	return &session{sess: sess, input: inputs[0], output: outputs[0]}, nil
}

// run feeds one NCHW tensor and returns the output data and shape.
func (s *session) run(t onnx.Tensor) ([]float32, []int64, error) {
	if err := onnx.ValidateNCHW(t.Shape); err != nil {
		return nil, nil, fmt.Errorf("invalid tensor: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil, nil, errors.New("session is closed")
	}

	in, err := onnxrt.NewTensor(onnxrt.NewShape(t.Shape...), t.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxrt.Value{nil}
	if err := s.sess.Run([]onnxrt.Value{in}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	out, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	data := append([]float32(nil), out.GetData()...)
	return data, append([]int64(nil), out.GetShape()...), nil
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return nil
	}
	err := s.sess.Destroy()
	s.sess = nil
	return err
}
