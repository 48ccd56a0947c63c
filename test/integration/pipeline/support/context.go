package support

import (
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Test environment
	TempDir string
	Config  pipeline.Config
	Engine  *testutil.FakeEngine

	// Documents created by Given steps, by name
	Documents map[string]string

	pipeline *pipeline.Pipeline

	// Last extraction
	LastResult *document.ExtractionResult
	LastError  error

	// HTTP state
	Server             *httptest.Server
	LastHTTPStatusCode int
	LastHTTPResponse   string
}

// NewTestContext creates a scenario context with a queue in a fresh temp dir.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "seisan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	cfg := pipeline.DefaultConfig()
	cfg.FallbackEngine = ocr.KindNone
	cfg.DPI = 72
	cfg.QueuePath = filepath.Join(tempDir, "manual_queue.json")
	cfg.Timeouts = pipeline.Timeouts{Preprocess: time.Minute, OCR: 10 * time.Second, Validator: 10 * time.Second}

	return &TestContext{
		TempDir:   tempDir,
		Config:    cfg,
		Engine:    testutil.NewFakeEngine(ocr.KindPaddle, ""),
		Documents: map[string]string{},
	}, nil
}

// Pipeline builds the pipeline on first use so that Given steps can still
// change the configuration.
func (testCtx *TestContext) Pipeline() (*pipeline.Pipeline, error) {
	if testCtx.pipeline != nil {
		return testCtx.pipeline, nil
	}
	p, err := pipeline.NewBuilder().
		WithConfig(testCtx.Config).
		WithEngineFactory(ocr.KindPaddle, testCtx.Engine.Factory()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	testCtx.pipeline = p
	return p, nil
}

// Queue returns the review queue of the scenario.
func (testCtx *TestContext) Queue() *queue.Queue {
	return queue.New(testCtx.Config.QueuePath)
}

// Cleanup stops the server and removes the temp directory.
func (testCtx *TestContext) Cleanup() error {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}
	if testCtx.pipeline != nil {
		_ = testCtx.pipeline.Close()
		testCtx.pipeline = nil
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}
