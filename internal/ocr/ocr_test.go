package ocr

import (
	"context"
	"errors"
	"image"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/utils"
)

type stubEngine struct {
	name   string
	text   string
	err    error
	delay  time.Duration
	closed atomic.Bool
	calls  atomic.Int32
}

func (s *stubEngine) Name() string { return s.name }

func (s *stubEngine) Recognize(ctx context.Context, _ image.Image) (*Result, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Result{Text: s.text, Confidence: 0.9}, nil
}

func (s *stubEngine) Close() error {
	s.closed.Store(true)
	return nil
}

func newTestAdapter(t *testing.T, primary, fallback *stubEngine, timeout time.Duration) *Adapter {
	t.Helper()
	reg := NewRegistry()
	reg.Register(KindPaddle, func(Key) (Engine, error) { return primary, nil })
	reg.Register(KindTesseract, func(Key) (Engine, error) { return fallback, nil })
	t.Cleanup(func() { _ = reg.Close() })
	return NewAdapter(reg, Options{
		Primary:   KindPaddle,
		Fallback:  KindTesseract,
		Languages: []string{"jpn", "eng"},
		Timeout:   timeout,
	})
}

var testImage = image.NewNRGBA(image.Rect(0, 0, 8, 8))

func TestAdapter_PrimarySucceeds(t *testing.T) {
	p := &stubEngine{name: "paddle", text: "合計 1,000円"}
	f := &stubEngine{name: "tesseract", text: "fallback"}
	a := newTestAdapter(t, p, f, time.Second)

	res, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, "paddle", res.Engine)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestAdapter_FallbackOnEmptyText(t *testing.T) {
	p := &stubEngine{name: "paddle", text: "  \n "}
	f := &stubEngine{name: "tesseract", text: "領収書"}
	a := newTestAdapter(t, p, f, time.Second)

	res, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tesseract", res.Engine)
	assert.Equal(t, "領収書", res.Text)
}

func TestAdapter_FallbackOnRetry(t *testing.T) {
	p := &stubEngine{name: "paddle", text: "primary"}
	f := &stubEngine{name: "tesseract", text: "secondary"}
	a := newTestAdapter(t, p, f, time.Second)

	res, err := a.ExtractText(context.Background(), testImage, ExtractOptions{Retry: true})
	require.NoError(t, err)
	assert.Equal(t, "secondary", res.Text)

	f.err = errors.New("boom")
	res, err = a.ExtractText(context.Background(), testImage, ExtractOptions{Retry: true})
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Text)
}

func TestAdapter_BothFail(t *testing.T) {
	p := &stubEngine{name: "paddle", err: errors.New("model missing")}
	f := &stubEngine{name: "tesseract", err: errors.New("binary missing")}
	a := newTestAdapter(t, p, f, time.Second)

	_, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrOCR)
	assert.Contains(t, err.Error(), "model missing")
	assert.Contains(t, err.Error(), "binary missing")
}

func TestAdapter_TimeoutPerEngine(t *testing.T) {
	p := &stubEngine{name: "paddle", text: "late", delay: time.Second}
	f := &stubEngine{name: "tesseract", text: "late too", delay: time.Second}
	a := newTestAdapter(t, p, f, 20*time.Millisecond)

	start := time.Now()
	_, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, document.ErrOCR)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAdapter_NoFallback(t *testing.T) {
	reg := NewRegistry()
	reg.Register(KindPaddle, func(Key) (Engine, error) { return &stubEngine{name: "paddle", err: errors.New("x")}, nil })
	a := NewAdapter(reg, Options{Primary: KindPaddle, Fallback: KindNone})
	assert.False(t, a.HasFallback())
	_, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	assert.ErrorIs(t, err, document.ErrOCR)

	_, err = a.ExtractText(context.Background(), nil, ExtractOptions{})
	assert.ErrorIs(t, err, document.ErrOCR)
}

func TestAdapter_Observer(t *testing.T) {
	p := &stubEngine{name: "paddle", err: errors.New("x")}
	f := &stubEngine{name: "tesseract", text: "ok"}
	a := newTestAdapter(t, p, f, time.Second)
	var statuses []string
	a.WithObserver(func(engine, status string, _ time.Duration) {
		statuses = append(statuses, engine+":"+status)
	})
	_, err := a.ExtractText(context.Background(), testImage, ExtractOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"paddle:error", "tesseract:ok"}, statuses)
}

func TestRegistry_ConcurrentInitSharesInstance(t *testing.T) {
	var inits atomic.Int32
	reg := NewRegistry()
	reg.Register(KindPaddle, func(Key) (Engine, error) {
		inits.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &stubEngine{name: "paddle"}, nil
	})

	key := NewKey(KindPaddle, []string{"eng", "jpn"}, false)
	var wg sync.WaitGroup
	engines := make([]Engine, 16)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := reg.Get(key)
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	for _, e := range engines {
		assert.Same(t, engines[0], e)
	}

	same, err := reg.Get(NewKey(KindPaddle, []string{"jpn", "eng"}, false))
	require.NoError(t, err)
	assert.Same(t, engines[0], same)

	require.NoError(t, reg.Close())
	assert.True(t, engines[0].(*stubEngine).closed.Load())
}

func TestRegistry_FailureCachedUntilReset(t *testing.T) {
	var inits atomic.Int32
	reg := NewRegistry()
	reg.Register(KindTesseract, func(Key) (Engine, error) {
		if inits.Add(1) == 1 {
			return nil, errors.New("not installed")
		}
		return &stubEngine{name: "tesseract"}, nil
	})
	key := NewKey(KindTesseract, nil, false)

	_, err := reg.Get(key)
	require.Error(t, err)
	_, err = reg.Get(key)
	require.Error(t, err)
	assert.Equal(t, int32(1), inits.Load())

	require.NoError(t, reg.Reset(key))
	e, err := reg.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "tesseract", e.Name())
}

func TestRegistry_UnknownKind(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get(NewKey("abbyy", nil, false))
	assert.ErrorIs(t, err, ErrUnknownEngine)
	assert.Empty(t, reg.Kinds())
}

func TestNewKey(t *testing.T) {
	k := NewKey(KindPaddle, []string{" jpn", "eng", ""}, true)
	assert.Equal(t, "eng+jpn", k.Languages)
	assert.Equal(t, []string{"eng", "jpn"}, k.LanguageList())
	assert.Nil(t, NewKey(KindPaddle, nil, false).LanguageList())
}

func quad(x0, y0, x1, y1 float64) utils.Quad {
	return utils.QuadFromBox(utils.NewBox(x0, y0, x1, y1))
}

func TestGroupLines_ReadingOrder(t *testing.T) {
	dets := []Detection{
		{Quad: quad(120, 52, 200, 70), Text: "1,280円", Confidence: 0.8},
		{Quad: quad(10, 10, 60, 30), Text: "領収書", Confidence: 1},
		{Quad: quad(10, 50, 50, 70), Text: "合計", Confidence: 0.9},
		{Quad: quad(52, 51, 90, 69), Text: "金額", Confidence: 0.7},
	}
	res := &Result{Detections: dets}
	lines := res.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "領収書", lines[0].Text)
	assert.Equal(t, "合計金額 1,280円", lines[1].Text)
	assert.Equal(t, "領収書\n合計金額 1,280円", JoinLines(lines))
	assert.InDelta(t, 0.85, MeanConfidence(dets), 1e-9)
	assert.Equal(t, 0.0, MeanConfidence(nil))
	assert.Nil(t, GroupLines(nil))
}

func TestScratchDir_RemovedOnError(t *testing.T) {
	var seen string
	err := ScratchDir("seisan-test-*", func(dir string) error {
		seen = dir
		return errors.New("fail")
	})
	require.Error(t, err)
	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, ScratchDir("seisan-test-*", func(dir string) error {
		seen = dir
		return os.WriteFile(dir+"/x", []byte("y"), 0o600)
	}))
	_, statErr = os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
}

type recordingRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.name, r.args = name, args
	return r.out, nil, r.err
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, _, err := ExecRunner{}.Run(context.Background(), "definitely-not-a-binary-seisan")
	assert.Error(t, err)

	var r Runner = &recordingRunner{out: []byte("ok")}
	out, _, err := r.Run(context.Background(), "echo", "a")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
}
