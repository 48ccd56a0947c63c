package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/pipeline"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
)

// mockPipeline records the call and returns a canned outcome.
type mockPipeline struct {
	queue    *queue.Queue
	result   *document.ExtractionResult
	err      error
	gotPath  string
	gotOpts  pipeline.Options
	gotBytes []byte
	closed   bool
}

func (m *mockPipeline) ProcessWithOptions(_ context.Context, path string, opts pipeline.Options) (*document.ExtractionResult, error) {
	m.gotPath = path
	m.gotOpts = opts
	m.gotBytes, _ = os.ReadFile(path)
	return m.result, m.err
}

func (m *mockPipeline) Queue() *queue.Queue { return m.queue }
func (m *mockPipeline) Info() map[string]any { return map[string]any{"primary_engine": "paddle"} }
func (m *mockPipeline) Close() error { m.closed = true; return nil }

func newMock(t *testing.T) *mockPipeline {
	t.Helper()
	res := document.NewResult()
	res.VendorName = "刈谷市会計管理者"
	res.Amount = 3400
	res.Confidence = 0.65
	res.Finalize()
	return &mockPipeline{queue: queue.New(filepath.Join(t.TempDir(), "manual_queue.json")), result: res}
}

func newTestServer(p pipelineInterface) *httptest.Server {
	s := NewServer(p, Config{CORSOrigin: "https://review.example", MaxUploadMB: 1, TimeoutSec: 30})
	return httptest.NewServer(s.Handler())
}

func uploadRequest(t *testing.T, url, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req, err := http.NewRequest(http.MethodPost, url+"/v1/extract", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestExtractHandler(t *testing.T) {
	m := newMock(t)
	ts := newTestServer(m)
	defer ts.Close()

	req := uploadRequest(t, ts.URL, `C:\fax\名鉄協商_20260109_400.pdf`, []byte("%PDF-1.4 test"), map[string]string{"retry": "true"})
	resp, body := do(t, req)

	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var res document.ExtractionResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "刈谷市会計管理者", res.VendorName)
	assert.Equal(t, 3400, res.Amount)

	assert.Equal(t, "名鉄協商_20260109_400.pdf", m.gotOpts.Name)
	assert.Equal(t, "名鉄協商_20260109_400.pdf", filepath.Base(m.gotPath))
	assert.True(t, m.gotOpts.RetryOCR)
	assert.Equal(t, []byte("%PDF-1.4 test"), m.gotBytes)
	_, err := os.Stat(m.gotPath)
	assert.True(t, os.IsNotExist(err), "upload temp file must be removed")
}

func TestExtractHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"input error", document.Inputf("acquire", "empty file"), http.StatusBadRequest},
		{"queue error", document.NewError(document.ErrQueue, "enqueue", "disk full", nil), http.StatusInternalServerError},
		{"other error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newMock(t)
			m.err = tt.err
			m.result.Error = document.Describe(tt.err)
			ts := newTestServer(m)
			defer ts.Close()

			resp, body := do(t, uploadRequest(t, ts.URL, "a.pdf", []byte("x"), nil))
			assert.Equal(t, tt.status, resp.StatusCode)

			var res document.ExtractionResult
			require.NoError(t, json.Unmarshal(body, &res))
			assert.Equal(t, document.Describe(tt.err), res.Error)
		})
	}
}

func TestExtractHandlerRejects(t *testing.T) {
	ts := newTestServer(newMock(t))
	defer ts.Close()

	resp, _ := do(t, mustRequest(t, http.MethodGet, ts.URL+"/v1/extract"))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))

	resp, body := do(t, uploadRequest(t, ts.URL, "", nil, map[string]string{"retry": "1"}))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "missing_file")

	big := bytes.Repeat([]byte("a"), 2<<20)
	resp, _ = do(t, uploadRequest(t, ts.URL, "big.pdf", big, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func mustRequest(t *testing.T, method, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	return req
}

func TestQueueEndpoints(t *testing.T) {
	m := newMock(t)
	for _, f := range []string{"a.pdf", "b.pdf", "a.pdf"} {
		require.NoError(t, m.queue.Enqueue(queue.Entry{File: f, Confidence: 0.3, FailureReasons: []string{"low_confidence"}}))
	}
	ts := newTestServer(m)
	defer ts.Close()

	resp, body := do(t, mustRequest(t, http.MethodGet, ts.URL+"/v1/queue"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list QueueResponse
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 3, list.Count)
	assert.Equal(t, "a.pdf", list.Entries[0].File)

	resp, body = do(t, mustRequest(t, http.MethodDelete, ts.URL+"/v1/queue?file=a.pdf"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var removed RemoveResponse
	require.NoError(t, json.Unmarshal(body, &removed))
	assert.Equal(t, 2, removed.Removed)

	resp, _ = do(t, mustRequest(t, http.MethodDelete, ts.URL+"/v1/queue?file=a.pdf"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, mustRequest(t, http.MethodDelete, ts.URL+"/v1/queue"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, mustRequest(t, http.MethodPut, ts.URL+"/v1/queue"))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	entries, err := m.queue.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.pdf", entries[0].File)
}

func TestQueueListEmpty(t *testing.T) {
	ts := newTestServer(newMock(t))
	defer ts.Close()

	_, body := do(t, mustRequest(t, http.MethodGet, ts.URL+"/v1/queue"))
	assert.JSONEq(t, `{"entries":[],"count":0}`, string(body))
}

func TestExportHandler(t *testing.T) {
	m := newMock(t)
	require.NoError(t, m.queue.Enqueue(queue.Entry{File: "scan_0006.pdf", Confidence: 0.15, FailureReasons: []string{"low_confidence", "no_vendor"}}))
	ts := newTestServer(m)
	defer ts.Close()

	resp, body := do(t, mustRequest(t, http.MethodGet, ts.URL+"/v1/queue/export.xlsx"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "manual_queue.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Contains(t, rows[1], "scan_0006.pdf")
}

func TestHealthAndMiddleware(t *testing.T) {
	ts := newTestServer(newMock(t))
	defer ts.Close()

	req := mustRequest(t, http.MethodGet, ts.URL+"/health")
	req.Header.Set(RequestIDHeader, "req-123")
	resp, body := do(t, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "https://review.example", resp.Header.Get("Access-Control-Allow-Origin"))

	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "paddle", health.Pipeline["primary_engine"])

	resp, _ = do(t, mustRequest(t, http.MethodOptions, ts.URL+"/v1/extract"))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, mustRequest(t, http.MethodPost, ts.URL+"/health"))
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, body = do(t, mustRequest(t, http.MethodGet, ts.URL+"/metrics"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "seisan_http_requests_total")
}

func TestServerClose(t *testing.T) {
	m := newMock(t)
	s := NewServer(m, Config{})
	require.NoError(t, s.Close())
	assert.True(t, m.closed)
	assert.Equal(t, int64(50), s.maxUploadMB)
	assert.Equal(t, 5*time.Minute, s.timeout)
}

func TestUploadName(t *testing.T) {
	assert.Equal(t, "a.pdf", uploadName("../../a.pdf"))
	assert.Equal(t, "b.pdf", uploadName(`C:\x\b.pdf`))
	assert.Equal(t, "upload.pdf", uploadName(""))
}

// TestExtractWithPipeline uploads a blank scan and checks that the original
// file name reaches the filename fallback.
func TestExtractWithPipeline(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.FallbackEngine = ocr.KindNone
	cfg.DPI = 72
	cfg.QueuePath = filepath.Join(t.TempDir(), "manual_queue.json")
	cfg.Timeouts.Preprocess = time.Minute
	engine := testutil.NewFakeEngine(ocr.KindPaddle, "")
	p, err := pipeline.NewBuilder().WithConfig(cfg).WithEngineFactory(ocr.KindPaddle, engine.Factory()).Build()
	require.NoError(t, err)

	ts := newTestServer(p)
	defer ts.Close()

	img := testutil.GenerateReceiptImage(testutil.DefaultReceiptImageConfig())
	pdfPath := testutil.WriteImagePDF(t, t.TempDir(), "scan.pdf", img)
	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)

	resp, body := do(t, uploadRequest(t, ts.URL, "名鉄協商_20260109_400.pdf", data, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res document.ExtractionResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, "名鉄協商株式会社", res.VendorName)
	assert.Equal(t, "20260109", res.IssueDate)
	assert.Equal(t, 400, res.Amount)
	assert.Equal(t, document.SourceFilename, res.Source)

	resp, body = do(t, uploadRequest(t, ts.URL, "empty.pdf", nil, nil))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "input_error"), string(body))
}
