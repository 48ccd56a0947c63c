package support

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/server"
)

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the extraction server is running$`, testCtx.theExtractionServerIsRunning)
	sc.Step(`^I upload "([^"]*)" to the extraction endpoint$`, testCtx.iUploadToTheExtractionEndpoint)
	sc.Step(`^I request the review queue$`, testCtx.iRequestTheReviewQueue)
	sc.Step(`^I remove "([^"]*)" from the review queue over HTTP$`, testCtx.iRemoveFromTheReviewQueueOverHTTP)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (testCtx *TestContext) theExtractionServerIsRunning() error {
	p, err := testCtx.Pipeline()
	if err != nil {
		return err
	}
	srv := server.NewServer(p, server.Config{MaxUploadMB: 10, TimeoutSec: 60})
	testCtx.Server = httptest.NewServer(srv.Handler())
	return nil
}

func (testCtx *TestContext) iUploadToTheExtractionEndpoint(name string) error {
	if testCtx.Server == nil {
		return fmt.Errorf("server is not running")
	}
	path, ok := testCtx.Documents[name]
	if !ok {
		return fmt.Errorf("unknown document %s", name)
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.Server.URL+"/v1/extract", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) iRequestTheReviewQueue() error {
	req, err := http.NewRequest(http.MethodGet, testCtx.Server.URL+"/v1/queue", nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) iRemoveFromTheReviewQueueOverHTTP(name string) error {
	req, err := http.NewRequest(http.MethodDelete, testCtx.Server.URL+"/v1/queue?file="+url.QueryEscape(name), nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

func (testCtx *TestContext) do(req *http.Request) error {
	resp, err := testCtx.Server.Client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("expected response to contain %q, got: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}
