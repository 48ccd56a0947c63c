package support

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
)

// RegisterPipelineSteps registers document setup, extraction and queue steps.
func (testCtx *TestContext) RegisterPipelineSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a scanned document "([^"]*)" whose OCR text is:$`, testCtx.aScannedDocumentWhoseOCRTextIs)
	sc.Step(`^a blank scanned document "([^"]*)"$`, testCtx.aBlankScannedDocument)
	sc.Step(`^an empty file "([^"]*)"$`, testCtx.anEmptyFile)
	sc.Step(`^a text file "([^"]*)" containing "([^"]*)"$`, testCtx.aTextFileContaining)
	sc.Step(`^the OCR engine needs (\d+)ms per page$`, testCtx.theOCREngineNeedsPerPage)
	sc.Step(`^the OCR budget is (\d+)ms$`, testCtx.theOCRBudgetIs)
	sc.Step(`^strict filename mode is enabled$`, testCtx.strictFilenameModeIsEnabled)
	sc.Step(`^the filename fallback is disabled$`, testCtx.theFilenameFallbackIsDisabled)

	sc.Step(`^I process "([^"]*)"$`, testCtx.iProcess)

	sc.Step(`^the extraction should succeed$`, testCtx.theExtractionShouldSucceed)
	sc.Step(`^the extraction should not succeed$`, testCtx.theExtractionShouldNotSucceed)
	sc.Step(`^processing should fail with an? (input|queue) error$`, testCtx.processingShouldFailWith)
	sc.Step(`^the vendor name should be "([^"]*)"$`, testCtx.fieldShouldBe(document.FieldVendor))
	sc.Step(`^the issue date should be "([^"]*)"$`, testCtx.fieldShouldBe(document.FieldIssueDate))
	sc.Step(`^the amount should be (\d+)$`, testCtx.fieldShouldBe(document.FieldAmount))
	sc.Step(`^the invoice number should be "([^"]*)"$`, testCtx.fieldShouldBe(document.FieldInvoiceNumber))
	sc.Step(`^the document type should be "([^"]*)"$`, testCtx.fieldShouldBe(document.FieldDocumentType))
	sc.Step(`^the (vendor name|issue date|amount|invoice number) should be empty$`, testCtx.fieldShouldBeEmpty)
	sc.Step(`^the confidence should be at least ([0-9.]+)$`, testCtx.theConfidenceShouldBeAtLeast)
	sc.Step(`^the confidence should be below ([0-9.]+)$`, testCtx.theConfidenceShouldBeBelow)
	sc.Step(`^the result source should be "([^"]*)"$`, testCtx.theResultSourceShouldBe)
	sc.Step(`^the error should start with "([^"]*)"$`, testCtx.theErrorShouldStartWith)
	sc.Step(`^the result should carry no error$`, testCtx.theResultShouldCarryNoError)

	sc.Step(`^the review queue should be empty$`, testCtx.theReviewQueueShouldBeEmpty)
	sc.Step(`^"([^"]*)" should be in the review queue$`, testCtx.shouldBeInTheReviewQueue)
	sc.Step(`^"([^"]*)" should be in the review queue with reason "([^"]*)"$`, testCtx.shouldBeInTheReviewQueueWithReason)
}

func (testCtx *TestContext) aScannedDocumentWhoseOCRTextIs(name string, text *godog.DocString) error {
	testCtx.Engine.Text = text.Content
	return testCtx.writeScan(name)
}

func (testCtx *TestContext) aBlankScannedDocument(name string) error {
	testCtx.Engine.Text = ""
	return testCtx.writeScan(name)
}

func (testCtx *TestContext) writeScan(name string) error {
	img := testutil.GenerateReceiptImage(testutil.DefaultReceiptImageConfig())
	path, err := testutil.ImagePDF(testCtx.TempDir, name, img)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	testCtx.Documents[name] = path
	return nil
}

func (testCtx *TestContext) anEmptyFile(name string) error {
	return testCtx.writeRaw(name, nil)
}

func (testCtx *TestContext) aTextFileContaining(name, content string) error {
	return testCtx.writeRaw(name, []byte(content))
}

func (testCtx *TestContext) writeRaw(name string, data []byte) error {
	path := filepath.Join(testCtx.TempDir, name)
	if err := writeFile(path, data); err != nil {
		return err
	}
	testCtx.Documents[name] = path
	return nil
}

func (testCtx *TestContext) theOCREngineNeedsPerPage(ms int) error {
	testCtx.Engine.Delay = time.Duration(ms) * time.Millisecond
	return nil
}

func (testCtx *TestContext) theOCRBudgetIs(ms int) error {
	testCtx.Config.Timeouts.OCR = time.Duration(ms) * time.Millisecond
	return nil
}

func (testCtx *TestContext) strictFilenameModeIsEnabled() error {
	testCtx.Config.StrictFilenameOnly = true
	return nil
}

func (testCtx *TestContext) theFilenameFallbackIsDisabled() error {
	testCtx.Config.FilenameFallback = false
	return nil
}

func (testCtx *TestContext) iProcess(name string) error {
	path, ok := testCtx.Documents[name]
	if !ok {
		path = filepath.Join(testCtx.TempDir, name)
	}
	p, err := testCtx.Pipeline()
	if err != nil {
		return err
	}
	testCtx.LastResult, testCtx.LastError = p.Process(context.Background(), path)
	if testCtx.LastResult == nil {
		return fmt.Errorf("no result returned for %s (error: %v)", name, testCtx.LastError)
	}
	return nil
}

func (testCtx *TestContext) result() (*document.ExtractionResult, error) {
	if testCtx.LastResult == nil {
		return nil, fmt.Errorf("no document has been processed")
	}
	return testCtx.LastResult, nil
}

func (testCtx *TestContext) theExtractionShouldSucceed() error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if testCtx.LastError != nil {
		return fmt.Errorf("unexpected error: %v", testCtx.LastError)
	}
	if !res.Success {
		return fmt.Errorf("expected success, got failure (confidence %.2f, error %q)", res.Confidence, res.Error)
	}
	return nil
}

func (testCtx *TestContext) theExtractionShouldNotSucceed() error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Success {
		return fmt.Errorf("expected failure, got success with %+v", res.Fields())
	}
	return nil
}

func (testCtx *TestContext) processingShouldFailWith(kind string) error {
	want := map[string]error{"input": document.ErrInput, "queue": document.ErrQueue}[kind]
	if testCtx.LastError == nil {
		return fmt.Errorf("expected %s error, got none", kind)
	}
	if document.KindOf(testCtx.LastError) != want {
		return fmt.Errorf("expected %s error, got %v", kind, testCtx.LastError)
	}
	return nil
}

// fieldShouldBe returns a step comparing one extracted field with its
// textual form.
func (testCtx *TestContext) fieldShouldBe(field string) func(string) error {
	return func(want string) error {
		res, err := testCtx.result()
		if err != nil {
			return err
		}
		got := fieldValue(res, field)
		if got != want {
			return fmt.Errorf("expected %s %q, got %q", field, want, got)
		}
		return nil
	}
}

func (testCtx *TestContext) fieldShouldBeEmpty(label string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	field := strings.ReplaceAll(label, " ", "_")
	if field == "vendor_name" {
		field = document.FieldVendor
	}
	if got := fieldValue(res, field); got != "" {
		return fmt.Errorf("expected empty %s, got %q", label, got)
	}
	return nil
}

func fieldValue(res *document.ExtractionResult, field string) string {
	switch field {
	case document.FieldVendor:
		return res.VendorName
	case document.FieldIssueDate:
		return res.IssueDate
	case document.FieldAmount:
		if res.Amount == 0 {
			return ""
		}
		return strconv.Itoa(res.Amount)
	case document.FieldInvoiceNumber:
		return res.InvoiceNumber
	case document.FieldDocumentType:
		return string(res.DocumentType)
	}
	return ""
}

func (testCtx *TestContext) theConfidenceShouldBeAtLeast(min float64) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Confidence < min {
		return fmt.Errorf("expected confidence >= %.2f, got %.2f", min, res.Confidence)
	}
	return nil
}

func (testCtx *TestContext) theConfidenceShouldBeBelow(max float64) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Confidence >= max {
		return fmt.Errorf("expected confidence < %.2f, got %.2f", max, res.Confidence)
	}
	return nil
}

func (testCtx *TestContext) theResultSourceShouldBe(source string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Source != source {
		return fmt.Errorf("expected source %q, got %q", source, res.Source)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldStartWith(prefix string) error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if !strings.HasPrefix(res.Error, prefix) {
		return fmt.Errorf("expected error starting with %q, got %q", prefix, res.Error)
	}
	return nil
}

func (testCtx *TestContext) theResultShouldCarryNoError() error {
	res, err := testCtx.result()
	if err != nil {
		return err
	}
	if res.Error != "" {
		return fmt.Errorf("expected no error, got %q", res.Error)
	}
	return nil
}

func (testCtx *TestContext) theReviewQueueShouldBeEmpty() error {
	entries, err := testCtx.Queue().List()
	if err != nil {
		return err
	}
	if len(entries) != 0 {
		return fmt.Errorf("expected empty review queue, got %d entries (first: %s)", len(entries), entries[0].File)
	}
	return nil
}

func (testCtx *TestContext) shouldBeInTheReviewQueue(name string) error {
	_, err := testCtx.queuedReasons(name)
	return err
}

func (testCtx *TestContext) shouldBeInTheReviewQueueWithReason(name, reason string) error {
	reasons, err := testCtx.queuedReasons(name)
	if err != nil {
		return err
	}
	if !slices.Contains(reasons, reason) {
		return fmt.Errorf("expected reason %q for %s, got %v", reason, name, reasons)
	}
	return nil
}

func (testCtx *TestContext) queuedReasons(name string) ([]string, error) {
	entries, err := testCtx.Queue().List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.File == name || filepath.Base(e.File) == name {
			return e.FailureReasons, nil
		}
	}
	return nil, fmt.Errorf("%s is not in the review queue (%d entries)", name, len(entries))
}
