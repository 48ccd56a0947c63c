package cmd

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/batch"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/queue"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/testutil"
)

func writeScanPDF(t *testing.T, dir, name string) string {
	t.Helper()
	img := testutil.GenerateReceiptImage(testutil.DefaultReceiptImageConfig())
	return testutil.WriteImagePDF(t, dir, name, img)
}

func TestProcessCommandJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	scenario := testutil.SeedScenarios[0]
	engine := useFakeEngine(t, scenario.OCRText)
	pdfPath := writeScanPDF(t, dir, scenario.Filename)

	stdout, _, err := executeSplit(t, "--config", cfgPath, "process", pdfPath, "--format", "json")
	require.NoError(t, err)

	var out struct {
		Documents []batch.Item `json:"documents"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	require.Len(t, out.Documents, 1)
	res := out.Documents[0].Result
	require.NotNil(t, res)
	assert.Equal(t, scenario.Want.VendorName, res.VendorName)
	assert.Equal(t, scenario.Want.IssueDate, res.IssueDate)
	assert.Equal(t, scenario.Want.Amount, res.Amount)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, engine.Calls.Load(), int32(1))

	entries, err := queue.New(filepath.Join(dir, "manual_queue.json")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestProcessCommandDirectoryCSV(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	useFakeEngine(t, "")

	scans := filepath.Join(dir, "scans")
	require.NoError(t, os.MkdirAll(scans, 0o755))
	writeScanPDF(t, scans, "名鉄協商_20260109_400.pdf")
	writeScanPDF(t, scans, "scan_0006.pdf")
	outFile := filepath.Join(dir, "results.csv")

	_, stderr, err := executeSplit(t, "--config", cfgPath, "process", scans,
		"--format", "csv", "--output", outFile, "--stats")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Documents: 2")

	f, err := os.Open(outFile)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "file", rows[0][0])

	byName := map[string][]string{}
	for _, row := range rows[1:] {
		byName[filepath.Base(row[0])] = row
	}
	meitetsu := byName["名鉄協商_20260109_400.pdf"]
	require.NotNil(t, meitetsu)
	assert.Equal(t, "名鉄協商株式会社", meitetsu[1])
	assert.Equal(t, "400", meitetsu[3])

	entries, err := queue.New(filepath.Join(dir, "manual_queue.json")).List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].File, "scan_0006.pdf"))
}

func TestProcessCommandUnreadableInput(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	useFakeEngine(t, "")
	empty := testutil.WriteFile(t, dir, "empty.pdf", nil)

	stdout, _, err := executeSplit(t, "--config", cfgPath, "process", empty, "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not be read")
	assert.Contains(t, stdout, "input_error:acquire")
}

func TestProcessCommandRejects(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	useFakeEngine(t, "")
	pdfPath := writeScanPDF(t, dir, "scan.pdf")

	_, _, err := executeSplit(t, "--config", cfgPath, "process", pdfPath, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")

	_, _, err = executeSplit(t, "--config", cfgPath, "process", t.TempDir(), "--format", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no PDF files")

	_, _, err = executeSplit(t, "--config", cfgPath, "process", pdfPath, "--format", "json", "--engine", "abbyy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary engine")
}
