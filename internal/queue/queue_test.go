package queue

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

func sampleEntry(file string) Entry {
	r := document.NewResult()
	r.InvoiceNumber = "T8010001008346"
	return Entry{
		File:           file,
		Confidence:     0.15,
		PartialResult:  *r,
		FailureReasons: []string{"low_confidence", "no_vendor"},
	}
}

func TestEnqueueAndList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "manual_queue.json")
	q := New(path)
	fixed := time.Date(2026, 1, 9, 10, 30, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }

	entries, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, q.Enqueue(sampleEntry("/in/a.pdf")))
	require.NoError(t, q.Enqueue(sampleEntry("/in/b.pdf")))

	entries, err = q.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "/in/a.pdf", entries[0].File)
	assert.Equal(t, "/in/b.pdf", entries[1].File)
	assert.True(t, entries[0].Timestamp.Equal(fixed))
	assert.Equal(t, "T8010001008346", entries[1].PartialResult.InvoiceNumber)
	assert.Equal(t, []string{"low_confidence", "no_vendor"}, entries[1].FailureReasons)
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	q := New(path)
	e := sampleEntry("/in/名鉄協商_20260109_400.pdf")
	e.PartialResult.VendorName = "名鉄協商株式会社"
	e.FailureReasons = nil
	require.NoError(t, q.Enqueue(e))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "[\n  {"), "indented JSON array")
	assert.Contains(t, text, "名鉄協商株式会社", "Japanese is written unescaped")
	assert.Contains(t, text, `"failure_reasons": []`)

	keys := []string{`"file"`, `"timestamp"`, `"confidence"`, `"partial_result"`, `"failure_reasons"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(text, k)
		require.NotEqual(t, -1, idx, k)
		assert.Greater(t, idx, last, "key %s out of order", k)
		last = idx
	}

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".queue.json.*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp files are renamed away")
}

func TestRemove(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "queue.json"))
	require.NoError(t, q.Enqueue(sampleEntry("a.pdf")))
	require.NoError(t, q.Enqueue(sampleEntry("b.pdf")))
	require.NoError(t, q.Enqueue(sampleEntry("a.pdf")))

	n, err := q.Remove("a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = q.Remove("missing.pdf")
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := q.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.pdf", entries[0].File)
}

func TestCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	q := New(path)

	_, err := q.List()
	assert.ErrorIs(t, err, document.ErrQueue)

	err = q.Enqueue(sampleEntry("a.pdf"))
	assert.ErrorIs(t, err, document.ErrQueue)

	data, _ := os.ReadFile(path)
	assert.Equal(t, "{not json", string(data), "a failed enqueue leaves the file untouched")
}

func TestEmptyFileIsEmptyQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.json")
	require.NoError(t, os.WriteFile(path, []byte("\n"), 0o600))
	entries, err := New(path).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	q := New(filepath.Join(blocker, "queue.json"))
	err := q.Enqueue(sampleEntry("a.pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrQueue)
	assert.True(t, strings.HasPrefix(document.Describe(err), "queue_error:"))
}

func TestConcurrentEnqueue(t *testing.T) {
	q := New(filepath.Join(t.TempDir(), "queue.json"))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, q.Enqueue(sampleEntry(filepath.Join("in", string(rune('a'+i))+".pdf"))))
		}()
	}
	wg.Wait()

	entries, err := q.List()
	require.NoError(t, err)
	assert.Len(t, entries, 20)
}

func TestExportXLSX(t *testing.T) {
	e := sampleEntry("/in/a.pdf")
	e.Timestamp = time.Date(2026, 1, 9, 10, 30, 0, 0, time.UTC)
	e.PartialResult.Amount = 3960
	e.PartialResult.VendorName = "株式会社サンプル"

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX([]Entry{e, sampleEntry("/in/b.pdf")}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeaders, rows[0])
	assert.Equal(t, "/in/a.pdf", rows[1][0])
	assert.Equal(t, "2026-01-09T10:30:00Z", rows[1][1])
	assert.Equal(t, "株式会社サンプル", rows[1][3])
	assert.Equal(t, "3960", rows[1][5])
	assert.Equal(t, "T8010001008346", rows[1][6])
	assert.Equal(t, "領収書", rows[1][7])
	assert.Equal(t, "low_confidence, no_vendor", rows[1][8])
	assert.Empty(t, rows[2][5], "zero amounts are left blank")
}

func TestExportXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(nil, &buf))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(ExportSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
