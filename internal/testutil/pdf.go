package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/require"
)

// WriteImagePDF wraps img into a one-page PDF with pdfcpu and returns its path.
func WriteImagePDF(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	out, err := ImagePDF(dir, name, img)
	require.NoError(t, err, "import image into PDF")
	return out
}

// ImagePDF is WriteImagePDF for callers without a *testing.T.
func ImagePDF(dir, name string, img image.Image) (string, error) {
	pngPath := filepath.Join(dir, strings.TrimSuffix(name, filepath.Ext(name))+".png")
	if err := EnsureDir(filepath.Dir(pngPath)); err != nil {
		return "", err
	}
	f, err := os.Create(pngPath) //nolint:gosec // G304: test file creation with controlled path
	if err != nil {
		return "", err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("encode png: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	out := filepath.Join(dir, name)
	api.DisableConfigDir()
	if err := api.ImportImagesFile([]string{pngPath}, out, pdfcpu.DefaultImportConfig(), nil); err != nil {
		return "", err
	}
	return out, os.Remove(pngPath)
}

// TextPDF builds a minimal one-page PDF whose text layer holds lines
// (Helvetica, WinAnsi, ASCII only) and no images.
func TextPDF(lines []string) []byte {
	var content bytes.Buffer
	content.WriteString("BT\n/F1 14 Tf\n")
	y := 800
	for _, line := range lines {
		fmt.Fprintf(&content, "1 0 0 1 50 %d Tm\n(%s) Tj\n", y, escapePDFString(line))
		y -= 24
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] " +
			"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// WriteTextPDF writes TextPDF(lines) below dir.
func WriteTextPDF(t *testing.T, dir, name string, lines []string) string {
	t.Helper()
	return WriteFile(t, dir, name, TextPDF(lines))
}

func escapePDFString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
