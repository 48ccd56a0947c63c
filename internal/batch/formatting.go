package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// FormatResults renders the items as json, csv or text.
func (r *Result) FormatResults(format string) (string, error) {
	switch format {
	case "json":
		return formatJSON(r.Items)
	case "csv":
		return formatCSV(r.Items)
	case "text", "":
		return formatText(r.Items), nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveResults writes the formatted results to outputFile, or to w when
// outputFile is empty.
func (r *Result) SaveResults(format, outputFile string, w io.Writer) error {
	output, err := r.FormatResults(format)
	if err != nil {
		return fmt.Errorf("failed to format results: %w", err)
	}
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(output), 0o600); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		return nil
	}
	_, err = io.WriteString(w, output)
	return err
}

// PrintStats writes processing statistics to w.
func (r *Result) PrintStats(w io.Writer) {
	s := r.Stats()
	_, _ = fmt.Fprintf(w, "\nProcessing Statistics:\n")
	_, _ = fmt.Fprintf(w, "  Documents: %d\n", s.Total)
	_, _ = fmt.Fprintf(w, "  Extracted: %d\n", s.Succeeded)
	_, _ = fmt.Fprintf(w, "  No primary fields: %d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "  Errors: %d\n", s.Errors)
	_, _ = fmt.Fprintf(w, "  Mean confidence: %.2f\n", s.MeanConfidence)
	_, _ = fmt.Fprintf(w, "  Workers: %d\n", r.Workers)
	_, _ = fmt.Fprintf(w, "  Duration: %v\n", s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Avg per document: %v\n", s.PerDocument.Round(time.Millisecond))
}

func formatJSON(items []Item) (string, error) {
	out := struct {
		Documents []Item `json:"documents"`
	}{Documents: items}
	if out.Documents == nil {
		out.Documents = []Item{}
	}
	bts, err := json.MarshalIndent(out, "", "  ")
	return string(bts), err
}

var csvHeader = []string{
	"file", "vendor_name", "issue_date", "amount", "invoice_number",
	"document_type", "confidence", "success", "source", "error",
}

func formatCSV(items []Item) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)
	if err := writer.Write(csvHeader); err != nil {
		return "", err
	}
	for _, it := range items {
		row := []string{it.File, "", "", "", "", "", "", "", "", it.Error}
		if res := it.Result; res != nil {
			row[1] = res.VendorName
			row[2] = res.IssueDate
			row[3] = strconv.Itoa(res.Amount)
			row[4] = res.InvoiceNumber
			row[5] = string(res.DocumentType)
			row[6] = fmt.Sprintf("%.2f", res.Confidence)
			row[7] = strconv.FormatBool(res.Success)
			row[8] = res.Source
			if row[9] == "" {
				row[9] = res.Error
			}
		}
		if err := writer.Write(row); err != nil {
			return "", err
		}
	}
	writer.Flush()
	return output.String(), writer.Error()
}

func formatText(items []Item) string {
	var output strings.Builder
	for i, it := range items {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString(fmt.Sprintf("# %s\n", it.File))
		res := it.Result
		if res == nil {
			output.WriteString(fmt.Sprintf("error: %s\n", it.Error))
			continue
		}
		output.WriteString(fmt.Sprintf("vendor:     %s\n", res.VendorName))
		output.WriteString(fmt.Sprintf("date:       %s\n", res.IssueDate))
		output.WriteString(fmt.Sprintf("amount:     %d\n", res.Amount))
		output.WriteString(fmt.Sprintf("invoice:    %s\n", res.InvoiceNumber))
		output.WriteString(fmt.Sprintf("type:       %s\n", res.DocumentType))
		output.WriteString(fmt.Sprintf("confidence: %.2f\n", res.Confidence))
		if res.Error != "" {
			output.WriteString(fmt.Sprintf("error:      %s\n", res.Error))
		}
	}
	return output.String()
}
