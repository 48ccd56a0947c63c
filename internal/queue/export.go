package queue

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExportSheet is the worksheet name used by ExportXLSX.
const ExportSheet = "Queue"

var exportHeaders = []string{
	"File", "Queued At", "Confidence", "Vendor", "Issue Date", "Amount",
	"Invoice Number", "Document Type", "Failure Reasons", "Error",
}

// ExportXLSX writes entries as a review workbook.
func ExportXLSX(entries []Entry, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(ExportSheet, cell, h)
	}

	for i, e := range entries {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(ExportSheet, cell, v)
		}
		r := e.PartialResult
		write(1, e.File)
		write(2, e.Timestamp.Format(time.RFC3339))
		write(3, e.Confidence)
		write(4, r.VendorName)
		write(5, r.IssueDate)
		if r.Amount > 0 {
			write(6, r.Amount)
		}
		write(7, r.InvoiceNumber)
		write(8, string(r.DocumentType))
		write(9, strings.Join(e.FailureReasons, ", "))
		write(10, r.Error)
	}

	_ = f.SetColWidth(ExportSheet, "A", "A", 40)
	_ = f.SetColWidth(ExportSheet, "B", "B", 22)
	_ = f.SetColWidth(ExportSheet, "D", "D", 30)
	_ = f.SetColWidth(ExportSheet, "G", "G", 18)
	_ = f.SetColWidth(ExportSheet, "I", "J", 36)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
