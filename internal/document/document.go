// Package document defines the extraction record shared by every pipeline stage.
package document

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// DocumentType classifies the scanned document.
type DocumentType string

const (
	TypeReceipt DocumentType = "領収書"
	TypeInvoice DocumentType = "請求書"
)

// Amount bounds in yen. A positive amount outside this range is an OCR misread.
const (
	MinAmount = 100
	MaxAmount = 10_000_000
)

// Issue date bounds.
const (
	MinYear = 2000
	MaxYear = 2100
)

// MaxDescriptionRunes caps the description length.
const MaxDescriptionRunes = 100

// Field producers recorded in ExtractionResult.FieldSources.
const (
	SourceOCR       = "ocr"
	SourceTextLayer = "text_layer"
	SourceFilename  = "filename"
	SourceLLM       = "llm"
)

// Field names used for per-field bookkeeping.
const (
	FieldVendor        = "vendor_name"
	FieldIssueDate     = "issue_date"
	FieldAmount        = "amount"
	FieldInvoiceNumber = "invoice_number"
	FieldDocumentType  = "document_type"
	FieldDescription   = "description"
)

var invoiceNumberRe = regexp.MustCompile(`^T[1-9]\d{12}$`)

// Fields is the scalar subset of an extraction.
type Fields struct {
	VendorName    string       `json:"vendor_name"`
	IssueDate     string       `json:"issue_date"`
	Amount        int          `json:"amount"`
	InvoiceNumber string       `json:"invoice_number"`
	DocumentType  DocumentType `json:"document_type"`
	Description   string       `json:"description"`
}

// HasPrimary reports whether vendor or amount is present.
func (f Fields) HasPrimary() bool {
	return f.VendorName != "" || f.Amount > 0
}

// Empty reports whether no scalar field has been filled.
func (f Fields) Empty() bool {
	return f.VendorName == "" && f.IssueDate == "" && f.Amount == 0 &&
		f.InvoiceNumber == "" && f.Description == ""
}

// Sanitize blanks every field that violates its invariant and applies the
// document type default.
func (f Fields) Sanitize() Fields {
	f.VendorName = strings.TrimSpace(f.VendorName)
	if f.IssueDate != "" && !ValidIssueDate(f.IssueDate) {
		f.IssueDate = ""
	}
	if f.Amount < 0 || (f.Amount > 0 && !AmountInRange(f.Amount)) {
		f.Amount = 0
	}
	if f.InvoiceNumber != "" && !ValidInvoiceNumber(f.InvoiceNumber) {
		f.InvoiceNumber = ""
	}
	if f.DocumentType != TypeReceipt && f.DocumentType != TypeInvoice {
		f.DocumentType = TypeReceipt
	}
	f.Description = CleanDescription(f.Description)
	return f
}

// PreprocessInfo records which image corrections were applied.
type PreprocessInfo struct {
	Rotated       bool    `json:"rotated"`
	RotationAngle int     `json:"rotation_angle"`
	Deskewed      bool    `json:"deskewed"`
	SkewAngle     float64 `json:"skew_angle"`
	ShadowRemoved bool    `json:"shadow_removed"`
	Enhanced      bool    `json:"enhanced"`
}

// ExtractionResult is the pipeline's output for one PDF.
type ExtractionResult struct {
	VendorName    string            `json:"vendor_name"`
	IssueDate     string            `json:"issue_date"`
	Amount        int               `json:"amount"`
	InvoiceNumber string            `json:"invoice_number"`
	DocumentType  DocumentType      `json:"document_type"`
	Description   string            `json:"description"`
	RawText       string            `json:"raw_text"`
	Confidence    float64           `json:"confidence"`
	Success       bool              `json:"success"`
	Error         string            `json:"error"`
	Source        string            `json:"source,omitempty"`
	FieldSources  map[string]string `json:"field_sources,omitempty"`
	Preprocess    *PreprocessInfo   `json:"preprocess,omitempty"`
}

// NewResult returns an empty result with the default document type.
func NewResult() *ExtractionResult {
	return &ExtractionResult{DocumentType: TypeReceipt}
}

// Fields returns the scalar fields of the result.
func (r *ExtractionResult) Fields() Fields {
	return Fields{
		VendorName:    r.VendorName,
		IssueDate:     r.IssueDate,
		Amount:        r.Amount,
		InvoiceNumber: r.InvoiceNumber,
		DocumentType:  r.DocumentType,
		Description:   r.Description,
	}
}

// Apply copies f into the result without touching FieldSources.
func (r *ExtractionResult) Apply(f Fields) {
	r.VendorName = f.VendorName
	r.IssueDate = f.IssueDate
	r.Amount = f.Amount
	r.InvoiceNumber = f.InvoiceNumber
	r.DocumentType = f.DocumentType
	r.Description = f.Description
}

// SetFields copies f into the result and tags every non-empty field with source.
func (r *ExtractionResult) SetFields(f Fields, source string) {
	r.Apply(f)
	for name, filled := range filledFields(f) {
		if filled {
			r.MarkSource(name, source)
		}
	}
}

// MarkSource records which stage produced a field.
func (r *ExtractionResult) MarkSource(field, source string) {
	if r.FieldSources == nil {
		r.FieldSources = make(map[string]string)
	}
	r.FieldSources[field] = source
}

// Finalize enforces the result invariants: out-of-range fields are blanked,
// confidence is clamped and Success is derived from the primary fields.
func (r *ExtractionResult) Finalize() {
	f := r.Fields().Sanitize()
	r.Apply(f)
	r.Confidence = Clamp01(r.Confidence)
	r.Success = f.HasPrimary()
	for name, filled := range filledFields(f) {
		if !filled && r.FieldSources != nil {
			delete(r.FieldSources, name)
		}
	}
}

func filledFields(f Fields) map[string]bool {
	return map[string]bool{
		FieldVendor:        f.VendorName != "",
		FieldIssueDate:     f.IssueDate != "",
		FieldAmount:        f.Amount > 0,
		FieldInvoiceNumber: f.InvoiceNumber != "",
		FieldDescription:   f.Description != "",
	}
}

// ValidInvoiceNumber reports whether s is "T" followed by 13 digits with a
// non-zero leading digit.
func ValidInvoiceNumber(s string) bool {
	return invoiceNumberRe.MatchString(s)
}

// ValidIssueDate reports whether s is a calendar-valid YYYYMMDD date within
// the admissible year range.
func ValidIssueDate(s string) bool {
	if len(s) != 8 {
		return false
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return false
	}
	return t.Year() >= MinYear && t.Year() <= MaxYear
}

// FormatDate renders y/m/d as YYYYMMDD, or "" when the date is not
// calendar-valid or outside the admissible range.
func FormatDate(year, month, day int) string {
	if year < MinYear || year > MaxYear || month < 1 || month > 12 || day < 1 {
		return ""
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return ""
	}
	return t.Format("20060102")
}

// AmountInRange reports whether a yen amount lies within the accepted bounds.
func AmountInRange(amount int) bool {
	return amount >= MinAmount && amount <= MaxAmount
}

// CleanDescription strips control characters and caps the rune length.
func CleanDescription(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxDescriptionRunes {
		s = string([]rune(s)[:MaxDescriptionRunes])
	}
	return s
}

// Clamp01 clamps v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
