// Package llm implements the optional second-opinion validator: a vision
// language model re-reads the page image and its answer is merged with the
// regex extraction under the same field invariants.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// Validator error codes. They double as queue failure reasons.
const (
	CodeUnavailable = "validator_unavailable"
	CodeParseError  = "validator_parse_error"
	CodeTimeout     = "validator_timeout"
)

// Validator re-reads a document with a language model.
type Validator interface {
	// Validate extracts fields from the page image, with the OCR text as a hint.
	Validate(ctx context.Context, image []byte, ocrText string) (*Candidate, error)
	// Reconcile resolves disagreements between the regex and model readings.
	Reconcile(ctx context.Context, image []byte, regex, llm document.Fields) (*Reconciled, error)
}

// Candidate is the model's reading of a document.
type Candidate struct {
	document.Fields
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Reconciled is the model's verdict on conflicting fields, with a reason per
// field it decided.
type Reconciled struct {
	document.Fields
	Reasons map[string]string `json:"reasons,omitempty"`
}

// ValidatorError is a structured validator failure. It matches
// document.ErrValidator under errors.Is.
type ValidatorError struct {
	Code string
	Err  error
}

func (e *ValidatorError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *ValidatorError) Unwrap() error { return e.Err }

// Is matches document.ErrValidator.
func (e *ValidatorError) Is(target error) bool {
	return target == document.ErrValidator
}

// CodeOf returns the validator error code carried by err, or
// CodeUnavailable for any other error.
func CodeOf(err error) string {
	var ve *ValidatorError
	if errors.As(err, &ve) {
		return ve.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnavailable
}

func newError(code string, format string, args ...any) *ValidatorError {
	return &ValidatorError{Code: code, Err: fmt.Errorf(format, args...)}
}

// MergeResult is the outcome of combining a regex extraction with a
// model candidate.
type MergeResult struct {
	Fields document.Fields
	// Taken lists the fields whose value came from the model.
	Taken []string
	// Reasons holds the reconciliation reason per field, when reconciliation ran.
	Reasons map[string]string
}

// Merge combines regex and candidate fields. When a scalar field disagrees the
// validator is asked to reconcile; otherwise the candidate only fills empty
// fields. Model values are accepted only if they satisfy the field invariants.
// On a reconciliation error the regex fields are returned unchanged together
// with the error.
func Merge(ctx context.Context, v Validator, image []byte, regex document.Fields, cand *Candidate) (*MergeResult, error) {
	out := &MergeResult{Fields: regex}
	if cand == nil {
		return out, nil
	}
	if conflicts := Conflicts(regex, cand.Fields); len(conflicts) > 0 {
		rec, err := v.Reconcile(ctx, image, regex, cand.Fields)
		if err != nil {
			return out, err
		}
		out.Reasons = rec.Reasons
		out.Fields, out.Taken = apply(regex, rec.Fields, true)
		return out, nil
	}
	out.Fields, out.Taken = apply(regex, cand.Fields, false)
	return out, nil
}

// Conflicts lists the scalar fields that both readings filled with
// different values.
func Conflicts(regex, llm document.Fields) []string {
	var out []string
	if regex.VendorName != "" && llm.VendorName != "" && normVendor(regex.VendorName) != normVendor(llm.VendorName) {
		out = append(out, document.FieldVendor)
	}
	if regex.IssueDate != "" && llm.IssueDate != "" && regex.IssueDate != llm.IssueDate {
		out = append(out, document.FieldIssueDate)
	}
	if regex.Amount > 0 && llm.Amount > 0 && regex.Amount != llm.Amount {
		out = append(out, document.FieldAmount)
	}
	if regex.InvoiceNumber != "" && llm.InvoiceNumber != "" && regex.InvoiceNumber != llm.InvoiceNumber {
		out = append(out, document.FieldInvoiceNumber)
	}
	return out
}

func normVendor(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// apply takes model values that pass the field guards. With replace unset
// only empty regex fields are filled.
func apply(regex, llm document.Fields, replace bool) (document.Fields, []string) {
	out := regex
	var taken []string
	take := func(name string, empty, differs, valid bool, set func()) {
		if !valid || !differs || (!empty && !replace) {
			return
		}
		set()
		taken = append(taken, name)
	}

	vendor := strings.TrimSpace(llm.VendorName)
	take(document.FieldVendor, regex.VendorName == "", normVendor(vendor) != normVendor(regex.VendorName),
		len([]rune(vendor)) >= 2, func() { out.VendorName = vendor })
	take(document.FieldIssueDate, regex.IssueDate == "", llm.IssueDate != regex.IssueDate,
		document.ValidIssueDate(llm.IssueDate), func() { out.IssueDate = llm.IssueDate })
	take(document.FieldAmount, regex.Amount == 0, llm.Amount != regex.Amount,
		document.AmountInRange(llm.Amount), func() { out.Amount = llm.Amount })
	take(document.FieldInvoiceNumber, regex.InvoiceNumber == "", llm.InvoiceNumber != regex.InvoiceNumber,
		document.ValidInvoiceNumber(llm.InvoiceNumber), func() { out.InvoiceNumber = llm.InvoiceNumber })
	desc := document.CleanDescription(llm.Description)
	take(document.FieldDescription, regex.Description == "", desc != regex.Description,
		desc != "", func() { out.Description = desc })
	if replace && (llm.DocumentType == document.TypeInvoice || llm.DocumentType == document.TypeReceipt) &&
		llm.DocumentType != regex.DocumentType {
		out.DocumentType = llm.DocumentType
		taken = append(taken, document.FieldDocumentType)
	}
	return out, taken
}
