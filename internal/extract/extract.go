// Package extract pulls expense fields out of normalized receipt and invoice
// text with ordered rule cascades.
package extract

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/dictionary"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/ocr"
)

// DefaultYearFloor is the minimum year for unlabeled dates.
const DefaultYearFloor = 2026

// Options configures an Extractor.
type Options struct {
	// YearFloor is the minimum admissible year for unlabeled date patterns.
	YearFloor int
	// SelfDenyVendor matches the payer's own company name; such lines are
	// never picked as vendor. Empty disables the filter.
	SelfDenyVendor string
	// LineNormalizer is applied to lines rebuilt from detections.
	LineNormalizer func(string) string
}

// Extractor is immutable after New and safe for concurrent use.
type Extractor struct {
	yearFloor int
	selfDeny  *regexp.Regexp
	normLine  func(string) string

	families   []amountFamily
	bareYen    int
	bareEn     int
	exclusions []string
	vendors    []dictionary.VendorEntry
	amountAny  *regexp.Regexp
}

// New compiles the dictionary patterns and the self-deny expression.
func New(dict *dictionary.Dictionary, opts Options) (*Extractor, error) {
	if dict == nil {
		return nil, fmt.Errorf("extract: dictionary is required")
	}
	e := &Extractor{
		yearFloor:  opts.YearFloor,
		normLine:   opts.LineNormalizer,
		bareYen:    dict.BareYenPriority,
		bareEn:     dict.BareEnPriority,
		exclusions: dict.AmountExclusions,
		vendors:    dict.Vendors,
	}
	if e.yearFloor == 0 {
		e.yearFloor = DefaultYearFloor
	}
	if opts.SelfDenyVendor != "" {
		re, err := regexp.Compile(opts.SelfDenyVendor)
		if err != nil {
			return nil, fmt.Errorf("extract: self-deny vendor regex: %w", err)
		}
		e.selfDeny = re
	}
	var all []string
	for _, fam := range dict.AmountPriorities {
		re, err := regexp.Compile("(?:" + strings.Join(fam.Patterns, "|") + ")")
		if err != nil {
			return nil, fmt.Errorf("extract: amount family %d: %w", fam.Priority, err)
		}
		e.families = append(e.families, amountFamily{priority: fam.Priority, re: re})
		all = append(all, fam.Patterns...)
	}
	e.amountAny = regexp.MustCompile("(?:" + strings.Join(all, "|") + ")")
	return e, nil
}

// Extract returns the fields found in text. When detections are given,
// their reading-order lines are searched for any field the text missed.
func (e *Extractor) Extract(text string, detections []ocr.Detection) document.Fields {
	lines := SplitLines(text)
	var alt []string
	if len(detections) > 0 {
		for _, l := range ocr.GroupLines(detections) {
			t := l.Text
			if e.normLine != nil {
				t = e.normLine(t)
			}
			alt = append(alt, SplitLines(t)...)
		}
	}

	f := document.Fields{
		InvoiceNumber: e.InvoiceNumber(lines),
		Amount:        e.Amount(lines),
		IssueDate:     e.Date(lines),
		VendorName:    e.Vendor(lines),
		DocumentType:  DocumentType(text),
		Description:   Description(lines),
	}
	if len(alt) > 0 {
		if f.InvoiceNumber == "" {
			f.InvoiceNumber = e.InvoiceNumber(alt)
		}
		if f.Amount == 0 {
			f.Amount = e.Amount(alt)
		}
		if f.IssueDate == "" {
			f.IssueDate = e.Date(alt)
		}
		if f.VendorName == "" {
			f.VendorName = e.Vendor(alt)
		}
		if f.Description == "" {
			f.Description = Description(alt)
		}
	}
	slog.Debug("fields extracted",
		"vendor", f.VendorName, "date", f.IssueDate, "amount", f.Amount,
		"invoice_number", f.InvoiceNumber, "type", string(f.DocumentType))
	return f
}

// SplitLines splits text into trimmed non-empty lines.
func SplitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

var rePhoneLine = regexp.MustCompile(`(?i)TEL|FAX|電話`)

func isPhoneLine(l string) bool { return rePhoneLine.MatchString(l) }
