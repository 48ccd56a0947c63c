// Package scoring turns extracted fields into an overall confidence and a
// routing decision.
package scoring

import (
	"fmt"
	"unicode/utf8"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// Signal weights.
const (
	WeightAmountPresent = 0.30
	WeightAmountInRange = 0.15
	WeightDate          = 0.20
	WeightVendor        = 0.20
	WeightInvoiceNumber = 0.15
)

// Default routing thresholds.
const (
	DefaultAcceptThreshold = 0.75
	DefaultQueueThreshold  = 0.50
)

// Failure reasons derived from missing fields.
const (
	ReasonNoVendor = "no_vendor"
	ReasonNoAmount = "no_amount"
	ReasonNoDate   = "no_date"
)

// Route is the decision taken after scoring.
type Route string

const (
	RouteAccept   Route = "accept"
	RouteValidate Route = "validate"
	RouteQueue    Route = "queue"
)

// Thresholds bound the three routing bands.
type Thresholds struct {
	Accept float64
	Queue  float64
}

// DefaultThresholds returns 0.75 / 0.50.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: DefaultAcceptThreshold, Queue: DefaultQueueThreshold}
}

// Validate checks that both thresholds lie in [0,1] and queue ≤ accept.
func (t Thresholds) Validate() error {
	if t.Accept < 0 || t.Accept > 1 || t.Queue < 0 || t.Queue > 1 {
		return fmt.Errorf("thresholds must be within [0,1], got accept=%v queue=%v", t.Accept, t.Queue)
	}
	if t.Queue > t.Accept {
		return fmt.Errorf("queue threshold %v exceeds accept threshold %v", t.Queue, t.Accept)
	}
	return nil
}

// Breakdown is the per-signal contribution to a score.
type Breakdown struct {
	AmountPresent float64 `json:"amount_present"`
	AmountInRange float64 `json:"amount_in_range"`
	Date          float64 `json:"date"`
	Vendor        float64 `json:"vendor"`
	InvoiceNumber float64 `json:"invoice_number"`
}

// Total sums the contributions, clamped to [0,1].
func (b Breakdown) Total() float64 {
	return document.Clamp01(b.AmountPresent + b.AmountInRange + b.Date + b.Vendor + b.InvoiceNumber)
}

// Missing lists the failure reasons for absent primary fields and date.
func (b Breakdown) Missing() []string {
	var out []string
	if b.Vendor == 0 {
		out = append(out, ReasonNoVendor)
	}
	if b.AmountPresent == 0 {
		out = append(out, ReasonNoAmount)
	}
	if b.Date == 0 {
		out = append(out, ReasonNoDate)
	}
	return out
}

// Explain scores each signal separately.
func Explain(f document.Fields) Breakdown {
	var b Breakdown
	if f.Amount > 0 {
		b.AmountPresent = WeightAmountPresent
	}
	if document.AmountInRange(f.Amount) {
		b.AmountInRange = WeightAmountInRange
	}
	if document.ValidIssueDate(f.IssueDate) {
		b.Date = WeightDate
	}
	if utf8.RuneCountInString(f.VendorName) >= 2 {
		b.Vendor = WeightVendor
	}
	if document.ValidInvoiceNumber(f.InvoiceNumber) {
		b.InvoiceNumber = WeightInvoiceNumber
	}
	return b
}

// Score returns the overall confidence in [0,1].
func Score(f document.Fields) float64 {
	return Explain(f).Total()
}

// Decide routes a confidence. Scores in the middle band go to the validator
// when one is enabled and are accepted otherwise.
func Decide(conf float64, t Thresholds, validatorEnabled bool) Route {
	switch {
	case conf < t.Queue:
		return RouteQueue
	case conf < t.Accept:
		if validatorEnabled {
			return RouteValidate
		}
		return RouteAccept
	default:
		return RouteAccept
	}
}
