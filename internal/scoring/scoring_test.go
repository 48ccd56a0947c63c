package scoring

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		fields document.Fields
		want   float64
	}{
		{"empty", document.Fields{}, 0},
		{"everything", document.Fields{
			VendorName: "刈谷市会計管理者", IssueDate: "20260109", Amount: 3400, InvoiceNumber: "T5000020232106",
		}, 1.0},
		{"amount only", document.Fields{Amount: 1500}, 0.45},
		{"amount out of range", document.Fields{Amount: 50}, 0.30},
		{"vendor and date", document.Fields{VendorName: "株式会社サンプル", IssueDate: "20260115"}, 0.40},
		{"single rune vendor", document.Fields{VendorName: "店"}, 0},
		{"invalid date", document.Fields{IssueDate: "20260230"}, 0},
		{"invoice number only", document.Fields{InvoiceNumber: "T8010001008346"}, 0.15},
		{"bad invoice number", document.Fields{InvoiceNumber: "T801000100834"}, 0},
		{"filename scenario", document.Fields{VendorName: "名鉄協商株式会社", IssueDate: "20260109", Amount: 400}, 0.85},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.fields), 1e-9)
		})
	}
}

func TestBreakdownMissing(t *testing.T) {
	b := Explain(document.Fields{InvoiceNumber: "T8010001008346"})
	assert.Equal(t, []string{ReasonNoVendor, ReasonNoAmount, ReasonNoDate}, b.Missing())

	b = Explain(document.Fields{VendorName: "株式会社サンプル", Amount: 1000, IssueDate: "20260101"})
	assert.Empty(t, b.Missing())
}

func TestDecide(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		conf      float64
		validator bool
		want      Route
	}{
		{0.0, false, RouteQueue},
		{0.49, true, RouteQueue},
		{0.50, false, RouteAccept},
		{0.50, true, RouteValidate},
		{0.74, true, RouteValidate},
		{0.75, true, RouteAccept},
		{1.0, false, RouteAccept},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.conf, th, tt.validator), "conf=%v validator=%v", tt.conf, tt.validator)
	}
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{Accept: 1.2, Queue: 0.5}.Validate())
	assert.Error(t, Thresholds{Accept: 0.5, Queue: -0.1}.Validate())
	assert.Error(t, Thresholds{Accept: 0.4, Queue: 0.6}.Validate())
}

func TestScoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("score stays in [0,1]", prop.ForAll(
		func(vendor, date, inv string, amount int) bool {
			s := Score(document.Fields{VendorName: vendor, IssueDate: date, InvoiceNumber: inv, Amount: amount})
			return s >= 0 && s <= 1
		},
		gen.AnyString(), gen.NumString(), gen.AlphaNumString(), gen.Int(),
	))

	properties.Property("adding a valid amount never lowers the score", prop.ForAll(
		func(vendor string, amount int) bool {
			base := document.Fields{VendorName: vendor}
			with := base
			with.Amount = amount
			return Score(with) >= Score(base)
		},
		gen.AnyString(), gen.IntRange(document.MinAmount, document.MaxAmount),
	))

	properties.TestingRun(t)
}
