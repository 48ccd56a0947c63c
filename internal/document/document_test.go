package document

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidInvoiceNumber(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"T8010001140514", true},
		{"T5000020232106", true},
		{"T0010001140514", false},
		{"T801000114051", false},
		{"T80100011405145", false},
		{"8010001140514", false},
		{"t8010001140514", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidInvoiceNumber(tt.in))
		})
	}
}

func TestValidIssueDate(t *testing.T) {
	assert.True(t, ValidIssueDate("20260109"))
	assert.True(t, ValidIssueDate("20240229"))
	assert.False(t, ValidIssueDate("20250229"))
	assert.False(t, ValidIssueDate("19991231"))
	assert.False(t, ValidIssueDate("21010101"))
	assert.False(t, ValidIssueDate("2026019"))
	assert.False(t, ValidIssueDate("2026-1-9"))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "20260109", FormatDate(2026, 1, 9))
	assert.Equal(t, "", FormatDate(2026, 2, 30))
	assert.Equal(t, "", FormatDate(1999, 1, 1))
	assert.Equal(t, "", FormatDate(2026, 13, 1))
}

func TestFinalize_DerivesSuccessAndSanitizes(t *testing.T) {
	r := NewResult()
	r.InvoiceNumber = "T8010001008346"
	r.Amount = 50
	r.IssueDate = "20261340"
	r.Confidence = 1.7
	r.MarkSource(FieldAmount, SourceOCR)
	r.Finalize()

	assert.False(t, r.Success)
	assert.Equal(t, 0, r.Amount)
	assert.Empty(t, r.IssueDate)
	assert.Equal(t, "T8010001008346", r.InvoiceNumber)
	assert.InDelta(t, 1.0, r.Confidence, 1e-9)
	assert.NotContains(t, r.FieldSources, FieldAmount)

	r.VendorName = "刈谷市会計管理者"
	r.Finalize()
	assert.True(t, r.Success)
}

func TestCleanDescription(t *testing.T) {
	long := strings.Repeat("駐", 150)
	assert.Equal(t, 100, len([]rune(CleanDescription(long))))
	assert.Equal(t, "駐車料金", CleanDescription("\x00駐車料金\t"))
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("acquire: %w", Inputf("open", "file %q is empty", "a.pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInput))
	assert.False(t, errors.Is(err, ErrQueue))
	assert.Equal(t, ErrInput, KindOf(err))
	assert.Equal(t, `input_error:open: file "a.pdf" is empty`, Describe(err))

	wrapped := fmt.Errorf("write: %w", ErrQueue)
	assert.Equal(t, "queue_error:write: queue_error", Describe(wrapped))
	assert.Equal(t, "", Describe(nil))
}

func TestFinalize_Invariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	tNumber := regexp.MustCompile(`^T\d{13}$`)

	properties.Property("finalized results satisfy every field invariant", prop.ForAll(
		func(vendor string, amount int, y, m, d int, inv string, conf float64) bool {
			r := NewResult()
			r.VendorName = vendor
			r.Amount = amount
			r.IssueDate = fmt.Sprintf("%04d%02d%02d", y, m, d)
			r.InvoiceNumber = inv
			r.Confidence = conf
			r.Finalize()

			if r.InvoiceNumber != "" && !tNumber.MatchString(r.InvoiceNumber) {
				return false
			}
			if r.IssueDate != "" && !ValidIssueDate(r.IssueDate) {
				return false
			}
			if r.Amount > 0 && (r.Amount < MinAmount || r.Amount > MaxAmount) {
				return false
			}
			if r.Amount < 0 || r.Confidence < 0 || r.Confidence > 1 {
				return false
			}
			return r.Success == (r.VendorName != "" || r.Amount > 0)
		},
		gen.AlphaString(),
		gen.IntRange(-1000, 20_000_000),
		gen.IntRange(1990, 2110),
		gen.IntRange(0, 13),
		gen.IntRange(0, 32),
		gen.OneConstOf("", "T8010001140514", "T123", "X8010001140514", "T0000000000000"),
		gen.Float64Range(-2, 2),
	))

	properties.TestingRun(t)
}
