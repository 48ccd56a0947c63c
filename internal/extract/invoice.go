package extract

import (
	"regexp"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

const invoiceLabels = `(?:登録番号|事業者番号|適格請求書発行事業者|インボイス|適格)`

// Thirteen digits with optional spaces or hyphens between them.
const thirteenDigits = `((?:\d[ \-]*){12}\d)`

var invoicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[TＴ][ \-]*` + thirteenDigits),
	regexp.MustCompile(invoiceLabels + `[^\dTＴ]{0,12}?[TＴ]?[ \-]*` + thirteenDigits),
	// A leading 1, 7 or I misread for T directly after a label.
	regexp.MustCompile(invoiceLabels + `[ :：\-]*[17I]` + thirteenDigits),
}

// InvoiceNumber returns the first validated qualified-invoice registration
// number, as T plus 13 digits.
func (e *Extractor) InvoiceNumber(lines []string) string {
	for _, re := range invoicePatterns {
		for _, l := range lines {
			for _, m := range re.FindAllStringSubmatchIndex(l, -1) {
				if followedByDigit(l, m[1]) {
					continue
				}
				digits := strings.NewReplacer(" ", "", "-", "").Replace(l[m[2]:m[3]])
				if n := "T" + digits; document.ValidInvoiceNumber(n) {
					return n
				}
			}
		}
	}
	return ""
}

func followedByDigit(s string, end int) bool {
	return end < len(s) && s[end] >= '0' && s[end] <= '9'
}
