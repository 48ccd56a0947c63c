package extract

import (
	"regexp"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

var (
	reInvoiceType = regexp.MustCompile(`請求書|御請求|ご請求|(?i:invoice)`)
	reReceiptType = regexp.MustCompile(`領収書|領収証|レシート|(?i:receipt)`)
)

// DocumentType classifies text; receipts win when both markers appear.
func DocumentType(text string) document.DocumentType {
	switch {
	case reReceiptType.MatchString(text):
		return document.TypeReceipt
	case reInvoiceType.MatchString(text):
		return document.TypeInvoice
	default:
		return document.TypeReceipt
	}
}

var descriptionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`但し?\s*[:：]?\s*(.+?)\s*(?:として|$)`),
	regexp.MustCompile(`品名\s*[:：]\s*(.+)`),
	regexp.MustCompile(`摘要\s*[:：]\s*(.+)`),
	regexp.MustCompile(`内容\s*[:：]\s*(.+)`),
}

// Description returns the 但し書き or item label, cleaned and capped.
func Description(lines []string) string {
	for _, re := range descriptionPatterns {
		for _, l := range lines {
			m := re.FindStringSubmatch(l)
			if m == nil {
				continue
			}
			if d := document.CleanDescription(strings.Trim(m[1], " 　:：")); d != "" {
				return d
			}
		}
	}
	return ""
}
