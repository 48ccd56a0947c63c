package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxAnchorWalk bounds how far above the 請求書 title the issuer is searched.
const maxAnchorWalk = 5

const legalForms = `(?:株式会社|有限会社|合同会社|一般社団法人|税理士法人)`

// vendorPatterns are tried in preference order.
var vendorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^` + legalForms),
	regexp.MustCompile(`(?:` + legalForms + `|㈱|㈲)$|\((?:株|有)\)`),
	regexp.MustCompile(`(?:店|支店|営業所|本店)$`),
	regexp.MustCompile(`(?:ガス|電力|電気|水道|通信)$`),
	regexp.MustCompile(`(?:会計管理者|市役所|役場)$`),
}

var (
	reInvoiceAnchor = regexp.MustCompile(`請求書`)
	reAddressee     = regexp.MustCompile(`御中|様|殿|〒|\d{3}-\d{4}`)
	reDocumentTitle = regexp.MustCompile(`領収書|領収証|請求書|御請求|ご請求|レシート|見積書|納品書`)
	reMoney         = regexp.MustCompile(`[¥\\]|\d円`)
	reVendorTail    = regexp.MustCompile(`\s*(?:(?i:TEL|FAX)|電話|登録番号|T\d{13}).*$`)
)

// vendorCutset is trimmed from both ends of a vendor candidate.
const vendorCutset = " \t:：、。,.・-「」『』【】"

// Vendor runs the issuer cascade: lines above the 請求書 title, then the
// first legal-form line from the top, then the keyword dictionary.
func (e *Extractor) Vendor(lines []string) string {
	for i, l := range lines {
		if !reInvoiceAnchor.MatchString(l) {
			continue
		}
		var above []string
		for j := i - 1; j >= 0 && j >= i-maxAnchorWalk; j-- {
			above = append(above, lines[j])
		}
		if v := e.byLegalForm(above); v != "" {
			return v
		}
		break
	}
	if v := e.byLegalForm(lines); v != "" {
		return v
	}
	return e.byKeyword(lines)
}

// byLegalForm returns the first cleaned line matching the most preferred
// pattern that matches anything.
func (e *Extractor) byLegalForm(lines []string) string {
	cleaned := make([]string, len(lines))
	for i, l := range lines {
		cleaned[i] = e.vendorCandidate(l)
	}
	for _, re := range vendorPatterns {
		for _, c := range cleaned {
			if c != "" && re.MatchString(c) {
				return c
			}
		}
	}
	return ""
}

// vendorCandidate cleans a line and returns "" when it cannot name the issuer.
func (e *Extractor) vendorCandidate(l string) string {
	c := strings.Trim(reVendorTail.ReplaceAllString(l, ""), vendorCutset)
	if reAddressee.MatchString(c) || reDocumentTitle.MatchString(c) || reMoney.MatchString(c) {
		return ""
	}
	if e.amountAny.MatchString(c) || utf8.RuneCountInString(c) < 2 {
		return ""
	}
	if e.selfDeny != nil && e.selfDeny.MatchString(c) {
		return ""
	}
	return c
}

func (e *Extractor) byKeyword(lines []string) string {
	for _, l := range lines {
		for _, v := range e.vendors {
			if !strings.Contains(l, v.Keyword) {
				continue
			}
			if e.selfDeny != nil && e.selfDeny.MatchString(v.Name) {
				continue
			}
			return v.Name
		}
	}
	return ""
}
