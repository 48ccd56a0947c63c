package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// reiwaOffset converts a Reiwa year to the Gregorian year.
const reiwaOffset = 2018

var (
	reDateLabel = regexp.MustCompile(`請求日|発行日|利用日|購入日|取引日|日付|発行`)
	// Words holding 発行 that name the issuer, not a date.
	issuerWords = strings.NewReplacer("発行事業者", "", "発行元", "")
	reWestern   = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	reReiwa     = regexp.MustCompile(`令和\s*(元|\d{1,2})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	reSeparated = regexp.MustCompile(`(?:^|\D)(\d{4})\s*[-/.]\s*(\d{1,2})\s*[-/.]\s*(\d{1,2})(?:\D|$)`)
	reShortYear = regexp.MustCompile(`(?:^|\D)(?:[Il1|])?(\d{2})\s*年\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	reReiwaAbbr = regexp.MustCompile(`(?:^|[^A-Za-z])R\s*0?(\d{1,2})\s*[/.]\s*(\d{1,2})\s*[/.]\s*(\d{1,2})(?:\D|$)`)
)

// dateRule turns one regexp match into a YYYYMMDD string or "".
type dateRule func(m []string) string

// Date runs the date cascade on lines that are not phone or fax lines and
// returns the first calendar-valid result as YYYYMMDD.
func (e *Extractor) Date(lines []string) string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if !isPhoneLine(l) {
			kept = append(kept, l)
		}
	}

	western := func(m []string) string { return ymd(m[1], m[2], m[3], 0) }
	floored := func(m []string) string {
		if y, _ := strconv.Atoi(m[1]); y < e.yearFloor {
			return ""
		}
		return western(m)
	}

	if d := labeledDate(kept, western); d != "" {
		return d
	}
	rules := []struct {
		re   *regexp.Regexp
		conv dateRule
	}{
		{reReiwa, reiwa},
		{reWestern, floored},
		{reSeparated, floored},
		{reShortYear, shortYear},
		{reReiwaAbbr, func(m []string) string { return ymd(m[1], m[2], m[3], reiwaOffset) }},
	}
	for _, r := range rules {
		if d := firstDate(kept, r.re, r.conv); d != "" {
			return d
		}
	}
	return ""
}

// labeledDate looks for a western date on a label line or the two lines
// after it. Labeled dates skip the year floor.
func labeledDate(lines []string, conv dateRule) string {
	for i, l := range lines {
		if !isDateLabel(l) {
			continue
		}
		window := lines[i:min(i+3, len(lines))]
		for _, re := range []*regexp.Regexp{reWestern, reSeparated} {
			if d := firstDate(window, re, conv); d != "" {
				return d
			}
		}
	}
	return ""
}

func isDateLabel(l string) bool {
	return reDateLabel.MatchString(issuerWords.Replace(l))
}

func firstDate(lines []string, re *regexp.Regexp, conv dateRule) string {
	for _, l := range lines {
		for _, m := range re.FindAllStringSubmatch(l, -1) {
			if d := conv(m); d != "" {
				return d
			}
		}
	}
	return ""
}

func reiwa(m []string) string {
	year := m[1]
	if year == "元" {
		year = "1"
	}
	return ymd(year, m[2], m[3], reiwaOffset)
}

// shortYear reads NN年: 1..20 as Reiwa, anything else as 2000+NN.
func shortYear(m []string) string {
	n, _ := strconv.Atoi(m[1])
	if n >= 1 && n <= 20 {
		return ymd(m[1], m[2], m[3], reiwaOffset)
	}
	return ymd(m[1], m[2], m[3], 2000)
}

func ymd(y, m, d string, offset int) string {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return ""
	}
	return document.FormatDate(year+offset, month, day)
}
