package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

type amountFamily struct {
	priority int
	re       *regexp.Regexp
}

// Candidate is one amount found in the text.
type Candidate struct {
	Priority int
	Value    int
	Line     int
}

var (
	reNumber    = regexp.MustCompile(`\d{1,3}(?:[,.]\d{3})+|\d+`)
	reBareYen   = regexp.MustCompile(`[¥\\]\s*(\d{1,3}(?:[,.]\d{3})+|\d+)`)
	reBareEn    = regexp.MustCompile(`(\d{1,3}(?:[,.]\d{3})+|\d+)\s*円`)
	reMarked    = regexp.MustCompile(`[¥\\]\s*(\d{1,3}(?:[,.]\d{3})+|\d+)|(\d{1,3}(?:[,.]\d{3})+|\d+)\s*円`)
	reNumPrefix = regexp.MustCompile(`(?i)(?:No\.?|#|№|番号)\s*$`)
)

// unitSuffixes mark a number as a date part, count or time rather than yen.
const unitSuffixes = "年月日点個枚件名時分秒:：%％"


// Amount picks the billed total: the highest-priority label family with any
// candidate wins, and within it the largest value.
func (e *Extractor) Amount(lines []string) int {
	cands := e.AmountCandidates(lines)
	best := Candidate{}
	for _, c := range cands {
		if c.Priority > best.Priority || (c.Priority == best.Priority && c.Value > best.Value) {
			best = c
		}
	}
	if best.Value > 0 {
		slog.Debug("amount selected", "value", best.Value, "priority", best.Priority, "candidates", len(cands))
	}
	return best.Value
}

// AmountCandidates lists every in-range amount with its label priority.
func (e *Extractor) AmountCandidates(lines []string) []Candidate {
	var out []Candidate
	add := func(priority, value, line int) {
		out = append(out, Candidate{Priority: priority, Value: value, Line: line})
	}
	for i, l := range lines {
		if e.excludedAmountLine(l) {
			continue
		}
		for _, fam := range e.families {
			for _, m := range fam.re.FindAllStringIndex(l, -1) {
				if titleSuffix(l, m[1]) {
					continue
				}
				if v, ok := labeledAmount(l[m[1]:]); ok {
					add(fam.priority, v, i)
					continue
				}
				// A label alone on its line owns the next line's value.
				if i+1 < len(lines) && !e.excludedAmountLine(lines[i+1]) && !e.amountAny.MatchString(lines[i+1]) {
					if v, ok := labeledAmount(lines[i+1]); ok {
						add(fam.priority, v, i+1)
					}
				}
			}
		}
		for _, m := range reBareYen.FindAllStringSubmatch(l, -1) {
			if v, ok := ParseAmount(m[1]); ok {
				add(e.bareYen, v, i)
			}
		}
		for _, m := range reBareEn.FindAllStringSubmatch(l, -1) {
			if v, ok := ParseAmount(m[1]); ok {
				add(e.bareEn, v, i)
			}
		}
	}
	return out
}

// excludedAmountLine reports tendered or returned cash lines and phone lines.
func (e *Extractor) excludedAmountLine(l string) bool {
	if isPhoneLine(l) {
		return true
	}
	for _, x := range e.exclusions {
		if strings.Contains(l, x) {
			return true
		}
	}
	return false
}

// titleSuffix reports a label match that is really part of a document title
// such as 領収書 or 請求書.
func titleSuffix(l string, end int) bool {
	r, _ := utf8.DecodeRuneInString(l[end:])
	return r == '書' || r == '証'
}

// labeledAmount reads the value owned by a label from the text after it. A
// number marked with ¥ or 円 wins; otherwise the first number that is not a
// date part, count, time or document number.
func labeledAmount(s string) (int, bool) {
	if marked := reMarked.FindAllStringSubmatch(s, -1); len(marked) > 0 {
		for _, m := range marked {
			num := m[1]
			if num == "" {
				num = m[2]
			}
			if v, ok := ParseAmount(num); ok {
				return v, true
			}
		}
		return 0, false
	}
	for _, loc := range reNumber.FindAllStringIndex(s, -1) {
		if !plainAmountContext(s, loc[0], loc[1]) {
			continue
		}
		if v, ok := ParseAmount(s[loc[0]:loc[1]]); ok {
			return v, true
		}
	}
	return 0, false
}

func plainAmountContext(s string, start, end int) bool {
	if reNumPrefix.MatchString(s[:start]) {
		return false
	}
	rest := strings.TrimLeft(s[end:], " ")
	r, _ := utf8.DecodeRuneInString(rest)
	return !strings.ContainsRune(unitSuffixes, r)
}

// ParseAmount strips separators and currency marks and accepts integers in
// the admissible yen range.
func ParseAmount(s string) (int, bool) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ',', '.', ' ', '¥', '\\', '円', '-':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || !document.AmountInRange(v) {
		return 0, false
	}
	return v, true
}
