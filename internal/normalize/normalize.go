// Package normalize cleans raw OCR output before field extraction.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/dictionary"
)

// DefaultYearFloor is the year shift target when Options.YearFloor is unset.
const DefaultYearFloor = 2026

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reMultiSpace = regexp.MustCompile(`[ \t]{2,}`)
	reBoxNoise   = regexp.MustCompile(`^[_\-=~*.]{3,}$`)
	reYear       = regexp.MustCompile(`(\d{4})年`)
)

// narrowSymbols are folded to their half-width forms.
const narrowSymbols = "￥，．：－"

// dashes are folded to "-" when they sit between two digits.
const dashes = "ー‐−–—―ｰ"

// digitConfusions are letters OCR engines emit in place of digits.
var digitConfusions = map[rune]rune{
	'O': '0', 'o': '0',
	'l': '1', 'I': '1', '|': '1',
	'S': '5', 'B': '8',
}

// Options controls the optional steps.
type Options struct {
	// YearShiftRepair rewrites implausibly old years into the YearFloor decade.
	YearShiftRepair bool
	YearFloor       int
}

// Normalizer is safe for concurrent use.
type Normalizer struct {
	opts    Options
	compat  *strings.Replacer
	repairs []dictionary.Replacement
}

// New builds a normalizer from dictionary data.
func New(dict *dictionary.Dictionary, opts Options) *Normalizer {
	if opts.YearFloor == 0 {
		opts.YearFloor = DefaultYearFloor
	}
	n := &Normalizer{opts: opts}
	if dict != nil {
		n.compat = strings.NewReplacer(dict.CJKReplacer()...)
		n.repairs = dict.GlyphRepairs
	}
	return n
}

// Normalize applies, in order: NFKC, the CJK compatibility map, symbol
// folding, the glyph repair dictionary and the optional year shift. Line
// structure is kept; blank and rule-only lines are dropped.
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = stripInvisible(s)
	s = norm.NFKC.String(s)
	if n.compat != nil {
		s = n.compat.Replace(s)
	}
	s = foldSymbols(s)
	s = RepairDigits(s)
	s = foldDashes(s)
	for _, r := range n.repairs {
		s = strings.ReplaceAll(s, r.From, r.To)
	}
	if n.opts.YearShiftRepair {
		s = shiftYears(s, n.opts.YearFloor)
	}
	return tidyLines(s)
}

// stripInvisible drops control and format characters other than newline
// and turns tabs into spaces.
func stripInvisible(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case r == '\t':
			return ' '
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

func foldSymbols(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(narrowSymbols, r) {
			if n := width.LookupRune(r).Narrow(); n != 0 {
				return n
			}
		}
		return r
	}, s)
}

func foldDashes(s string) string {
	runes := []rune(s)
	for i := 1; i+1 < len(runes); i++ {
		if strings.ContainsRune(dashes, runes[i]) && isDigit(runes[i-1]) && isDigit(runes[i+1]) {
			runes[i] = '-'
		}
	}
	return string(runes)
}

// RepairDigits replaces letters commonly misread for digits, but only in
// numeric context. Runs of confusable letters are repaired when they sit
// between digits, or trail a digit at the end of a token. A digit may be
// reached across one of , . / -. A single confusable letter opening a token,
// or following another letter such as the T of a registration number, is
// repaired when at least three digits follow it. Words such as TOKYO or
// BS1 are left alone.
func RepairDigits(s string) string {
	runes := []rune(s)
	for i := 0; i < len(runes); {
		if !isRunRune(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && isRunRune(runes[j]) {
			j++
		}
		repairRun(runes[i:j])
		i = j
	}
	return string(runes)
}

// repairRun repeats until stable, since a repaired letter can put its
// neighbours in numeric context.
func repairRun(run []rune) {
	for changed := true; changed; {
		changed = false
		for i := 0; i < len(run); {
			if !isConfusion(run[i]) {
				i++
				continue
			}
			j := i
			for j < len(run) && isConfusion(run[j]) {
				j++
			}
			left, right := numericBefore(run, i), numericAfter(run, j)
			var repair bool
			switch {
			case left && right:
				repair = true
			case left:
				repair = j == len(run) || isSeparator(run[j])
			case right:
				opens := i == 0 || isASCIILetter(run[i-1])
				repair = opens && j-i == 1 && digitsFrom(run, j) >= 3
			}
			if repair {
				for k := i; k < j; k++ {
					run[k] = digitConfusions[run[k]]
				}
				changed = true
			}
			i = j
		}
	}
}

func isConfusion(r rune) bool {
	_, ok := digitConfusions[r]
	return ok
}

func isSeparator(r rune) bool { return strings.ContainsRune(",./-", r) }

func numericBefore(run []rune, i int) bool {
	if i == 0 {
		return false
	}
	if isDigit(run[i-1]) {
		return true
	}
	return i > 1 && isSeparator(run[i-1]) && isDigit(run[i-2])
}

func numericAfter(run []rune, j int) bool {
	if j >= len(run) {
		return false
	}
	if isDigit(run[j]) {
		return true
	}
	return j+1 < len(run) && isSeparator(run[j]) && isDigit(run[j+1])
}

// digitsFrom counts the digits from j up to the first letter.
func digitsFrom(run []rune, j int) int {
	n := 0
	for ; j < len(run) && (isDigit(run[j]) || isSeparator(run[j])); j++ {
		if isDigit(run[j]) {
			n++
		}
	}
	return n
}

func isRunRune(r rune) bool {
	return isDigit(r) || isASCIILetter(r) || strings.ContainsRune(",./-|", r)
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// shiftYears moves YYYY年 values more than a decade below floor into the
// floor's decade, keeping the last digit, when the result is not below floor.
func shiftYears(s string, floor int) string {
	return reYear.ReplaceAllStringFunc(s, func(m string) string {
		y, err := strconv.Atoi(strings.TrimSuffix(m, "年"))
		if err != nil || y < 2000 || y >= floor-10 {
			return m
		}
		shifted := floor/10*10 + y%10
		if shifted < floor {
			return m
		}
		return strconv.Itoa(shifted) + "年"
	})
}

func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.TrimSpace(reMultiSpace.ReplaceAllString(l, " "))
		if l == "" || reBoxNoise.MatchString(l) {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
