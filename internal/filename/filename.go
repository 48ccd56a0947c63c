// Package filename mines vendor, date and amount hints from a document's
// file name when OCR left them empty.
package filename

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/dictionary"
	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// MaxAmount is the largest amount accepted from a file name.
const MaxAmount = 1_000_000

var (
	reDottedDate  = regexp.MustCompile(`(20\d{2})[,.](\d{1,2})[,.](\d{1,2})`)
	reLeadingMMDD = regexp.MustCompile(`^(\d{2})(\d{2})`)
	reCompactDate = regexp.MustCompile(`(?:^|_)(\d{4})(\d{2})(\d{2})(?:_|$)`)
	reTrailingYen = regexp.MustCompile(`[_\- ](\d{3,7})$`)
)

// Fallback is immutable and safe for concurrent use.
type Fallback struct {
	vendors []dictionary.VendorEntry
}

// New builds a fallback from the dictionary's file name vendors.
func New(dict *dictionary.Dictionary) *Fallback {
	fb := &Fallback{}
	if dict != nil {
		fb.vendors = dict.FilenameVendors
	}
	return fb
}

// Apply fills empty fields from the base name of path and reports which
// fields it filled. Fields already set are never overwritten. now supplies
// the year for MMDD prefixes.
func (fb *Fallback) Apply(path string, f document.Fields, now time.Time) (document.Fields, []string) {
	base := filepath.Base(path)
	base = norm.NFKC.String(strings.TrimSuffix(base, filepath.Ext(base)))
	var filled []string

	if f.IssueDate == "" {
		if d := fb.date(base, now); d != "" {
			f.IssueDate = d
			filled = append(filled, document.FieldIssueDate)
		}
	}
	if f.Amount == 0 {
		if m := reTrailingYen.FindStringSubmatch(base); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil && v >= document.MinAmount && v <= MaxAmount {
				f.Amount = v
				filled = append(filled, document.FieldAmount)
			}
		}
	}
	if f.VendorName == "" {
		for _, v := range fb.vendors {
			if strings.Contains(base, v.Keyword) {
				f.VendorName = v.Name
				filled = append(filled, document.FieldVendor)
				break
			}
		}
	}
	return f, filled
}

func (fb *Fallback) date(base string, now time.Time) string {
	if m := reDottedDate.FindStringSubmatch(base); m != nil {
		if d := format(m[1], m[2], m[3]); d != "" {
			return d
		}
	}
	if m := reLeadingMMDD.FindStringSubmatch(base); m != nil {
		if d := format(strconv.Itoa(now.Year()), m[1], m[2]); d != "" {
			return d
		}
	}
	if m := reCompactDate.FindStringSubmatch(base); m != nil {
		return format(m[1], m[2], m[3])
	}
	return ""
}

func format(y, m, d string) string {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	return document.FormatDate(year, month, day)
}
