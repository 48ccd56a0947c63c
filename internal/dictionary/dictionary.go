// Package dictionary loads the editable extraction data: compatibility
// folding, OCR misread repairs, amount label priorities and vendor names.
package dictionary

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

// Replacement is an ordered string substitution.
type Replacement struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// AmountFamily groups amount label patterns sharing a priority.
type AmountFamily struct {
	Priority int      `yaml:"priority" json:"priority"`
	Patterns []string `yaml:"patterns" json:"patterns"`
}

// VendorEntry maps a short keyword to a canonical vendor name.
type VendorEntry struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	Name    string `yaml:"name" json:"name"`
}

// Dictionary is the complete data set.
type Dictionary struct {
	CJKCompat        map[string]string `yaml:"cjk_compat" json:"cjk_compat"`
	GlyphRepairs     []Replacement     `yaml:"glyph_repairs" json:"glyph_repairs"`
	AmountPriorities []AmountFamily    `yaml:"amount_priorities" json:"amount_priorities"`
	BareYenPriority  int               `yaml:"bare_yen_priority" json:"bare_yen_priority"`
	BareEnPriority   int               `yaml:"bare_en_priority" json:"bare_en_priority"`
	AmountExclusions []string          `yaml:"amount_exclusions" json:"amount_exclusions"`
	Vendors          []VendorEntry     `yaml:"vendors" json:"vendors"`
	FilenameVendors  []VendorEntry     `yaml:"filename_vendors" json:"filename_vendors"`
}

// Default returns the embedded dictionary.
func Default() (*Dictionary, error) {
	return Parse(defaultData)
}

// MustDefault is Default for package-level initialization and tests.
func MustDefault() *Dictionary {
	d, err := Default()
	if err != nil {
		panic(fmt.Sprintf("embedded dictionary: %v", err))
	}
	return d
}

// Load reads a dictionary file; an empty path selects the embedded default.
func Load(path string) (*Dictionary, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-configured dictionary path
	if err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes YAML dictionary data and validates it.
func Parse(data []byte) (*Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(d.AmountPriorities, func(i, j int) bool {
		return d.AmountPriorities[i].Priority > d.AmountPriorities[j].Priority
	})
	return &d, nil
}

// Validate checks that patterns compile and entries are well formed.
func (d *Dictionary) Validate() error {
	for from := range d.CJKCompat {
		if utf8.RuneCountInString(from) != 1 {
			return fmt.Errorf("cjk_compat key %q must be a single character", from)
		}
	}
	for i, r := range d.GlyphRepairs {
		if r.From == "" {
			return fmt.Errorf("glyph_repairs[%d]: empty from", i)
		}
	}
	for _, fam := range d.AmountPriorities {
		if fam.Priority <= 0 {
			return fmt.Errorf("amount priority must be positive, got %d", fam.Priority)
		}
		for _, p := range fam.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return fmt.Errorf("amount pattern %q: %w", p, err)
			}
		}
	}
	for _, list := range [][]VendorEntry{d.Vendors, d.FilenameVendors} {
		for i, v := range list {
			if v.Keyword == "" || v.Name == "" {
				return fmt.Errorf("vendor entry %d: keyword and name are required", i)
			}
		}
	}
	if len(d.AmountPriorities) == 0 {
		return errors.New("amount_priorities must not be empty")
	}
	return nil
}

// CJKReplacer returns the compatibility map as old/new pairs for strings.NewReplacer.
func (d *Dictionary) CJKReplacer() []string {
	keys := make([]string, 0, len(d.CJKCompat))
	for k := range d.CJKCompat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, d.CJKCompat[k])
	}
	return pairs
}
