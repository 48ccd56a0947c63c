package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bubbleberry247/PDF-RakuRaku-Seisan-sub000/internal/document"
)

// fieldProperties describes the document fields in both response schemas.
func fieldProperties() map[string]any {
	return map[string]any{
		"vendor_name": map[string]any{"type": "string"},
		"issue_date": map[string]any{
			"type":    "string",
			"pattern": `^(\d{8})?$`,
		},
		"amount":         map[string]any{"type": "integer", "minimum": 0},
		"invoice_number": map[string]any{"type": "string", "pattern": `^(T\d{13})?$`},
		"document_type": map[string]any{
			"type": "string",
			"enum": []string{string(document.TypeReceipt), string(document.TypeInvoice)},
		},
		"description": map[string]any{"type": "string", "maxLength": document.MaxDescriptionRunes},
	}
}

// CandidateSchema is the JSON schema of a Validate response.
func CandidateSchema() map[string]any {
	props := fieldProperties()
	props["confidence"] = map[string]any{"type": "number", "minimum": 0, "maximum": 1}
	props["reasoning"] = map[string]any{"type": "string"}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"vendor_name", "issue_date", "amount", "document_type", "confidence"},
		"properties":           props,
	}
}

// ReconcileSchema is the JSON schema of a Reconcile response.
func ReconcileSchema() map[string]any {
	props := fieldProperties()
	props["reasons"] = map[string]any{
		"type":                 "object",
		"additionalProperties": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"vendor_name", "issue_date", "amount", "document_type"},
		"properties":           props,
	}
}

// ValidateJSON validates data against schemaMap.
func ValidateJSON(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

var (
	reDateSep    = regexp.MustCompile(`^(\d{4})[-/.年](\d{1,2})[-/.月](\d{1,2})日?$`)
	reInvoiceSep = regexp.MustCompile(`[\s\-]`)
)

// SanitizeOptionalFields normalizes near-miss values the model commonly
// returns and drops optional fields that still do not fit the schema. It
// returns the cleaned document and the names of dropped fields.
func SanitizeOptionalFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}
	var dropped []string

	if v, ok := m["issue_date"].(string); ok {
		s := strings.TrimSpace(v)
		if g := reDateSep.FindStringSubmatch(s); g != nil {
			y, _ := strconv.Atoi(g[1])
			mo, _ := strconv.Atoi(g[2])
			d, _ := strconv.Atoi(g[3])
			s = document.FormatDate(y, mo, d)
		}
		m["issue_date"] = s
	}
	if v, ok := m["issue_date"]; ok && v == nil {
		m["issue_date"] = ""
	}

	switch v := m["amount"].(type) {
	case nil:
		m["amount"] = 0
	case float64:
		m["amount"] = int(v)
	case string:
		s := strings.NewReplacer(",", "", "¥", "", "円", "", " ", "").Replace(v)
		n, err := strconv.Atoi(s)
		if err != nil {
			n = 0
		}
		m["amount"] = n
	}

	if v, ok := m["invoice_number"]; ok {
		s, isStr := v.(string)
		s = strings.ToUpper(reInvoiceSep.ReplaceAllString(strings.TrimSpace(s), ""))
		if !isStr || (s != "" && !document.ValidInvoiceNumber(s)) {
			delete(m, "invoice_number")
			dropped = append(dropped, "invoice_number")
		} else {
			m["invoice_number"] = s
		}
	}

	if v, ok := m["description"]; ok {
		s, isStr := v.(string)
		if !isStr {
			delete(m, "description")
			dropped = append(dropped, "description")
		} else if utf8.RuneCountInString(s) > document.MaxDescriptionRunes {
			m["description"] = document.CleanDescription(s)
		}
	}

	for _, k := range []string{"reasoning", "reasons"} {
		if v, ok := m[k]; ok && v == nil {
			delete(m, k)
			dropped = append(dropped, k)
		}
	}

	if v, ok := m["confidence"].(float64); ok {
		m["confidence"] = document.Clamp01(v)
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return out, dropped, nil
}
