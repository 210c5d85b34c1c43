package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gilkh/livret/internal/layout"
)

// PromotionRecord is one level change recorded on an assignment.
type PromotionRecord struct {
	From  string     `json:"from"`
	To    string     `json:"to"`
	Year  string     `json:"year"`
	Class string     `json:"class,omitempty"`
	Date  *time.Time `json:"date,omitempty"`
}

// SignatureRecord mirrors a signing event inside the assignment data.
type SignatureRecord struct {
	Type              string    `json:"type"`
	SubAdminID        string    `json:"subAdminId,omitempty"`
	SignedAt          time.Time `json:"signedAt"`
	Level             string    `json:"level,omitempty"`
	SchoolYearName    string    `json:"schoolYearName,omitempty"`
	SignaturePeriodID string    `json:"signaturePeriodId,omitempty"`
}

// AssignmentData is the typed view of an assignment's flat data object.
// Scalar answers (dropdowns, variables) live in Values, language strips in
// Toggles. Entries that fit neither are kept verbatim in Extra.
type AssignmentData struct {
	Values     map[string]string
	Toggles    map[string][]layout.LanguageItem
	Promotions []PromotionRecord
	Signatures []SignatureRecord
	Extra      map[string]json.RawMessage
}

func NewAssignmentData() *AssignmentData {
	return &AssignmentData{
		Values:  map[string]string{},
		Toggles: map[string][]layout.LanguageItem{},
		Extra:   map[string]json.RawMessage{},
	}
}

// ParseAssignmentData decodes the stored flat JSON object. Empty input
// yields empty data.
func ParseAssignmentData(raw []byte) (*AssignmentData, error) {
	d := NewAssignmentData()
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *AssignmentData) UnmarshalJSON(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("assignment data must be an object: %w", err)
	}
	if d.Values == nil {
		*d = *NewAssignmentData()
	}

	for key, value := range fields {
		trimmed := bytes.TrimSpace(value)
		switch {
		case key == "promotions":
			if err := json.Unmarshal(value, &d.Promotions); err != nil {
				return fmt.Errorf("invalid promotions: %w", err)
			}
		case key == "signatures":
			if err := json.Unmarshal(value, &d.Signatures); err != nil {
				return fmt.Errorf("invalid signatures: %w", err)
			}
		case len(trimmed) > 0 && trimmed[0] == '[':
			var items []layout.LanguageItem
			if err := json.Unmarshal(value, &items); err == nil {
				d.Toggles[key] = items
			} else {
				d.Extra[key] = value
			}
		case len(trimmed) > 0 && trimmed[0] == '"':
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			d.Values[key] = s
		case bytes.Equal(trimmed, []byte("true")) || bytes.Equal(trimmed, []byte("false")):
			d.Values[key] = string(trimmed)
		case len(trimmed) > 0 && (trimmed[0] == '-' || (trimmed[0] >= '0' && trimmed[0] <= '9')):
			if _, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
				d.Values[key] = string(trimmed)
			} else {
				d.Extra[key] = value
			}
		case bytes.Equal(trimmed, []byte("null")):
		default:
			d.Extra[key] = value
		}
	}
	return nil
}

func (d *AssignmentData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Values)+len(d.Toggles)+len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	for k, v := range d.Values {
		out[k] = v
	}
	for k, v := range d.Toggles {
		out[k] = v
	}
	if d.Promotions != nil {
		out["promotions"] = d.Promotions
	}
	if d.Signatures != nil {
		out["signatures"] = d.Signatures
	}
	return json.Marshal(out)
}

// Value returns a non-empty scalar answer.
func (d *AssignmentData) Value(key string) (string, bool) {
	v, ok := d.Values[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// Languages returns a stored language strip.
func (d *AssignmentData) Languages(key string) ([]layout.LanguageItem, bool) {
	items, ok := d.Toggles[key]
	return items, ok
}

// Apply merges a patch of raw JSON values into the data. A null value
// removes the key.
func (d *AssignmentData) Apply(patch map[string]json.RawMessage) error {
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := patch[key]
		delete(d.Values, key)
		delete(d.Toggles, key)
		delete(d.Extra, key)
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			switch key {
			case "promotions":
				d.Promotions = nil
			case "signatures":
				d.Signatures = nil
			}
			continue
		}
		single, err := json.Marshal(map[string]json.RawMessage{key: value})
		if err != nil {
			return err
		}
		if err := json.Unmarshal(single, d); err != nil {
			return err
		}
	}
	return nil
}

// Encode serialises the data for storage.
func (d *AssignmentData) Encode() ([]byte, error) {
	return json.Marshal(d)
}
