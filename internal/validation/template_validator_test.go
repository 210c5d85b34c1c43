package validation

import (
	"strings"
	"testing"
)

func containsLine(lines []string, fragment string) bool {
	for _, l := range lines {
		if strings.Contains(l, fragment) {
			return true
		}
	}
	return false
}

func TestValidateJSON(t *testing.T) {
	v := NewTemplateValidator([]string{"PS", "MS", "GS"})

	tests := []struct {
		name        string
		input       string
		wantValid   bool
		wantError   string
		wantWarning string
	}{
		{
			name:      "valid pages array",
			input:     `[{"blocks":[{"type":"text","props":{"x":10,"y":20,"text":"Bonjour","color":"#112233"}}]}]`,
			wantValid: true,
		},
		{
			name:      "valid document",
			input:     `{"name":"Carnet","pages":[{"bgColor":"white","blocks":[]}]}`,
			wantValid: true,
		},
		{
			name:      "broken json",
			input:     `[{"blocks":[`,
			wantError: "invalid JSON",
		},
		{
			name:      "no pages",
			input:     `[]`,
			wantError: "no pages",
		},
		{
			name:      "unknown block",
			input:     `[{"blocks":[{"type":"hologram","props":{"x":1,"y":1}}]}]`,
			wantError: "unknown block type",
		},
		{
			name:      "invalid color",
			input:     `[{"blocks":[{"type":"text","props":{"x":1,"y":1,"text":"a","color":"#12"}}]}]`,
			wantError: `invalid color "#12"`,
		},
		{
			name:      "invalid border color",
			input:     `[{"blocks":[{"type":"rect","props":{"x":1,"y":1,"width":5,"height":5,"borderColor":"nope"}}]}]`,
			wantError: `invalid borderColor "nope"`,
		},
		{
			name:      "invalid page background",
			input:     `[{"bgColor":"#zzzzzz","blocks":[]}]`,
			wantError: "invalid bgColor",
		},
		{
			name:      "table without columns",
			input:     `[{"blocks":[{"type":"table","props":{"x":1,"y":1,"cells":[[{"text":"a"}]]}}]}]`,
			wantError: "columnWidths failed required",
		},
		{
			name:      "bad alignment",
			input:     `[{"blocks":[{"type":"text","props":{"x":1,"y":1,"text":"a","align":"justify"}}]}]`,
			wantError: "align failed oneof",
		},
		{
			name:      "duplicate block id",
			input:     `[{"blocks":[{"type":"dropdown","props":{"x":1,"y":1,"blockId":"d1"}}]},{"blocks":[{"type":"dropdown","props":{"x":1,"y":1,"blockId":"d1"}}]}]`,
			wantError: `duplicate blockId "d1"`,
		},
		{
			name:        "flow block",
			input:       `[{"blocks":[{"type":"text","props":{"text":"a"}}]}]`,
			wantValid:   true,
			wantWarning: "placed by document flow",
		},
		{
			name:        "unknown level",
			input:       `[{"blocks":[{"type":"text","props":{"x":1,"y":1,"text":"a","levels":["ms","CP"]}}]}]`,
			wantValid:   true,
			wantWarning: `unknown level "CP"`,
		},
		{
			name:        "all pages excluded",
			input:       `[{"excludeFromPdf":true,"blocks":[]}]`,
			wantValid:   true,
			wantWarning: "excluded from the PDF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, result := v.ValidateJSON([]byte(tt.input))
			if result.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (errors: %v)", result.Valid, tt.wantValid, result.Errors)
			}
			if tt.wantError != "" && !containsLine(result.Errors, tt.wantError) {
				t.Errorf("errors %v do not mention %q", result.Errors, tt.wantError)
			}
			if tt.wantWarning != "" && !containsLine(result.Warnings, tt.wantWarning) {
				t.Errorf("warnings %v do not mention %q", result.Warnings, tt.wantWarning)
			}
			if result.Message == "" {
				t.Error("message should be set")
			}
		})
	}
}

func TestValidateJSONReturnsLayout(t *testing.T) {
	v := NewTemplateValidator(nil)
	l, result := v.ValidateJSON([]byte(`{"name":"Carnet","pages":[{"blocks":[]},{"blocks":[]}]}`))
	if !result.Valid {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if l == nil || l.Name != "Carnet" || len(l.Pages) != 2 {
		t.Errorf("layout = %+v", l)
	}
}
