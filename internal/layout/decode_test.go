package layout

import (
	"encoding/json"
	"testing"
)

const samplePages = `[
  {
    "title": "Carnet",
    "bgColor": "#fff8e7",
    "blocks": [
      {"type": "text", "props": {"x": 10, "y": 20, "text": "Bonjour {student.firstName}", "fontSize": 14}},
      {"type": "table", "props": {"x": 0, "y": 100, "columnWidths": [200, 100], "cells": [[{"text": "Lecture"}, {"text": "A"}]], "expandedRows": true}},
      {"type": "signature_box", "props": {"x": 500, "y": 900, "width": 200, "height": 80}},
      {"type": "hologram", "props": {"x": 1}}
    ]
  },
  {"excludeFromPdf": true, "blocks": []}
]`

func TestParseDecodesVariants(t *testing.T) {
	l, err := Parse("Livret PS", []byte(samplePages))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(l.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(l.Pages))
	}

	blocks := l.Pages[0].Blocks
	text, ok := blocks[0].Props.(*TextProps)
	if !ok {
		t.Fatalf("block 0 props = %T, want *TextProps", blocks[0].Props)
	}
	if text.Text != "Bonjour {student.firstName}" || blocks[0].Common.FontSize != 14 {
		t.Errorf("text block decoded as %+v / %+v", text, blocks[0].Common)
	}

	table, ok := blocks[1].Props.(*TableProps)
	if !ok {
		t.Fatalf("block 1 props = %T, want *TableProps", blocks[1].Props)
	}
	if table.ExpandedRowHeight != 34 || table.ExpandedToggleStyle != "v2" {
		t.Errorf("table defaults not applied: %+v", table)
	}
	if len(table.RowHeights) != 1 {
		t.Errorf("row heights = %v, want one defaulted row", table.RowHeights)
	}

	sig := blocks[2].Props.(*SignatureBoxProps)
	if sig.Type != "standard" {
		t.Errorf("signature box type = %q, want standard", sig.Type)
	}

	if blocks[3].Known() {
		t.Error("unsupported block type should decode as unknown")
	}

	if got := l.RenderedPages(); len(got) != 1 || got[0] != 0 {
		t.Errorf("RenderedPages() = %v, want [0]", got)
	}
}

func TestCommonPositioned(t *testing.T) {
	tests := []struct {
		name  string
		props string
		want  bool
	}{
		{"no coordinates", `{}`, false},
		{"x only", `{"x": 5}`, false},
		{"y only", `{"y": 5}`, false},
		{"zero coordinates", `{"x": 0, "y": 0}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b Block
			if err := json.Unmarshal([]byte(`{"type":"text","props":`+tt.props+`}`), &b); err != nil {
				t.Fatal(err)
			}
			if got := b.Common.Positioned(); got != tt.want {
				t.Errorf("Positioned() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBlockMarshalPreservesProps(t *testing.T) {
	in := `{"type":"image","props":{"url":"data:image/png;base64,AA==","x":1,"customFlag":true}}`
	var b Block
	if err := json.Unmarshal([]byte(in), &b); err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["props"]["customFlag"] != true {
		t.Errorf("unmodelled prop lost: %s", out)
	}
}

func TestBlockMissingType(t *testing.T) {
	var b Block
	if err := json.Unmarshal([]byte(`{"props":{}}`), &b); err == nil {
		t.Error("expected an error for a block without type")
	}
}
