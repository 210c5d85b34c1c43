// Package layout holds the template document model: pages of positioned
// blocks expressed in an 800x1120 design space.
package layout

import (
	"encoding/json"
	"fmt"
)

const (
	DesignWidth  = 800.0
	DesignHeight = 1120.0
)

// Layout is one version of a template's page layout.
type Layout struct {
	Name      string            `json:"name"`
	Pages     []Page            `json:"pages"`
	Variables map[string]string `json:"variables,omitempty"`
	Watermark string            `json:"watermark,omitempty"`
}

// Page is rendered to exactly one output page unless ExcludeFromPdf is set.
type Page struct {
	Title          string  `json:"title,omitempty"`
	BgColor        string  `json:"bgColor,omitempty"`
	ExcludeFromPdf bool    `json:"excludeFromPdf,omitempty"`
	Blocks         []Block `json:"blocks"`
}

// LanguageItem is one entry of a language toggle strip.
type LanguageItem struct {
	Code   string   `json:"code"`
	Label  string   `json:"label,omitempty"`
	Emoji  string   `json:"emoji,omitempty"`
	Logo   string   `json:"logo,omitempty"`
	Active bool     `json:"active"`
	Levels []string `json:"levels,omitempty"`
}

// Parse decodes a layout from the JSON pages array (the shape stored with a
// template) plus its name.
func Parse(name string, pages []byte) (*Layout, error) {
	l := &Layout{Name: name}
	if len(pages) == 0 {
		return l, nil
	}
	if err := json.Unmarshal(pages, &l.Pages); err != nil {
		return nil, fmt.Errorf("failed to decode template pages: %w", err)
	}
	return l, nil
}

// ParseDocument decodes a full `{name, pages, variables, watermark}` document.
func ParseDocument(data []byte) (*Layout, error) {
	var l Layout
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	return &l, nil
}

// RenderedPages returns the pages that produce output, with their original indices.
func (l *Layout) RenderedPages() []int {
	var idx []int
	for i, p := range l.Pages {
		if !p.ExcludeFromPdf {
			idx = append(idx, i)
		}
	}
	return idx
}
