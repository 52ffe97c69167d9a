package converter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrFormatNotExported is returned when a document is asked for a format the engine did not produce.
var ErrFormatNotExported = errors.New("format not exported")

// Document is the converted result. Its internal structure belongs to the engine;
// this service only reads it through the Export methods.
type Document struct {
	Filename string          `json:"filename"`
	Formats  []Format        `json:"formats"`
	Markdown string          `json:"md_content,omitempty"`
	HTML     string          `json:"html_content,omitempty"`
	JSON     json.RawMessage `json:"json_content,omitempty"`

	// set by Converter.Convert, used for the page count fallback
	sourcePath string
}

func (d *Document) has(f Format) bool {
	for _, got := range d.Formats {
		if got == f {
			return true
		}
	}
	return false
}

func (d *Document) ExportToMarkdown() (string, error) {
	if !d.has(FormatMarkdown) {
		return "", fmt.Errorf("markdown: %w", ErrFormatNotExported)
	}
	return d.Markdown, nil
}

func (d *Document) ExportToHTML() (string, error) {
	if !d.has(FormatHTML) {
		return "", fmt.Errorf("html: %w", ErrFormatNotExported)
	}
	return d.HTML, nil
}

// ExportToDict decodes the structured document into a generic mapping.
// Numbers are kept as json.Number so they re-encode exactly as the engine wrote them.
func (d *Document) ExportToDict() (map[string]any, error) {
	if !d.has(FormatJSON) || len(d.JSON) == 0 || string(d.JSON) == "null" {
		return nil, fmt.Errorf("json: %w", ErrFormatNotExported)
	}
	var out map[string]any
	dec := json.NewDecoder(bytes.NewReader(d.JSON))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode structured document: %w", err)
	}
	return out, nil
}

// NumPages returns the page count when the document exposes one.
// It prefers the structured document's page table and falls back to reading the source PDF.
func (d *Document) NumPages() (int, bool) {
	if len(d.JSON) > 0 {
		var table struct {
			Pages map[string]json.RawMessage `json:"pages"`
		}
		if err := json.Unmarshal(d.JSON, &table); err == nil && table.Pages != nil {
			return len(table.Pages), true
		}
	}
	if d.sourcePath != "" {
		if n, err := pageCountFile(d.sourcePath); err == nil {
			return n, true
		}
	}
	return 0, false
}
