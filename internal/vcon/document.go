// Package vcon enriches vCon documents with WTF transcription analysis.
package vcon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a vCon. Only dialog and analysis are modelled; every other
// top-level key is kept as raw JSON and written back unchanged.
// A Document is never mutated after decoding, so copies may share state.
type Document struct {
	fields    map[string]json.RawMessage
	hasDialog bool

	Dialog   []Dialog
	Analysis []json.RawMessage
}

// Dialog is one element of a vCon dialog array. The element's original
// JSON is retained and re-emitted as is.
type Dialog struct {
	Type      string
	MediaType string
	Body      string
	Encoding  string

	raw json.RawMessage
}

// New builds a document from dialog entries and existing analysis.
func New(dialog []Dialog, analysis []json.RawMessage) *Document {
	return &Document{
		fields:    map[string]json.RawMessage{},
		hasDialog: dialog != nil,
		Dialog:    dialog,
		Analysis:  analysis,
	}
}

// Parse decodes a vCon from JSON.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// HasDialog reports whether the document carried a dialog key.
func (d *Document) HasDialog() bool { return d.hasDialog }

// UUID returns the vCon's uuid field, or "" when absent.
func (d *Document) UUID() string {
	raw, ok := d.fields["uuid"]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// WithAnalysis returns a shallow copy of d whose analysis is replaced.
func (d *Document) WithAnalysis(analysis []json.RawMessage) *Document {
	cp := *d
	cp.Analysis = analysis
	return &cp
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("vcon: document must be a JSON object")
	}

	if raw, ok := fields["dialog"]; ok {
		delete(fields, "dialog")
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &d.Dialog); err != nil {
				return fmt.Errorf("vcon: dialog: %w", err)
			}
			if d.Dialog == nil {
				d.Dialog = []Dialog{}
			}
			d.hasDialog = true
		}
	}
	if raw, ok := fields["analysis"]; ok {
		delete(fields, "analysis")
		if !isNull(raw) {
			if err := json.Unmarshal(raw, &d.Analysis); err != nil {
				return fmt.Errorf("vcon: analysis: %w", err)
			}
		}
	}
	d.fields = fields
	return nil
}

// MarshalJSON writes the passthrough fields, dialog when the input had
// one, and analysis always as an array.
func (d *Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.fields)+2)
	for k, v := range d.fields {
		out[k] = v
	}
	if d.hasDialog {
		dialog := d.Dialog
		if dialog == nil {
			dialog = []Dialog{}
		}
		raw, err := json.Marshal(dialog)
		if err != nil {
			return nil, err
		}
		out["dialog"] = raw
	}
	analysis := d.Analysis
	if analysis == nil {
		analysis = []json.RawMessage{}
	}
	raw, err := json.Marshal(analysis)
	if err != nil {
		return nil, err
	}
	out["analysis"] = raw
	return json.Marshal(out)
}

func (dl *Dialog) UnmarshalJSON(data []byte) error {
	dl.raw = append(json.RawMessage(nil), data...)

	var fields map[string]json.RawMessage
	if json.Unmarshal(data, &fields) != nil {
		// Not an object: kept verbatim, never eligible.
		return nil
	}
	dl.Type = stringField(fields, "type")
	dl.MediaType = stringField(fields, "mediatype")
	dl.Body = stringField(fields, "body")
	dl.Encoding = stringField(fields, "encoding")
	return nil
}

func (dl Dialog) MarshalJSON() ([]byte, error) {
	if dl.raw != nil {
		return dl.raw, nil
	}
	out := map[string]string{}
	for k, v := range map[string]string{
		"type":      dl.Type,
		"mediatype": dl.MediaType,
		"body":      dl.Body,
		"encoding":  dl.Encoding,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// stringField reads a string-valued key; other JSON types read as absent.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
