// Package extract recovers structured JSON values from free-form generative
// text: fenced blocks, conversational wrapping and truncated output.
//
// Extraction never fails. When nothing usable can be recovered the empty
// value of the requested shape is returned and the candidate is logged.
package extract

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
)

// Shape is the container the caller expects.
type Shape int

const (
	// ShapeUnknown accepts whichever container opens first.
	ShapeUnknown Shape = iota
	// ShapeList expects a JSON array.
	ShapeList
	// ShapeRecord expects a JSON object.
	ShapeRecord
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Empty returns the empty value of the shape: []any{} for lists,
// map[string]any{} for records and unknown shapes.
func (s Shape) Empty() any {
	if s == ShapeList {
		return []any{}
	}
	return map[string]any{}
}

// logPreviewLen bounds how much of a failed candidate is logged.
const logPreviewLen = 500

var (
	jsonFence    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	genericFence = regexp.MustCompile("(?s)```[^\\S\\n]*[A-Za-z0-9_+-]*\\s*(.*?)\\s*```")
)

// Extractor turns generative output into parsed JSON values.
type Extractor struct {
	Logger *slog.Logger
}

// New returns an Extractor that logs through logger (slog.Default when nil).
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{Logger: logger}
}

var defaultExtractor = New(nil)

// Extract runs the package-level extractor.
func Extract(text string, shape Shape) any { return defaultExtractor.Extract(text, shape) }

// JoinFragments concatenates multi-part responses before extraction.
func JoinFragments(parts ...string) string { return strings.Join(parts, "") }

// Extract returns the best-effort parsed value of text. The result is either
// []any, map[string]any, or for ShapeUnknown whichever the text contains.
// It is deterministic, and re-extracting the JSON encoding of a successful
// result yields an equal value.
func (e *Extractor) Extract(text string, shape Shape) any {
	if strings.TrimSpace(text) == "" {
		e.logger().Warn("empty text for structured extraction")
		return shape.Empty()
	}

	candidate := locate(text, shape)
	if candidate == "" {
		e.logger().Error("could not locate structured data in response", "shape", shape.String())
		return shape.Empty()
	}

	if v, ok := parseStrict(candidate, shape); ok {
		return v
	}

	for _, repaired := range repairs(candidate, shape) {
		if v, ok := parseStrict(repaired, shape); ok {
			e.logger().Debug("recovered structured data after repair", "shape", shape.String())
			return v
		}
	}

	e.logger().Error("failed to parse structured data after repair",
		"shape", shape.String(),
		"candidate", preview(candidate))
	return shape.Empty()
}

// ExtractList extracts a list. A lone object is wrapped into a one-element list.
func (e *Extractor) ExtractList(text string) []any {
	switch v := e.Extract(text, ShapeList).(type) {
	case []any:
		return v
	case map[string]any:
		if len(v) == 0 {
			return []any{}
		}
		return []any{v}
	default:
		return []any{}
	}
}

// ExtractRecord extracts a single object.
func (e *Extractor) ExtractRecord(text string) map[string]any {
	if v, ok := e.Extract(text, ShapeRecord).(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func (e *Extractor) logger() *slog.Logger {
	if e == nil || e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// locate picks the candidate substring: a ```json fence, then any fence,
// then a bracket-delimited slice of the raw text.
func locate(text string, shape Shape) string {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}

	open, close := openerFor(text, shape)
	if open == 0 {
		return strings.TrimSpace(text)
	}
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if end > start {
		return strings.TrimSpace(text[start : end+1])
	}
	// No closer after the opener: the output was truncated.
	return strings.TrimSpace(text[start:])
}

// openerFor returns the opening and closing bracket to scan for. For an
// unknown shape it is whichever opener appears first.
func openerFor(text string, shape Shape) (byte, byte) {
	switch shape {
	case ShapeList:
		if strings.IndexByte(text, '[') >= 0 {
			return '[', ']'
		}
	case ShapeRecord:
		if strings.IndexByte(text, '{') >= 0 {
			return '{', '}'
		}
	default:
		list := strings.IndexByte(text, '[')
		rec := strings.IndexByte(text, '{')
		switch {
		case list >= 0 && (rec < 0 || list < rec):
			return '[', ']'
		case rec >= 0:
			return '{', '}'
		}
	}
	return 0, 0
}

// parseStrict decodes candidate and checks it against shape.
func parseStrict(candidate string, shape Shape) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(candidate), &v); err != nil {
		return nil, false
	}
	switch t := v.(type) {
	case []any:
		if shape == ShapeRecord {
			return nil, false
		}
		return t, true
	case map[string]any:
		if shape == ShapeList {
			// A single object where a list was expected is still usable.
			return []any{t}, true
		}
		return t, true
	default:
		return nil, false
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= logPreviewLen {
		return s
	}
	return string(r[:logPreviewLen]) + "..."
}
