package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Mode selects which annotation kind a snapshot carries.
type Mode string

const (
	// ModeIndicator persists per-field comments.
	ModeIndicator Mode = "indicator"
	// ModeRange persists transcript span comments.
	ModeRange Mode = "range"
)

// ParseMode returns the Mode named by s.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeIndicator, ModeRange:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown annotation mode %q", s)
}

// RangeAnnotation is a comment attached to the half-open rune interval [Start, End) of a transcript.
// Start and End identify the annotation; Text is the covered substring, kept for display.
type RangeAnnotation struct {
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Comment string `json:"comment"`
}

// Contains reports whether a's interval covers b's.
func (a RangeAnnotation) Contains(b RangeAnnotation) bool {
	return a.Start <= b.Start && a.End >= b.End
}

// SameSpan reports whether a and b cover the identical interval.
func (a RangeAnnotation) SameSpan(b RangeAnnotation) bool {
	return a.Start == b.Start && a.End == b.End
}

// IndicatorAnnotation is a reviewer comment on one structured field.
type IndicatorAnnotation struct {
	Indicator     string `json:"indicator"`
	OriginalValue string `json:"original_value"`
	Comment       string `json:"comment"`
}

// IndicatorEntry is the persisted form of one indicator.
type IndicatorEntry struct {
	Value   string `json:"value"`
	Comment string `json:"comment"`
}

// IndicatorSnapshot maps indicator name to its persisted entry.
type IndicatorSnapshot map[string]IndicatorEntry

// FieldValue is one value returned by the field extraction service.
// It decodes from a bare JSON scalar or from an object carrying "value" and "comment"
// (a previously saved entry fed back as source data).
type FieldValue struct {
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// UnmarshalJSON accepts strings, numbers, booleans, null, and {"value","comment"} objects.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = FieldValue{}
		return nil
	}
	switch data[0] {
	case '{':
		var obj struct {
			Value   json.RawMessage `json:"value"`
			Comment string          `json:"comment"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("field object: %w", err)
		}
		var inner FieldValue
		if len(obj.Value) > 0 {
			if err := inner.UnmarshalJSON(obj.Value); err != nil {
				return err
			}
		}
		*v = FieldValue{Value: inner.Value, Comment: obj.Comment}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = FieldValue{Value: s}
		return nil
	case '[':
		return fmt.Errorf("field value cannot be an array")
	}
	var scalar interface{}
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	switch t := scalar.(type) {
	case float64:
		*v = FieldValue{Value: strconv.FormatFloat(t, 'f', -1, 64)}
	case bool:
		*v = FieldValue{Value: strconv.FormatBool(t)}
	default:
		*v = FieldValue{Value: fmt.Sprint(t)}
	}
	return nil
}
