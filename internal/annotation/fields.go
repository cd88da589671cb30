package annotation

import (
	"fmt"

	"github.com/JingePHA/eval-ui/internal/models"
)

// NotAvailable is the value given to indicators missing from the source data.
const NotAvailable = "NA"

// IndicatorOrder is the fixed display order of the known pathology indicators. Names are case-sensitive.
var IndicatorOrder = []string{
	"Diagnosis",
	"Degree of Differentiation",
	"Tumor Size",
	"Tumor Depth",
	"Extent of Disease",
	"Aggressive Growth Pattern",
	"Perineural Invasion",
	"Lymphatic or Vascular Invasion",
	"Margins",
	"Lymph Nodes",
	"Distant Metastasis",
	"T",
	"N",
	"M",
	"Treatment Effect",
}

// FieldMap holds one comment per indicator, in a fixed order.
type FieldMap struct {
	order   []string
	entries map[string]*models.IndicatorAnnotation
}

// LoadFields merges freshly fetched values with comments from the previous snapshot.
// A comment embedded in a fresh value is ignored: comments only come from previous.
func LoadFields(order []string, fresh map[string]models.FieldValue, previous models.IndicatorSnapshot) *FieldMap {
	m := &FieldMap{
		order:   make([]string, 0, len(order)),
		entries: make(map[string]*models.IndicatorAnnotation, len(order)),
	}
	for _, name := range order {
		if _, dup := m.entries[name]; dup {
			continue
		}
		m.order = append(m.order, name)
		value := NotAvailable
		if v, ok := fresh[name]; ok && v.Value != "" {
			value = v.Value
		}
		comment := ""
		if prev, ok := previous[name]; ok {
			comment = prev.Comment
		}
		m.entries[name] = &models.IndicatorAnnotation{Indicator: name, OriginalValue: value, Comment: comment}
	}
	return m
}

// SetComment replaces the comment for name.
func (m *FieldMap) SetComment(name, comment string) error {
	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
	e.Comment = comment
	return nil
}

// Comment returns the current comment for name.
func (m *FieldMap) Comment(name string) (string, bool) {
	e, ok := m.entries[name]
	if !ok {
		return "", false
	}
	return e.Comment, true
}

// Annotations returns the indicators in display order.
func (m *FieldMap) Annotations() []models.IndicatorAnnotation {
	out := make([]models.IndicatorAnnotation, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, *m.entries[name])
	}
	return out
}

// ToSnapshot returns the persisted form. Every ordered name is present.
func (m *FieldMap) ToSnapshot() models.IndicatorSnapshot {
	snap := make(models.IndicatorSnapshot, len(m.order))
	for _, name := range m.order {
		e := m.entries[name]
		snap[name] = models.IndicatorEntry{Value: e.OriginalValue, Comment: e.Comment}
	}
	return snap
}
