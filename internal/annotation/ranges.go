package annotation

import (
	"fmt"

	"github.com/JingePHA/eval-ui/internal/models"
)

// RangeSet holds the span annotations of one transcript. Overlapping spans are allowed
// until Commit resolves them.
type RangeSet struct {
	transcript  []rune
	annotations []models.RangeAnnotation
}

// NewRangeSet creates a set over transcript seeded with previously persisted annotations.
func NewRangeSet(transcript string, existing []models.RangeAnnotation) *RangeSet {
	s := &RangeSet{transcript: []rune(transcript)}
	s.annotations = append(s.annotations, existing...)
	return s
}

// Add appends a span annotation. Offsets are not checked against the transcript length;
// when the rune at end is a space or newline the span is extended over it.
func (s *RangeSet) Add(start, end int, text, comment string) (models.RangeAnnotation, error) {
	if start < 0 || start >= end {
		return models.RangeAnnotation{}, fmt.Errorf("%w: [%d,%d)", ErrInvalidRange, start, end)
	}
	if end < len(s.transcript) && (s.transcript[end] == ' ' || s.transcript[end] == '\n') {
		end++
	}
	a := models.RangeAnnotation{Text: text, Start: start, End: end, Comment: comment}
	s.annotations = append(s.annotations, a)
	return a, nil
}

// Remove deletes every annotation whose text matches exactly and returns how many were removed.
func (s *RangeSet) Remove(text string) int {
	return s.removeWhere(func(a models.RangeAnnotation) bool { return a.Text == text })
}

// RemoveAt deletes every annotation covering exactly [start, end).
func (s *RangeSet) RemoveAt(start, end int) int {
	return s.removeWhere(func(a models.RangeAnnotation) bool { return a.Start == start && a.End == end })
}

func (s *RangeSet) removeWhere(match func(models.RangeAnnotation) bool) int {
	kept := s.annotations[:0]
	removed := 0
	for _, a := range s.annotations {
		if match(a) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.annotations = kept
	return removed
}

// SetComment updates the comment of the annotations spanning [start, end).
// Returns false when no annotation matches.
func (s *RangeSet) SetComment(start, end int, comment string) bool {
	found := false
	for i := range s.annotations {
		if s.annotations[i].Start == start && s.annotations[i].End == end {
			s.annotations[i].Comment = comment
			found = true
		}
	}
	return found
}

// Resolve returns the annotations that survive the containment rule, in insertion order.
// An annotation is dropped when another annotation covers its interval. Each annotation is
// checked once against the unresolved set; among identical intervals the first one added survives.
func (s *RangeSet) Resolve() []models.RangeAnnotation {
	out := make([]models.RangeAnnotation, 0, len(s.annotations))
	for i, b := range s.annotations {
		dropped := false
		for j, a := range s.annotations {
			if i == j || !a.Contains(b) {
				continue
			}
			if a.SameSpan(b) && j > i {
				continue
			}
			dropped = true
			break
		}
		if !dropped {
			out = append(out, b)
		}
	}
	return out
}

// Commit resolves the set and keeps only the surviving annotations.
func (s *RangeSet) Commit() []models.RangeAnnotation {
	resolved := s.Resolve()
	s.annotations = append(s.annotations[:0:0], resolved...)
	return resolved
}

// Annotations returns a copy of the current, unresolved annotations.
func (s *RangeSet) Annotations() []models.RangeAnnotation {
	return append([]models.RangeAnnotation{}, s.annotations...)
}

// Len returns the number of unresolved annotations.
func (s *RangeSet) Len() int {
	return len(s.annotations)
}
