// Package registry holds the ordered list of documents under review and the current position.
package registry

import (
	"errors"
	"fmt"

	"github.com/JingePHA/eval-ui/internal/models"
)

// ErrOutOfRange is returned when a position is outside [0, Len()).
var ErrOutOfRange = errors.New("position out of range")

// Registry is an ordered sequence of unique document ids plus a current position.
// It is not safe for concurrent use; the navigation controller serializes access.
type Registry struct {
	ids      []models.DocumentID
	index    map[models.DocumentID]int
	position int
	viewed   map[models.DocumentID]bool
}

// New creates a registry positioned at the first document. Repeated ids are dropped.
func New(ids []models.DocumentID) *Registry {
	r := &Registry{
		index:  make(map[models.DocumentID]int, len(ids)),
		viewed: make(map[models.DocumentID]bool),
	}
	r.Append(ids...)
	if len(r.ids) > 0 {
		r.viewed[r.ids[0]] = true
	}
	return r
}

// Append adds ids not yet known to the end of the registry and returns how many were added.
// The position does not move.
func (r *Registry) Append(ids ...models.DocumentID) int {
	added := 0
	for _, id := range ids {
		if _, ok := r.index[id]; ok {
			continue
		}
		r.index[id] = len(r.ids)
		r.ids = append(r.ids, id)
		added++
	}
	if added > 0 && len(r.ids) == added {
		r.viewed[r.ids[0]] = true
	}
	return added
}

// Len returns the number of documents.
func (r *Registry) Len() int {
	return len(r.ids)
}

// Position returns the current index. It is 0 for an empty registry.
func (r *Registry) Position() int {
	return r.position
}

// Current returns the document at the current position.
func (r *Registry) Current() (models.DocumentID, bool) {
	return r.At(r.position)
}

// At returns the document at index i.
func (r *Registry) At(i int) (models.DocumentID, bool) {
	if i < 0 || i >= len(r.ids) {
		return "", false
	}
	return r.ids[i], true
}

// IndexOf returns the position of id, or -1.
func (r *Registry) IndexOf(id models.DocumentID) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

// IDs returns a copy of the ordered ids.
func (r *Registry) IDs() []models.DocumentID {
	return append([]models.DocumentID(nil), r.ids...)
}

// SetPosition moves to index i and marks that document viewed.
func (r *Registry) SetPosition(i int) error {
	if i < 0 || i >= len(r.ids) {
		return fmt.Errorf("%w: %d (have %d documents)", ErrOutOfRange, i, len(r.ids))
	}
	r.position = i
	r.viewed[r.ids[i]] = true
	return nil
}

// Status returns the review status of the document at index i.
func (r *Registry) Status(i int) models.DocumentStatus {
	switch {
	case i == r.position && i < len(r.ids):
		return models.StatusCurrent
	case i >= 0 && i < len(r.ids) && r.viewed[r.ids[i]]:
		return models.StatusViewed
	}
	return models.StatusUnviewed
}

// Entries returns the listing of all documents with their statuses.
func (r *Registry) Entries() []models.DocumentEntry {
	out := make([]models.DocumentEntry, 0, len(r.ids))
	for i, id := range r.ids {
		out = append(out, models.DocumentEntry{ID: id, Position: i, Status: r.Status(i)})
	}
	return out
}

// Progress returns the one-based position over the total, e.g. "3 / 17".
func (r *Registry) Progress() string {
	if len(r.ids) == 0 {
		return "0 / 0"
	}
	return fmt.Sprintf("%d / %d", r.position+1, len(r.ids))
}
