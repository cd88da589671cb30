package navigation

import (
	"github.com/JingePHA/eval-ui/internal/annotation"
	"github.com/JingePHA/eval-ui/internal/models"
)

// liveDocument is the one document whose annotations are being edited.
type liveDocument struct {
	id                  models.DocumentID
	transcript          string
	transcriptAvailable bool
	fieldsAvailable     bool
	fields              *annotation.FieldMap
	ranges              *annotation.RangeSet
	// unread holds the modes whose stored snapshot could not be read. Those modes are not
	// saved until the reviewer edits them.
	unread map[models.Mode]bool
}

// snapshot resolves the document's annotations for mode. Range resolution is committed
// to the live set, so what is saved is what stays on screen.
func (d *liveDocument) snapshot(mode models.Mode) *annotation.Snapshot {
	if mode == models.ModeRange {
		return annotation.NewRangeSnapshot(d.id, d.ranges.Commit())
	}
	return annotation.NewIndicatorSnapshot(d.id, d.fields.ToSnapshot())
}

// View is a copy of the controller's live state for rendering.
type View struct {
	DocumentID          models.DocumentID            `json:"document_id"`
	Position            int                          `json:"position"`
	Total               int                          `json:"total"`
	Progress            string                       `json:"progress"`
	State               State                        `json:"state"`
	Modes               []models.Mode                `json:"modes"`
	Transcript          string                       `json:"transcript"`
	TranscriptAvailable bool                         `json:"transcript_available"`
	FieldsAvailable     bool                         `json:"fields_available"`
	Indicators          []models.IndicatorAnnotation `json:"indicators"`
	Ranges              []models.RangeAnnotation     `json:"ranges"`
	InFlight            int64                        `json:"in_flight"`
	Unsaved             []string                     `json:"unsaved,omitempty"`
	LastSave            *models.SaveResult           `json:"last_save,omitempty"`
}
