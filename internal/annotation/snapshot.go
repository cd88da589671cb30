package annotation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JingePHA/eval-ui/internal/models"
)

// Snapshot is the complete persisted annotation state of one document in one mode.
type Snapshot struct {
	DocumentID models.DocumentID
	Mode       models.Mode
	Key        string
	Ranges     []models.RangeAnnotation
	Indicators models.IndicatorSnapshot
}

// SnapshotKey returns the persistence key for id in mode. Keys differ per mode, so both
// annotation kinds of one document can be stored side by side.
func SnapshotKey(id models.DocumentID, mode models.Mode) string {
	name := string(id)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if mode == models.ModeRange {
		return stem + "_annotations.json"
	}
	return stem + "_PI_annotated.json"
}

// NewRangeSnapshot builds a range-mode snapshot.
func NewRangeSnapshot(id models.DocumentID, ranges []models.RangeAnnotation) *Snapshot {
	if ranges == nil {
		ranges = []models.RangeAnnotation{}
	}
	return &Snapshot{DocumentID: id, Mode: models.ModeRange, Key: SnapshotKey(id, models.ModeRange), Ranges: ranges}
}

// NewIndicatorSnapshot builds an indicator-mode snapshot.
func NewIndicatorSnapshot(id models.DocumentID, indicators models.IndicatorSnapshot) *Snapshot {
	if indicators == nil {
		indicators = models.IndicatorSnapshot{}
	}
	return &Snapshot{DocumentID: id, Mode: models.ModeIndicator, Key: SnapshotKey(id, models.ModeIndicator), Indicators: indicators}
}

type rangePayload struct {
	Annotations []models.RangeAnnotation `json:"annotations"`
}

// Encode returns the persisted JSON payload.
func (s *Snapshot) Encode() ([]byte, error) {
	switch s.Mode {
	case models.ModeRange:
		ranges := s.Ranges
		if ranges == nil {
			ranges = []models.RangeAnnotation{}
		}
		return json.Marshal(rangePayload{Annotations: ranges})
	case models.ModeIndicator:
		return encodeIndicators(s.Indicators)
	}
	return nil, fmt.Errorf("encode snapshot %s: unknown mode %q", s.Key, s.Mode)
}

// encodeIndicators writes known indicators in IndicatorOrder, then any others sorted by name.
func encodeIndicators(snap models.IndicatorSnapshot) ([]byte, error) {
	names := make([]string, 0, len(snap))
	seen := make(map[string]bool, len(snap))
	for _, name := range IndicatorOrder {
		if _, ok := snap[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range snap {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(snap[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// legacyIndicatorPayload is the list form written by the first version of the review tool.
type legacyIndicatorPayload struct {
	Annotations []models.IndicatorAnnotation `json:"annotations"`
}

// DecodeSnapshot parses a persisted payload for id in mode.
func DecodeSnapshot(id models.DocumentID, mode models.Mode, data []byte) (*Snapshot, error) {
	switch mode {
	case models.ModeRange:
		var p rangePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode range snapshot for %s: %w", id, err)
		}
		return NewRangeSnapshot(id, p.Annotations), nil
	case models.ModeIndicator:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode indicator snapshot for %s: %w", id, err)
		}
		if list, ok := raw["annotations"]; ok && len(bytes.TrimSpace(list)) > 0 && bytes.TrimSpace(list)[0] == '[' {
			var legacy legacyIndicatorPayload
			if err := json.Unmarshal(data, &legacy); err != nil {
				return nil, fmt.Errorf("decode legacy indicator snapshot for %s: %w", id, err)
			}
			snap := make(models.IndicatorSnapshot, len(legacy.Annotations))
			for _, a := range legacy.Annotations {
				snap[a.Indicator] = models.IndicatorEntry{Value: a.OriginalValue, Comment: a.Comment}
			}
			return NewIndicatorSnapshot(id, snap), nil
		}
		snap := make(models.IndicatorSnapshot, len(raw))
		for name, v := range raw {
			var entry models.IndicatorEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil, fmt.Errorf("decode indicator %q for %s: %w", name, id, err)
			}
			snap[name] = entry
		}
		return NewIndicatorSnapshot(id, snap), nil
	}
	return nil, fmt.Errorf("decode snapshot for %s: unknown mode %q", id, mode)
}
