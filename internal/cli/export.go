package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/JingePHA/eval-ui/internal/annotation"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/storage"
	"github.com/JingePHA/eval-ui/pkg/utils"
)

// CollectSnapshots loads the saved snapshot of every document in mode. Documents without a
// snapshot are skipped.
func CollectSnapshots(ctx context.Context, gateway storage.Gateway, ids []models.DocumentID, mode models.Mode) ([]*annotation.Snapshot, error) {
	var snaps []*annotation.Snapshot
	for _, id := range ids {
		key := annotation.SnapshotKey(id, mode)
		data, err := gateway.Load(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", key, err)
		}
		snap, err := annotation.DecodeSnapshot(id, mode, data)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

type exportEntry struct {
	Document   models.DocumentID        `json:"document"`
	Key        string                   `json:"key"`
	Ranges     []models.RangeAnnotation `json:"ranges,omitempty"`
	Indicators models.IndicatorSnapshot `json:"indicators,omitempty"`
}

// WriteExport writes snapshots to w as text, JSON or an XLSX workbook.
func WriteExport(w io.Writer, snaps []*annotation.Snapshot, format OutputFormat) error {
	switch format {
	case OutputJSON:
		entries := make([]exportEntry, 0, len(snaps))
		for _, s := range snaps {
			entries = append(entries, exportEntry{Document: s.DocumentID, Key: s.Key, Ranges: s.Ranges, Indicators: s.Indicators})
		}
		return writeJSON(w, entries)
	case OutputXLSX:
		return writeXLSX(w, snaps)
	}
	for _, s := range snaps {
		fmt.Fprintf(w, "== %s (%s)\n", s.DocumentID, s.Key)
		if s.Mode == models.ModeRange {
			for _, r := range s.Ranges {
				fmt.Fprintf(w, "  [%d,%d) %q", r.Start, r.End, utils.Truncate(r.Text, 60))
				if r.Comment != "" {
					fmt.Fprintf(w, "  # %s", r.Comment)
				}
				fmt.Fprintln(w)
			}
			continue
		}
		for _, name := range indicatorNames(s.Indicators) {
			e := s.Indicators[name]
			fmt.Fprintf(w, "  %-32s %s", name, utils.Truncate(e.Value, 60))
			if e.Comment != "" {
				fmt.Fprintf(w, "  # %s", e.Comment)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// indicatorNames returns the known indicators present in snap in display order, then the rest.
func indicatorNames(snap models.IndicatorSnapshot) []string {
	names := make([]string, 0, len(snap))
	seen := make(map[string]bool, len(snap))
	for _, name := range annotation.IndicatorOrder {
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
	return append(names, extra...)
}

const (
	indicatorSheet = "Indicators"
	rangeSheet     = "Ranges"
)

func writeXLSX(w io.Writer, snaps []*annotation.Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", indicatorSheet); err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	if _, err := f.NewSheet(rangeSheet); err != nil {
		return fmt.Errorf("create workbook: %w", err)
	}
	if err := setRow(f, indicatorSheet, 1, "Document", "Indicator", "Value", "Comment"); err != nil {
		return err
	}
	if err := setRow(f, rangeSheet, 1, "Document", "Start", "End", "Text", "Comment"); err != nil {
		return err
	}

	indRow, rangeRow := 2, 2
	for _, s := range snaps {
		if s.Mode == models.ModeRange {
			for _, r := range s.Ranges {
				if err := setRow(f, rangeSheet, rangeRow, string(s.DocumentID), r.Start, r.End, r.Text, r.Comment); err != nil {
					return err
				}
				rangeRow++
			}
			continue
		}
		for _, name := range indicatorNames(s.Indicators) {
			e := s.Indicators[name]
			if err := setRow(f, indicatorSheet, indRow, string(s.DocumentID), name, e.Value, e.Comment); err != nil {
				return err
			}
			indRow++
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
