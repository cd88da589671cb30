package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/JingePHA/eval-ui/internal/annotation"
	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/storage"
)

// DocumentRow is one line of the document listing.
type DocumentRow struct {
	Position int                  `json:"position"`
	ID       models.DocumentID    `json:"id"`
	Saved    map[models.Mode]bool `json:"saved"`
}

// CollectDocuments checks, for every document and mode, whether a snapshot has been saved.
func CollectDocuments(ctx context.Context, gateway storage.Gateway, ids []models.DocumentID, modes []models.Mode) ([]DocumentRow, error) {
	rows := make([]DocumentRow, 0, len(ids))
	for i, id := range ids {
		row := DocumentRow{Position: i, ID: id, Saved: make(map[models.Mode]bool, len(modes))}
		for _, mode := range modes {
			_, err := gateway.Load(ctx, annotation.SnapshotKey(id, mode))
			switch {
			case err == nil:
				row.Saved[mode] = true
			case errors.Is(err, storage.ErrNotFound):
				row.Saved[mode] = false
			default:
				return nil, fmt.Errorf("check %s: %w", id, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteDocuments writes the listing to w. Text output marks saved modes in green and
// unsaved ones in yellow.
func WriteDocuments(w io.Writer, rows []DocumentRow, modes []models.Mode, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, rows)
	}
	saved := color.New(color.FgGreen).SprintFunc()
	unsaved := color.New(color.FgYellow).SprintFunc()
	done := 0
	for _, row := range rows {
		fmt.Fprintf(w, "%4d  %-40s", row.Position+1, row.ID)
		complete := true
		for _, mode := range modes {
			if row.Saved[mode] {
				fmt.Fprintf(w, "  %s", saved(string(mode)+": saved"))
			} else {
				complete = false
				fmt.Fprintf(w, "  %s", unsaved(string(mode)+": unsaved"))
			}
		}
		if complete {
			done++
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "\n%d / %d documents saved\n", done, len(rows))
	return nil
}
