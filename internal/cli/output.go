// Package cli provides output helpers for the evalui command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// OutputFormat selects how command output is rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputXLSX is an Excel workbook; only the export command supports it.
	OutputXLSX OutputFormat = "xlsx"
)

// ParseOutputFormat validates s against the formats a command accepts.
func ParseOutputFormat(s string, allowed ...OutputFormat) (OutputFormat, error) {
	for _, f := range allowed {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// StatusReport is the status of a review session, as served by /api/v1/status or built
// directly from storage.
type StatusReport struct {
	Snapshots      int64         `json:"snapshots"`
	Documents      int           `json:"documents"`
	Position       int           `json:"position"`
	Progress       string        `json:"progress,omitempty"`
	State          string        `json:"state,omitempty"`
	InFlight       int64         `json:"in_flight"`
	Modes          []string      `json:"modes,omitempty"`
	Unsaved        []string      `json:"unsaved,omitempty"`
	DiskUsageBytes *int64        `json:"disk_usage_bytes,omitempty"`
	Config         *StatusConfig `json:"config,omitempty"`
}

// StatusConfig is the configuration section of a StatusReport.
type StatusConfig struct {
	StorageBackend    string `json:"storage_backend"`
	DocumentDirectory string `json:"document_directory"`
	DatabasePath      string `json:"database_path,omitempty"`
}

// WriteStatus writes status to w in the given format.
func WriteStatus(w io.Writer, status *StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	fmt.Fprintf(w, "snapshots:          %d   # persisted annotation snapshots\n", status.Snapshots)
	fmt.Fprintf(w, "documents:          %d   # documents under review\n", status.Documents)
	if status.Progress != "" {
		fmt.Fprintf(w, "progress:           %s\n", status.Progress)
	}
	if status.State != "" {
		fmt.Fprintf(w, "state:              %s\n", status.State)
		fmt.Fprintf(w, "in_flight:          %d   # saves dispatched, not yet stored\n", status.InFlight)
	}
	for _, key := range status.Unsaved {
		fmt.Fprintf(w, "unsaved:            %s\n", key)
	}
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # snapshot database on disk\n", *status.DiskUsageBytes)
	}
	if status.Config != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "storage_backend:    %s\n", status.Config.StorageBackend)
		fmt.Fprintf(w, "document_directory: %s\n", status.Config.DocumentDirectory)
		if status.Config.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", status.Config.DatabasePath)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
