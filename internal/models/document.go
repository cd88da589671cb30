// Package models defines core data structures for documents under review and their annotations.
package models

import "time"

// DocumentID identifies one document. It is unique within the registry and stable for the session.
type DocumentID string

// DocumentStatus is the review status of a document in the registry listing.
type DocumentStatus string

const (
	StatusCurrent  DocumentStatus = "current"
	StatusViewed   DocumentStatus = "viewed"
	StatusUnviewed DocumentStatus = "unviewed"
)

// DocumentEntry is one row of the document listing.
type DocumentEntry struct {
	ID       DocumentID     `json:"id"`
	Position int            `json:"position"`
	Status   DocumentStatus `json:"status"`
}

// SaveResult records the outcome of one snapshot save.
type SaveResult struct {
	DocumentID DocumentID `json:"document_id"`
	Mode       Mode       `json:"mode"`
	Key        string     `json:"key"`
	OK         bool       `json:"ok"`
	Error      string     `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}
