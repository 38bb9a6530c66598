// Package gist is a minimal client for a gist-style versioned blob
// store: a backup is one gist whose files are the snapshot blobs, and
// its revision history supplies the backup timestamps.
package gist

import (
	"errors"
	"fmt"
	"time"
)

// Errors translated from API status codes.
var (
	// ErrNotFound means the gist ID does not exist or is not visible
	// with the given credential.
	ErrNotFound = errors.New("gist not found")

	// ErrBadCredential means the personal access token was rejected.
	ErrBadCredential = errors.New("bad credential")
)

// TransientError wraps a failure worth retrying: a 5xx response, a rate
// limit, or a transport error.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gist API error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ShapeError means the API answered successfully but the payload was
// missing a field the caller depends on.
type ShapeError struct {
	Field string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("gist response missing %s", e.Field)
}

// File is one blob of a gist. When updating, a nil *File in the files
// map marshals as null and deletes the blob.
type File struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
	RawURL    string `json:"raw_url,omitempty"`
}

// Revision is one entry of a gist's history, newest first.
type Revision struct {
	Version     string    `json:"version"`
	CommittedAt time.Time `json:"committed_at"`
}

// Gist is a versioned blob container.
type Gist struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Public      bool             `json:"public"`
	HTMLURL     string           `json:"html_url"`
	Files       map[string]*File `json:"files"`
	History     []Revision       `json:"history"`
}

// LatestRevision returns the newest history entry.
func (g *Gist) LatestRevision() (Revision, error) {
	if len(g.History) == 0 {
		return Revision{}, &ShapeError{Field: "history"}
	}

	return g.History[0], nil
}

// Blobs flattens the gist files into name-to-content form for
// classification. Truncated files must be resolved before calling.
func (g *Gist) Blobs() (map[string]string, error) {
	if g.Files == nil {
		return nil, &ShapeError{Field: "files"}
	}

	blobs := make(map[string]string, len(g.Files))

	for name, file := range g.Files {
		if file == nil {
			return nil, &ShapeError{Field: "files." + name}
		}

		blobs[name] = file.Content
	}

	return blobs, nil
}
