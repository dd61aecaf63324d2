package ingest

import (
	"errors"
	"fmt"
)

// Common ingestion errors
var (
	// ErrDownloadFailed is returned when the hosted file cannot be fetched
	// (non-success status or network failure).
	ErrDownloadFailed = errors.New("file download failed")

	// ErrMissingColumn is returned when the header row lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// RowError reports a parse failure on a single data row.
type RowError struct {
	// Row is the 1-based row number in the file, counting the header.
	Row int

	// Column is the column whose value failed to parse, if known.
	Column string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RowError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("ingest: row %d: invalid %q: %v", e.Row, e.Column, e.Err)
	}
	return fmt.Sprintf("ingest: row %d: %v", e.Row, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *RowError) Unwrap() error {
	return e.Err
}
