package models

import (
	"fmt"
	"time"
)

// ScrapedFile records one captured blob plus its processing status. Rows are
// created by the scraper and mutated by the transformer; they are never
// deleted, so failed records remain for audit and manual retry.
type ScrapedFile struct {
	ID         int64      `json:"id"`
	SourceID   int64      `json:"source_id"`
	LocalPath  string     `json:"local_path"` // absolute path to the persisted blob
	Filename   string     `json:"filename"`   // original filename
	Mimetype   string     `json:"mimetype"`
	ScrapedAt  time.Time  `json:"scraped_at"`
	Status     FileStatus `json:"status"`
	RetryCount int        `json:"retry_count"`
	Notes      string     `json:"notes,omitempty"` // error message or local-file change signature
}

// FileStatus is the processing state of a ScrapedFile.
type FileStatus string

const (
	// StatusPending marks a freshly ingested file awaiting transformation.
	StatusPending FileStatus = "PENDING"
	// StatusInProgress marks a file claimed by a transform batch.
	StatusInProgress FileStatus = "IN_PROGRESS"
	// StatusProcessed marks a file whose payload was delivered (or already
	// existed downstream). Terminal.
	StatusProcessed FileStatus = "PROCESSED"
	// StatusLoadFailed marks a file whose delivery failed; it re-enters
	// batch selection until it resolves or exhausts its retry budget.
	StatusLoadFailed FileStatus = "LOAD_FAILED"
	// StatusTransformFailed marks a file whose extraction failed or whose
	// blob disappeared. Terminal: the condition will not clear on retry.
	StatusTransformFailed FileStatus = "TRANSFORM_FAILED"
	// StatusDeadLetter marks a file that exhausted its delivery retry
	// budget. Terminal; kept for audit and operator intervention.
	StatusDeadLetter FileStatus = "DEAD_LETTER"
)

// ErrInvalidTransition is returned when a status transition violates the
// lifecycle state machine.
type ErrInvalidTransition struct {
	From, To FileStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid file status transition %s -> %s", e.From, e.To)
}

var transitions = map[FileStatus][]FileStatus{
	StatusPending:    {StatusInProgress},
	StatusInProgress: {StatusProcessed, StatusLoadFailed, StatusTransformFailed},
	StatusLoadFailed: {StatusInProgress, StatusDeadLetter},
}

// Valid reports whether s is a known status value.
func (s FileStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusProcessed,
		StatusLoadFailed, StatusTransformFailed, StatusDeadLetter:
		return true
	}
	return false
}

// Terminal reports whether the status is never re-selected by batch runs.
func (s FileStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusTransformFailed, StatusDeadLetter:
		return true
	}
	return false
}

// CanTransition reports whether a transition from s to next is legal.
func (s FileStatus) CanTransition(next FileStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Transition mutates the file status, rejecting illegal transitions.
func (f *ScrapedFile) Transition(next FileStatus) error {
	if !f.Status.CanTransition(next) {
		return &ErrInvalidTransition{From: f.Status, To: next}
	}
	f.Status = next
	return nil
}
