// Package models defines data structures shared by the markpilot client and stores.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ID is an externally issued identifier. The backend is not consistent about
// encoding ids as JSON strings or numbers, so both decode.
type ID string

func (id *ID) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("id must be a string or number, got %s", raw)
	}
	*id = ID(n.String())
	return nil
}

// ScoringFile is a locally selected file moving through the scoring workflow.
// SavedAs is assigned by the upload service and is the identifier every
// downstream call uses; Name stays what the user picked.
type ScoringFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"mimeType"`
	SelectedAt time.Time `json:"selectedAt"`
	Uploaded   bool      `json:"uploaded"`
	SavedAs    string    `json:"savedAs,omitempty"`
	UploadErr  string    `json:"uploadError,omitempty"`
}

// PartScore is one rubric section of a graded report.
type PartScore struct {
	Section  string  `json:"section"`
	Score    float64 `json:"score"`
	MaxScore float64 `json:"maxScore"`
	Feedback string  `json:"feedback,omitempty"`
}

// ReportData is a read-only projection of one graded submission.
// Percentage is string-encoded by the backend; Feedback is sometimes itself
// a JSON-encoded substructure and is kept opaque here.
type ReportData struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	TotalMarks  float64     `json:"totalMarks"`
	EarnedMarks float64     `json:"earnedMarks"`
	Percentage  string      `json:"percentage"`
	Feedback    string      `json:"feedback,omitempty"`
	Parts       []PartScore `json:"parts"`
	Status      string      `json:"status"`
	GradedAt    time.Time   `json:"gradedAt"`
}

// HistoryAssignment is one previously graded assignment as listed by the
// backend. Grade is a string-encoded numeric, nil when not yet graded.
type HistoryAssignment struct {
	ID     ID        `json:"id"`
	Name   string    `json:"name"`
	Grade  *string   `json:"grade"`
	Status string    `json:"status"`
	Date   time.Time `json:"date"`
}

// User is the authenticated account record returned by the backend.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// AuthSession holds the session as cached locally. The server-set session
// cookie remains the authority; this cache only primes the UI.
type AuthSession struct {
	User          *User  `json:"user,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Cookie        string `json:"cookie,omitempty"`
}
