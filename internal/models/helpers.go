package models

import (
	"strconv"
	"strings"
	"time"
)

// GradeFromScore maps a string-encoded numeric score to a grade band.
// nil means the assignment has not been graded yet.
func GradeFromScore(score *string) string {
	if score == nil {
		return "Pending"
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(*score), 64)
	if err != nil {
		return "Unknown"
	}
	switch {
	case n >= 70:
		return "Distinction"
	case n >= 60:
		return "Merit"
	case n >= 50:
		return "Just Pass"
	default:
		return "Fail"
	}
}

// subjectKeywords are checked in priority order against the lowercased filename.
var subjectKeywords = []struct {
	keywords []string
	subject  string
}{
	{[]string{"dissertation", "thesis"}, "Research"},
	{[]string{"case", "study"}, "Case Study"},
	{[]string{"report"}, "Report"},
	{[]string{"essay"}, "Essay"},
	{[]string{"assignment"}, "Assignment"},
}

// SubjectFromFilename infers an assignment subject from filename keywords.
func SubjectFromFilename(name string) string {
	lower := strings.ToLower(name)
	for _, entry := range subjectKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.subject
			}
		}
	}
	return "General"
}

// DisplayStatus maps a backend assignment status to its user-facing label.
func DisplayStatus(status string) string {
	switch status {
	case "graded":
		return "Completed"
	case "processing":
		return "Processing"
	default:
		return "Pending"
	}
}

// FormatDate renders a timestamp in the locale-short form the history view uses.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}
