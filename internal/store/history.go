package store

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/robfarr/markpilot/internal/models"
)

// HistoryAPI is the slice of the backend client the history store needs.
type HistoryAPI interface {
	History(ctx context.Context) ([]models.HistoryAssignment, error)
	DownloadReport(ctx context.Context, id string, w io.Writer) (int64, error)
}

// HistoryView is one history row with its derived display fields.
type HistoryView struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Grade   string `json:"grade" yaml:"grade"`
	Subject string `json:"subject" yaml:"subject"`
	Status  string `json:"status" yaml:"status"`
	Date    string `json:"date" yaml:"date"`
}

// HistoryStore holds the list of previously graded assignments.
type HistoryStore struct {
	api    HistoryAPI
	db     *DB
	logger *slog.Logger

	mu        sync.Mutex
	list      []models.HistoryAssignment
	loading   bool
	lastError string
}

// NewHistoryStore creates a history store backed by db (nil db disables
// persistence, used by tests).
func NewHistoryStore(api HistoryAPI, db *DB, logger *slog.Logger) *HistoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryStore{api: api, db: db, logger: logger}
}

// Rehydrate restores the persisted history list.
func (s *HistoryStore) Rehydrate() {
	if s.db == nil {
		return
	}
	var list []models.HistoryAssignment
	ok, err := s.db.Get(keyHistoryList, &list)
	if err != nil {
		s.logger.Warn("history rehydration failed", "error", err)
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	s.list = list
	s.mu.Unlock()
}

// Fetch loads the full history list in backend order.
func (s *HistoryStore) Fetch(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.lastError = ""
	s.mu.Unlock()

	list, err := s.api.History(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastError = err.Error()
		return err
	}
	s.list = list
	if s.db != nil {
		if perr := s.db.Put(keyHistoryList, list); perr != nil {
			s.logger.Warn("history persistence failed", "error", perr)
		}
	}
	return nil
}

// Download streams the PDF for an explicit report id; the history view shows
// many ids at once, so the id is a parameter rather than store state.
func (s *HistoryStore) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	return s.api.DownloadReport(ctx, id, w)
}

// Assignments returns the raw list as fetched.
func (s *HistoryStore) Assignments() []models.HistoryAssignment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.HistoryAssignment, len(s.list))
	copy(out, s.list)
	return out
}

// Views returns the list with derived grade, subject, status and date
// formatting applied.
func (s *HistoryStore) Views() []HistoryView {
	assignments := s.Assignments()
	views := make([]HistoryView, 0, len(assignments))
	for _, a := range assignments {
		views = append(views, HistoryView{
			ID:      string(a.ID),
			Name:    a.Name,
			Grade:   models.GradeFromScore(a.Grade),
			Subject: models.SubjectFromFilename(a.Name),
			Status:  models.DisplayStatus(a.Status),
			Date:    models.FormatDate(a.Date),
		})
	}
	return views
}

// State returns the loading flag and last error for display.
func (s *HistoryStore) State() (loading bool, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading, s.lastError
}
