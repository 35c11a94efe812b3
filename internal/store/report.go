package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/robfarr/markpilot/internal/models"
)

// ErrNoReportLoaded is returned when a download is requested with no report
// in the store.
var ErrNoReportLoaded = errors.New("no report is currently loaded")

// ReportAPI is the slice of the backend client the report store needs.
type ReportAPI interface {
	Report(ctx context.Context, id string) (*models.ReportData, error)
	DownloadReport(ctx context.Context, id string, w io.Writer) (int64, error)
}

// reportPersist is the store's serialization allow-list.
type reportPersist struct {
	ID     string             `json:"id"`
	Report *models.ReportData `json:"report,omitempty"`
}

// ReportStore holds the currently displayed graded report. Fetches are
// stamped with a generation token; only the response matching the latest
// token is applied, so a slow response for an old id can never clobber a
// newer fetch (last id wins, without request cancellation).
type ReportStore struct {
	api    ReportAPI
	db     *DB
	logger *slog.Logger

	mu        sync.Mutex
	gen       uint64
	currentID string
	report    *models.ReportData
	loading   bool
	lastError string
}

// NewReportStore creates a report store backed by db (nil db disables
// persistence, used by tests).
func NewReportStore(api ReportAPI, db *DB, logger *slog.Logger) *ReportStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportStore{api: api, db: db, logger: logger}
}

// Rehydrate restores the persisted report id and data.
func (s *ReportStore) Rehydrate() {
	if s.db == nil {
		return
	}
	var p reportPersist
	ok, err := s.db.Get(keyReportCurrent, &p)
	if err != nil {
		s.logger.Warn("report state rehydration failed", "error", err)
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	s.currentID = p.ID
	s.report = p.Report
	s.mu.Unlock()
}

// Fetch loads the report for id. Any previously shown report is cleared
// before the request goes out so a slow network never shows stale data under
// the new id.
func (s *ReportStore) Fetch(ctx context.Context, id string) error {
	s.mu.Lock()
	s.gen++
	token := s.gen
	s.currentID = id
	s.report = nil
	s.loading = true
	s.lastError = ""
	s.mu.Unlock()

	report, err := s.api.Report(ctx, id)
	if err == nil {
		err = validateReport(report)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token != s.gen {
		// A newer fetch superseded this one; its result decides.
		s.logger.Debug("discarding stale report response", "id", id)
		return nil
	}
	s.loading = false
	if err != nil {
		s.lastError = err.Error()
		return err
	}
	s.report = report
	s.persistLocked()
	return nil
}

// Download streams the currently loaded report's PDF into w. Without a
// loaded id this is a no-op beyond the logged error.
func (s *ReportStore) Download(ctx context.Context, w io.Writer) (int64, error) {
	s.mu.Lock()
	id := s.currentID
	s.mu.Unlock()

	if id == "" {
		s.logger.Error("report download requested with no report loaded")
		return 0, ErrNoReportLoaded
	}
	return s.api.DownloadReport(ctx, id, w)
}

// Current returns the store's display state.
func (s *ReportStore) Current() (id string, report *models.ReportData, loading bool, lastError string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID, s.report, s.loading, s.lastError
}

func (s *ReportStore) persistLocked() {
	if s.db == nil {
		return
	}
	p := reportPersist{ID: s.currentID, Report: s.report}
	if err := s.db.Put(keyReportCurrent, p); err != nil {
		s.logger.Warn("report state persistence failed", "error", err)
	}
}

// validateReport enforces the percentage invariant on fetched reports.
func validateReport(r *models.ReportData) error {
	if r == nil {
		return errors.New("empty report response")
	}
	if r.Percentage == "" {
		return nil
	}
	pct, err := strconv.ParseFloat(r.Percentage, 64)
	if err != nil {
		return fmt.Errorf("report percentage %q is not numeric", r.Percentage)
	}
	if pct < 0 || pct > 100 {
		return fmt.Errorf("report percentage %v out of range", pct)
	}
	return nil
}
