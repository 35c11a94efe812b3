// Package workflow implements the scoring workflow state machine.
//
// One workflow walks an assignment through
// upload -> analyzing -> rubric -> scoring -> complete. Failures fall back to
// the nearest retryable state (upload for analysis, rubric for scoring) with
// the error recorded; an explicit reset returns to upload while preserving
// the free-text guidelines and custom rubric.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfarr/markpilot/internal/client"
	"github.com/robfarr/markpilot/internal/models"
)

// State is one stop in the scoring workflow.
type State string

const (
	StateUpload    State = "upload"
	StateAnalyzing State = "analyzing"
	StateRubric    State = "rubric"
	StateScoring   State = "scoring"
	StateComplete  State = "complete"
)

// Progress checkpoints seeded on state entry. The remote call's sub-progress
// is interpolated between the current checkpoint and the next.
const (
	checkpointUpload    = 0
	checkpointAnalyzing = 25
	checkpointRubric    = 50
	checkpointScoring   = 75
	checkpointComplete  = 100
)

// checkpoint returns the progress value associated with entering a state.
func checkpoint(s State) float64 {
	switch s {
	case StateAnalyzing:
		return checkpointAnalyzing
	case StateRubric:
		return checkpointRubric
	case StateScoring:
		return checkpointScoring
	case StateComplete:
		return checkpointComplete
	default:
		return checkpointUpload
	}
}

// ScoringAPI is the slice of the backend client the workflow needs.
// *client.Client satisfies it; tests substitute fakes.
type ScoringAPI interface {
	UploadOne(ctx context.Context, folder, path string) (*client.UploadedFile, error)
	Analyze(ctx context.Context, assignmentID, guidelines string) (*client.AnalysisResult, error)
	Score(ctx context.Context, req client.ScoreRequest) (*client.ScoringResult, error)
	Save(ctx context.Context, result *client.ScoringResult, assignmentName string) (string, error)
}

// Snapshot is an immutable view of the workflow for presentation.
type Snapshot struct {
	State        State
	Assignment   *models.ScoringFile
	Rubric       *models.ScoringFile
	Guidelines   string
	CustomRubric string
	Progress     float64
	LastError    string
	Processing   bool
	Analysis     *client.AnalysisResult
	Result       *client.ScoringResult
}

// Draft is the serialization allow-list: the only workflow fields that
// survive a restart (and a reset). File handles and results never persist.
type Draft struct {
	Guidelines   string `json:"guidelines"`
	CustomRubric string `json:"customRubric"`
}

// Workflow is an injectable workflow instance. All methods are safe for
// concurrent use; the notify callback runs outside the lock.
type Workflow struct {
	api    ScoringAPI
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	assignment   *models.ScoringFile
	rubric       *models.ScoringFile
	guidelines   string
	customRubric string
	progress     float64
	lastError    string
	processing   bool
	analysis     *client.AnalysisResult
	result       *client.ScoringResult

	notify func(Snapshot)
}

// New creates a workflow in the upload state.
func New(api ScoringAPI, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		api:    api,
		logger: logger,
		state:  StateUpload,
	}
}

// OnChange registers a callback invoked with a snapshot after every mutation.
func (w *Workflow) OnChange(fn func(Snapshot)) {
	w.mu.Lock()
	w.notify = fn
	w.mu.Unlock()
}

// Snapshot returns the current workflow view.
func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Workflow) snapshotLocked() Snapshot {
	return Snapshot{
		State:        w.state,
		Assignment:   w.assignment,
		Rubric:       w.rubric,
		Guidelines:   w.guidelines,
		CustomRubric: w.customRubric,
		Progress:     w.progress,
		LastError:    w.lastError,
		Processing:   w.processing,
		Analysis:     w.analysis,
		Result:       w.result,
	}
}

func (w *Workflow) emit() {
	w.mu.Lock()
	fn := w.notify
	snap := w.snapshotLocked()
	w.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// SelectAssignment records the assignment file to be scored. Only valid
// before analysis has started.
func (w *Workflow) SelectAssignment(path string) error {
	sf, err := newScoringFile(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.state != StateUpload {
		w.mu.Unlock()
		return fmt.Errorf("cannot select assignment in state %q", w.state)
	}
	w.assignment = sf
	w.lastError = ""
	w.mu.Unlock()

	w.emit()
	return nil
}

// SelectRubric records an optional rubric file during the rubric stage.
func (w *Workflow) SelectRubric(path string) error {
	sf, err := newScoringFile(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.state != StateRubric {
		w.mu.Unlock()
		return fmt.Errorf("cannot select rubric in state %q", w.state)
	}
	w.rubric = sf
	w.mu.Unlock()

	w.emit()
	return nil
}

// SetGuidelines stores free-text scoring guidelines.
func (w *Workflow) SetGuidelines(s string) {
	w.mu.Lock()
	w.guidelines = s
	w.mu.Unlock()
	w.emit()
}

// SetCustomRubric stores a free-text rubric used instead of a rubric file.
func (w *Workflow) SetCustomRubric(s string) {
	w.mu.Lock()
	w.customRubric = s
	w.mu.Unlock()
	w.emit()
}

// StartAnalysis uploads the selected assignment and runs the analysis stage.
// On success the workflow sits in the rubric state; on failure it falls back
// to upload with the error recorded.
func (w *Workflow) StartAnalysis(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateUpload {
		w.mu.Unlock()
		return fmt.Errorf("analysis can only start from the upload state, not %q", w.state)
	}
	if w.assignment == nil {
		w.mu.Unlock()
		return errors.New("no assignment file selected")
	}
	if w.processing {
		w.mu.Unlock()
		return errors.New("a workflow step is already in flight")
	}
	w.processing = true
	w.lastError = ""
	assignment := w.assignment
	guidelines := w.guidelines
	w.mu.Unlock()
	w.emit()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
		w.emit()
	}()

	if !assignment.Uploaded {
		uploaded, err := w.api.UploadOne(ctx, "assignments", assignment.Path)
		if err != nil {
			w.fail(err, StateUpload)
			w.mu.Lock()
			w.assignment.UploadErr = humanize(err)
			w.mu.Unlock()
			return err
		}
		w.mu.Lock()
		w.assignment.Uploaded = true
		w.assignment.SavedAs = uploaded.SavedAs
		w.assignment.UploadErr = ""
		w.mu.Unlock()
		w.logger.Info("assignment uploaded", "name", assignment.Name, "savedAs", uploaded.SavedAs)
	}

	w.enter(StateAnalyzing)

	analysis, err := w.api.Analyze(ctx, w.Snapshot().Assignment.SavedAs, guidelines)
	if err != nil {
		w.fail(err, StateUpload)
		return err
	}

	w.mu.Lock()
	w.analysis = analysis
	w.mu.Unlock()
	w.enter(StateRubric)
	w.logger.Info("analysis complete", "wordCount", analysis.WordCount)
	return nil
}

// StartScoring uploads the rubric file if one was selected and runs the
// scoring stage. On success the workflow completes; on failure it falls back
// to the rubric state with the error recorded.
func (w *Workflow) StartScoring(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateRubric {
		w.mu.Unlock()
		return fmt.Errorf("scoring can only start from the rubric state, not %q", w.state)
	}
	if w.processing {
		w.mu.Unlock()
		return errors.New("a workflow step is already in flight")
	}
	w.processing = true
	w.lastError = ""
	assignment := w.assignment
	rubric := w.rubric
	guidelines := w.guidelines
	customRubric := w.customRubric
	w.mu.Unlock()
	w.emit()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
		w.emit()
	}()

	if rubric != nil && !rubric.Uploaded {
		uploaded, err := w.api.UploadOne(ctx, "rubrics", rubric.Path)
		if err != nil {
			w.fail(err, StateRubric)
			w.mu.Lock()
			w.rubric.UploadErr = humanize(err)
			w.mu.Unlock()
			return err
		}
		w.mu.Lock()
		w.rubric.Uploaded = true
		w.rubric.SavedAs = uploaded.SavedAs
		w.rubric.UploadErr = ""
		w.mu.Unlock()
		w.logger.Info("rubric uploaded", "name", rubric.Name, "savedAs", uploaded.SavedAs)
	}

	w.enter(StateScoring)

	req := client.ScoreRequest{
		AssignmentID: assignment.SavedAs,
		Guidelines:   guidelines,
		CustomRubric: customRubric,
	}
	if rubric != nil {
		req.RubricID = w.Snapshot().Rubric.SavedAs
	}

	result, err := w.api.Score(ctx, req)
	if err != nil {
		w.fail(err, StateRubric)
		return err
	}

	w.mu.Lock()
	w.result = result
	w.mu.Unlock()
	w.enter(StateComplete)
	w.logger.Info("scoring complete", "percentage", result.Percentage)
	return nil
}

// SaveResult persists the completed scoring result and returns the report
// id. An empty name saves under the assignment's original file name.
func (w *Workflow) SaveResult(ctx context.Context, name string) (string, error) {
	w.mu.Lock()
	if w.state != StateComplete || w.result == nil {
		w.mu.Unlock()
		return "", errors.New("no completed result to save")
	}
	result := w.result
	if name == "" && w.assignment != nil {
		name = w.assignment.Name
	}
	w.mu.Unlock()

	id, err := w.api.Save(ctx, result, name)
	if err != nil {
		w.mu.Lock()
		w.lastError = humanize(err)
		w.mu.Unlock()
		w.emit()
		return "", err
	}
	return id, nil
}

// ReportRemoteProgress feeds sub-progress (0..1) reported by the backend for
// the phase currently in flight. The value is interpolated between the
// current checkpoint and the next; progress never moves backwards within a
// run.
func (w *Workflow) ReportRemoteProgress(fraction float64) {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	w.mu.Lock()
	var lo, hi float64
	switch w.state {
	case StateAnalyzing:
		lo, hi = checkpointAnalyzing, checkpointRubric
	case StateScoring:
		lo, hi = checkpointScoring, checkpointComplete
	default:
		w.mu.Unlock()
		return
	}
	p := lo + (hi-lo)*fraction
	if p > w.progress {
		w.progress = p
	}
	w.mu.Unlock()
	w.emit()
}

// Reset returns the workflow to the upload state. Guidelines and the custom
// rubric deliberately survive; files, analysis and results do not.
func (w *Workflow) Reset() {
	w.mu.Lock()
	w.state = StateUpload
	w.assignment = nil
	w.rubric = nil
	w.analysis = nil
	w.result = nil
	w.progress = checkpointUpload
	w.lastError = ""
	w.processing = false
	w.mu.Unlock()
	w.emit()
}

// DraftState returns the fields persisted across sessions.
func (w *Workflow) DraftState() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Draft{Guidelines: w.guidelines, CustomRubric: w.customRubric}
}

// RestoreDraft rehydrates persisted free-text fields. Only meaningful before
// a run starts.
func (w *Workflow) RestoreDraft(d Draft) {
	w.mu.Lock()
	w.guidelines = d.Guidelines
	w.customRubric = d.CustomRubric
	w.mu.Unlock()
}

// enter moves to a state and seeds its checkpoint, keeping progress
// monotonic within the run.
func (w *Workflow) enter(s State) {
	w.mu.Lock()
	w.state = s
	if cp := checkpoint(s); cp > w.progress {
		w.progress = cp
	}
	w.mu.Unlock()
	w.emit()
}

// fail records the error and falls back to the given retry state; progress
// resets to that state's checkpoint so the next attempt starts clean.
func (w *Workflow) fail(err error, fallback State) {
	w.mu.Lock()
	w.lastError = humanize(err)
	w.state = fallback
	w.progress = checkpoint(fallback)
	w.mu.Unlock()
	w.logger.Error("workflow step failed", "fallback", fallback, "error", err)
	w.emit()
}

// humanize converts API errors into display strings.
func humanize(err error) string {
	if client.IsUnreachable(err) {
		return "The scoring service is unreachable. Check your connection and try again."
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// newScoringFile stats a local path into a ScoringFile.
func newScoringFile(path string) (*models.ScoringFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	return &models.ScoringFile{
		Path:       path,
		Name:       filepath.Base(path),
		Size:       info.Size(),
		MimeType:   mimeType,
		SelectedAt: time.Now(),
	}, nil
}
