package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robfarr/markpilot/internal/client"
)

// fakeAPI scripts the backend responses for one workflow run.
type fakeAPI struct {
	uploadErr  error
	analyzeErr error
	scoreErr   error
	saveErr    error

	uploads  int
	analyzes int
	scores   int
}

func (f *fakeAPI) UploadOne(ctx context.Context, folder, path string) (*client.UploadedFile, error) {
	f.uploads++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &client.UploadedFile{
		OriginalName: filepath.Base(path),
		SavedAs:      "stored-" + filepath.Base(path),
	}, nil
}

func (f *fakeAPI) Analyze(ctx context.Context, id, guidelines string) (*client.AnalysisResult, error) {
	f.analyzes++
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	return &client.AnalysisResult{Summary: "looks fine", WordCount: 1200, Topics: []string{}, Suggestions: []string{}}, nil
}

func (f *fakeAPI) Score(ctx context.Context, req client.ScoreRequest) (*client.ScoringResult, error) {
	f.scores++
	if f.scoreErr != nil {
		return nil, f.scoreErr
	}
	return &client.ScoringResult{Title: "Essay", TotalMarks: 100, EarnedMarks: 72, Percentage: "72", Status: "graded"}, nil
}

func (f *fakeAPI) Save(ctx context.Context, result *client.ScoringResult, name string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	return "report-1", nil
}

func tempAssignment(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0600))
	return path
}

func TestHappyPath(t *testing.T) {
	api := &fakeAPI{}
	w := New(api, nil)
	ctx := context.Background()

	require.NoError(t, w.SelectAssignment(tempAssignment(t, "essay.pdf", 512)))
	w.SetGuidelines("grade strictly")

	require.NoError(t, w.StartAnalysis(ctx))
	snap := w.Snapshot()
	assert.Equal(t, StateRubric, snap.State)
	assert.Equal(t, float64(50), snap.Progress)
	assert.True(t, snap.Assignment.Uploaded)
	assert.Equal(t, "stored-essay.pdf", snap.Assignment.SavedAs)
	assert.False(t, snap.Processing)
	assert.Empty(t, snap.LastError)

	require.NoError(t, w.StartScoring(ctx))
	snap = w.Snapshot()
	assert.Equal(t, StateComplete, snap.State)
	assert.Equal(t, float64(100), snap.Progress)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "72", snap.Result.Percentage)

	id, err := w.SaveResult(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "report-1", id)
}

func TestAnalysisFailureFallsBackToUpload(t *testing.T) {
	api := &fakeAPI{analyzeErr: &client.APIError{Status: 0, Message: "connection refused"}}
	w := New(api, nil)
	ctx := context.Background()

	// This is the 5MB-PDF scenario: upload succeeds, analysis dies on the
	// network, and the workflow must land back on upload with processing off.
	require.NoError(t, w.SelectAssignment(tempAssignment(t, "thesis.pdf", 5<<20)))
	err := w.StartAnalysis(ctx)
	require.Error(t, err)

	snap := w.Snapshot()
	assert.Equal(t, StateUpload, snap.State)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Processing)
	assert.True(t, snap.Assignment.Uploaded, "the upload itself succeeded")
	assert.Equal(t, float64(0), snap.Progress, "progress resets to the fallback checkpoint")
}

func TestScoringFailureFallsBackToRubric(t *testing.T) {
	api := &fakeAPI{scoreErr: &client.APIError{Status: 500, Message: "scoring pipeline crashed"}}
	w := New(api, nil)
	ctx := context.Background()

	require.NoError(t, w.SelectAssignment(tempAssignment(t, "essay.pdf", 128)))
	require.NoError(t, w.StartAnalysis(ctx))

	err := w.StartScoring(ctx)
	require.Error(t, err)

	snap := w.Snapshot()
	assert.Equal(t, StateRubric, snap.State)
	assert.Equal(t, "scoring pipeline crashed", snap.LastError)
	assert.Equal(t, float64(50), snap.Progress)
	assert.False(t, snap.Processing)

	// Retry succeeds without a second upload of the assignment.
	api.scoreErr = nil
	require.NoError(t, w.StartScoring(ctx))
	assert.Equal(t, StateComplete, w.Snapshot().State)
	assert.Equal(t, 1, api.uploads)
}

func TestUploadFailureRecordsFileError(t *testing.T) {
	api := &fakeAPI{uploadErr: &client.APIError{Status: 413, Message: "file too large"}}
	w := New(api, nil)

	require.NoError(t, w.SelectAssignment(tempAssignment(t, "huge.pdf", 64)))
	err := w.StartAnalysis(context.Background())
	require.Error(t, err)

	snap := w.Snapshot()
	assert.Equal(t, StateUpload, snap.State)
	assert.False(t, snap.Assignment.Uploaded)
	assert.Equal(t, "file too large", snap.Assignment.UploadErr)
	assert.Equal(t, 0, api.analyzes)
}

func TestProgressMonotonicWithinRun(t *testing.T) {
	api := &fakeAPI{}
	w := New(api, nil)
	ctx := context.Background()

	var observed []float64
	w.OnChange(func(s Snapshot) {
		observed = append(observed, s.Progress)
	})

	require.NoError(t, w.SelectAssignment(tempAssignment(t, "essay.pdf", 128)))
	require.NoError(t, w.StartAnalysis(ctx))
	require.NoError(t, w.StartScoring(ctx))

	for i := 1; i < len(observed); i++ {
		assert.GreaterOrEqual(t, observed[i], observed[i-1],
			"progress must not decrease within a successful run")
	}
}

func TestRemoteProgressInterpolation(t *testing.T) {
	w := New(&fakeAPI{}, nil)
	w.mu.Lock()
	w.state = StateScoring
	w.progress = checkpointScoring
	w.mu.Unlock()

	w.ReportRemoteProgress(0.5)
	assert.Equal(t, 87.5, w.Snapshot().Progress)
	w.ReportRemoteProgress(0.2) // lower sub-progress never moves backwards
	assert.Equal(t, 87.5, w.Snapshot().Progress)
	w.ReportRemoteProgress(2.0) // clamped
	assert.Equal(t, float64(100), w.Snapshot().Progress)

	// Outside analyzing/scoring, remote progress is ignored.
	w2 := New(&fakeAPI{}, nil)
	w2.ReportRemoteProgress(0.9)
	assert.Equal(t, float64(0), w2.Snapshot().Progress)
}

func TestResetPreservesFreeText(t *testing.T) {
	api := &fakeAPI{}
	w := New(api, nil)
	ctx := context.Background()

	w.SetGuidelines("be strict")
	w.SetCustomRubric("intro 20, body 60, conclusion 20")
	require.NoError(t, w.SelectAssignment(tempAssignment(t, "essay.pdf", 128)))
	require.NoError(t, w.StartAnalysis(ctx))
	require.NoError(t, w.StartScoring(ctx))

	w.Reset()
	snap := w.Snapshot()
	assert.Equal(t, StateUpload, snap.State)
	assert.Nil(t, snap.Assignment)
	assert.Nil(t, snap.Result)
	assert.Equal(t, float64(0), snap.Progress)
	assert.Equal(t, "be strict", snap.Guidelines)
	assert.Equal(t, "intro 20, body 60, conclusion 20", snap.CustomRubric)
}

func TestGuardRails(t *testing.T) {
	api := &fakeAPI{}
	w := New(api, nil)
	ctx := context.Background()

	assert.Error(t, w.StartAnalysis(ctx), "analysis without an assignment")
	assert.Error(t, w.StartScoring(ctx), "scoring from the upload state")
	assert.Error(t, w.SelectRubric("x"), "rubric outside the rubric state")

	_, err := w.SaveResult(ctx, "")
	assert.Error(t, err, "save without a completed result")
}

func TestDraftRoundTrip(t *testing.T) {
	w := New(&fakeAPI{}, nil)
	w.SetGuidelines("g")
	w.SetCustomRubric("c")

	d := w.DraftState()
	assert.Equal(t, Draft{Guidelines: "g", CustomRubric: "c"}, d)

	w2 := New(&fakeAPI{}, nil)
	w2.RestoreDraft(d)
	snap := w2.Snapshot()
	assert.Equal(t, "g", snap.Guidelines)
	assert.Equal(t, "c", snap.CustomRubric)
}

func TestUnreachableErrorIsHumanized(t *testing.T) {
	err := &client.APIError{Status: 0, Message: "dial tcp: connection refused"}
	msg := humanize(err)
	assert.Contains(t, msg, "unreachable")

	assert.Equal(t, "boom", humanize(errors.New("boom")))
}
