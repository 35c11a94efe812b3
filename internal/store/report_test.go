package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robfarr/markpilot/internal/models"
)

// blockingReportAPI lets the test decide when each in-flight fetch resolves.
// Every Report call announces itself on started before blocking.
type blockingReportAPI struct {
	mu      sync.Mutex
	pending map[string]chan *models.ReportData
	started chan string
}

func newBlockingReportAPI() *blockingReportAPI {
	return &blockingReportAPI{
		pending: make(map[string]chan *models.ReportData),
		started: make(chan string, 8),
	}
}

func (b *blockingReportAPI) gate(id string) chan *models.ReportData {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.pending[id]
	if !ok {
		ch = make(chan *models.ReportData, 1)
		b.pending[id] = ch
	}
	return ch
}

func (b *blockingReportAPI) Report(ctx context.Context, id string) (*models.ReportData, error) {
	b.started <- id
	r := <-b.gate(id)
	if r == nil {
		return nil, errors.New("report fetch failed")
	}
	return r, nil
}

func (b *blockingReportAPI) DownloadReport(ctx context.Context, id string, w io.Writer) (int64, error) {
	n, err := w.Write([]byte("pdf:" + id))
	return int64(n), err
}

func report(id, pct string) *models.ReportData {
	return &models.ReportData{ID: id, Title: "Report " + id, Percentage: pct, Status: "graded"}
}

func TestFetchLastTokenWins(t *testing.T) {
	api := newBlockingReportAPI()
	s := NewReportStore(api, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = s.Fetch(ctx, "id1") }()
	require.Equal(t, "id1", <-api.started, "id1 fetch must be in flight first")

	go func() { defer wg.Done(); _ = s.Fetch(ctx, "id2") }()
	require.Equal(t, "id2", <-api.started)

	// id2 resolves first, then id1's slow response lands.
	api.gate("id2") <- report("id2", "88")
	api.gate("id1") <- report("id1", "55")
	wg.Wait()

	id, loaded, _, lastErr := s.Current()
	require.NotNil(t, loaded)
	assert.Equal(t, "id2", id)
	assert.Equal(t, "id2", loaded.ID, "a stale id1 response must never be shown")
	assert.Empty(t, lastErr)
}

func TestFetchClearsPreviousReport(t *testing.T) {
	api := newBlockingReportAPI()
	s := NewReportStore(api, nil, nil)
	ctx := context.Background()

	api.gate("id1") <- report("id1", "70")
	require.NoError(t, s.Fetch(ctx, "id1"))
	<-api.started // drain id1's announcement

	done := make(chan struct{})
	go func() { defer close(done); _ = s.Fetch(ctx, "id2") }()
	require.Equal(t, "id2", <-api.started)

	// id2 has not resolved yet; the store must already show nothing.
	id, loaded, loading, _ := s.Current()
	assert.Equal(t, "id2", id)
	assert.Nil(t, loaded, "stale id1 data visible under id2")
	assert.True(t, loading)

	api.gate("id2") <- report("id2", "90")
	<-done
}

func TestFetchError(t *testing.T) {
	api := newBlockingReportAPI()
	s := NewReportStore(api, nil, nil)

	api.gate("bad") <- nil
	err := s.Fetch(context.Background(), "bad")
	require.Error(t, err)

	_, loaded, loading, lastErr := s.Current()
	assert.Nil(t, loaded)
	assert.False(t, loading)
	assert.NotEmpty(t, lastErr)
}

func TestFetchRejectsOutOfRangePercentage(t *testing.T) {
	tests := []struct {
		name    string
		pct     string
		wantErr bool
	}{
		{"valid", "72.5", false},
		{"zero", "0", false},
		{"hundred", "100", false},
		{"missing tolerated", "", false},
		{"negative", "-3", true},
		{"over 100", "105", true},
		{"non numeric", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newBlockingReportAPI()
			s := NewReportStore(api, nil, nil)
			api.gate("r") <- report("r", tt.pct)

			err := s.Fetch(context.Background(), "r")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDownloadWithoutReportIsNoOp(t *testing.T) {
	s := NewReportStore(newBlockingReportAPI(), nil, nil)

	var buf bytes.Buffer
	n, err := s.Download(context.Background(), &buf)
	assert.ErrorIs(t, err, ErrNoReportLoaded)
	assert.Zero(t, n)
	assert.Zero(t, buf.Len())
}

func TestDownloadUsesLoadedID(t *testing.T) {
	api := newBlockingReportAPI()
	s := NewReportStore(api, nil, nil)

	api.gate("r9") <- report("r9", "61")
	require.NoError(t, s.Fetch(context.Background(), "r9"))

	var buf bytes.Buffer
	n, err := s.Download(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("pdf:r9")), n)
	assert.Equal(t, "pdf:r9", buf.String())
}

func TestReportPersistenceRoundTrip(t *testing.T) {
	db, err := OpenInMemory()
	require.NoError(t, err)
	defer db.Close()

	api := newBlockingReportAPI()
	s := NewReportStore(api, db, nil)
	api.gate("r1") <- report("r1", "81")
	require.NoError(t, s.Fetch(context.Background(), "r1"))

	restored := NewReportStore(api, db, nil)
	restored.Rehydrate()
	id, loaded, _, _ := restored.Current()
	assert.Equal(t, "r1", id)
	require.NotNil(t, loaded)
	assert.Equal(t, "Report r1", loaded.Title)
}
