package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestream/internal/domain"
)

type recordingHistory struct {
	mu      sync.Mutex
	upserts []domain.ListenPosition
	err     error
}

func (r *recordingHistory) Upsert(_ context.Context, p domain.ListenPosition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.upserts = append(r.upserts, p)
	return nil
}

func (r *recordingHistory) Get(context.Context, domain.EntryID) (domain.ListenPosition, error) {
	return domain.ListenPosition{}, domain.ErrNotFound
}

func (r *recordingHistory) ListRecent(context.Context, int) ([]domain.ListenPosition, error) {
	return nil, nil
}

func (r *recordingHistory) Delete(context.Context, domain.EntryID) error {
	return nil
}

func (r *recordingHistory) saved() []domain.ListenPosition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ListenPosition(nil), r.upserts...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSyncPersistsActivePlayback(t *testing.T) {
	repo := &recordingHistory{}
	snap := domain.Snapshot{
		EntryID:        "e1",
		CumulativeTime: 42.5,
		TotalDuration:  300,
		TotalSegments:  5,
		IsPlaying:      true,
	}
	s := SyncPosition{
		Snapshot: func() domain.Snapshot { return snap },
		Title:    func() string { return "entry one" },
		Repo:     repo,
		Logger:   discardLogger(),
	}

	s.sync(context.Background())

	saved := repo.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, domain.EntryID("e1"), saved[0].EntryID)
	assert.Equal(t, 42.5, saved[0].Position)
	assert.Equal(t, 300.0, saved[0].Duration)
	assert.Equal(t, "entry one", saved[0].Title)
}

func TestSyncSkipsIdleEngine(t *testing.T) {
	repo := &recordingHistory{}
	s := SyncPosition{
		Snapshot: func() domain.Snapshot { return domain.Snapshot{} },
		Repo:     repo,
		Logger:   discardLogger(),
	}

	s.sync(context.Background())
	assert.Empty(t, repo.saved())
}

func TestSyncSkipsUntouchedEntry(t *testing.T) {
	repo := &recordingHistory{}
	// Loaded but paused at zero, nothing worth saving yet.
	snap := domain.Snapshot{EntryID: "e1", TotalSegments: 3, CumulativeTime: 0, IsPlaying: false}
	s := SyncPosition{
		Snapshot: func() domain.Snapshot { return snap },
		Repo:     repo,
		Logger:   discardLogger(),
	}

	s.sync(context.Background())
	assert.Empty(t, repo.saved())
}

func TestSyncPersistsPlayingAtZero(t *testing.T) {
	repo := &recordingHistory{}
	snap := domain.Snapshot{EntryID: "e1", TotalSegments: 3, CumulativeTime: 0, IsPlaying: true}
	s := SyncPosition{
		Snapshot: func() domain.Snapshot { return snap },
		Repo:     repo,
		Logger:   discardLogger(),
	}

	s.sync(context.Background())
	assert.Len(t, repo.saved(), 1)
}

func TestSyncSurvivesRepositoryError(t *testing.T) {
	repo := &recordingHistory{err: context.DeadlineExceeded}
	snap := domain.Snapshot{EntryID: "e1", TotalSegments: 3, CumulativeTime: 10}
	s := SyncPosition{
		Snapshot: func() domain.Snapshot { return snap },
		Repo:     repo,
		Logger:   discardLogger(),
	}

	s.sync(context.Background())
	assert.Empty(t, repo.saved())
}
