package usecase

import (
	"context"
	"log/slog"
	"time"

	"voicestream/internal/domain"
	"voicestream/internal/domain/ports"
)

// SyncPosition periodically persists the live playback position so the user
// can resume an entry after a restart or on another device.
type SyncPosition struct {
	Snapshot func() domain.Snapshot
	Title    func() string
	Repo     ports.ListenHistory
	Logger   *slog.Logger
	Interval time.Duration
}

func (s SyncPosition) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

func (s SyncPosition) sync(ctx context.Context) {
	snap := s.Snapshot()
	if snap.EntryID == "" || snap.TotalSegments == 0 {
		return
	}
	// Nothing worth saving until playback actually moved.
	if snap.CumulativeTime <= 0 && !snap.IsPlaying {
		return
	}

	p := domain.ListenPosition{
		EntryID:  snap.EntryID,
		Position: snap.CumulativeTime,
		Duration: snap.TotalDuration,
	}
	if s.Title != nil {
		p.Title = s.Title()
	}

	if err := s.Repo.Upsert(ctx, p); err != nil {
		s.Logger.Warn("sync: persist listen position failed",
			slog.String("entryId", string(snap.EntryID)),
			slog.String("error", err.Error()))
	}
}
