package ports

import (
	"context"

	"voicestream/internal/domain"
)

// ListenHistory persists per-entry resume positions.
type ListenHistory interface {
	Upsert(ctx context.Context, p domain.ListenPosition) error
	Get(ctx context.Context, id domain.EntryID) (domain.ListenPosition, error)
	ListRecent(ctx context.Context, limit int) ([]domain.ListenPosition, error)
	Delete(ctx context.Context, id domain.EntryID) error
}

// PlayerSettings persists user playback preferences.
type PlayerSettings interface {
	GetPlaybackRate(ctx context.Context) (float64, bool, error)
	SetPlaybackRate(ctx context.Context, rate float64) error
}
