// Package playlist builds playback queues from HLS media playlists. The
// generation service publishes one playlist per journal entry; EXTINF values
// are authoritative durations, and an open (live) playlist means the
// generator is still appending segments.
package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
)

// Queue is the playlist contents in the form the playback engine loads.
type Queue struct {
	URLs            []string
	Durations       []*float64
	GeneratorActive bool
}

type Source struct {
	client *http.Client
	logger *slog.Logger
}

func NewSource(client *http.Client, logger *slog.Logger) *Source {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{client: client, logger: logger}
}

// Fetch downloads and parses a media playlist, resolving segment URIs
// against the playlist URL.
func (s *Source) Fetch(ctx context.Context, playlistURL string) (Queue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return Queue{}, fmt.Errorf("playlist request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Queue{}, fmt.Errorf("fetch playlist %s: %w", playlistURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Queue{}, fmt.Errorf("fetch playlist %s: status %d", playlistURL, resp.StatusCode)
	}

	playlist, listType, err := m3u8.DecodeFrom(resp.Body, true)
	if err != nil {
		return Queue{}, fmt.Errorf("decode playlist %s: %w", playlistURL, err)
	}
	if listType != m3u8.MEDIA {
		return Queue{}, fmt.Errorf("playlist %s: not a media playlist", playlistURL)
	}
	media := playlist.(*m3u8.MediaPlaylist)

	base, err := url.Parse(playlistURL)
	if err != nil {
		return Queue{}, fmt.Errorf("playlist url: %w", err)
	}

	var q Queue
	for _, seg := range media.Segments {
		if seg == nil {
			break
		}
		ref, err := url.Parse(seg.URI)
		if err != nil {
			return Queue{}, fmt.Errorf("segment uri %q: %w", seg.URI, err)
		}
		d := seg.Duration
		q.URLs = append(q.URLs, base.ResolveReference(ref).String())
		q.Durations = append(q.Durations, &d)
	}
	// A playlist without ENDLIST is still being written to.
	q.GeneratorActive = !media.Closed

	s.logger.Debug("playlist fetched",
		slog.String("url", playlistURL),
		slog.Int("segments", len(q.URLs)),
		slog.Bool("live", q.GeneratorActive))
	return q, nil
}
