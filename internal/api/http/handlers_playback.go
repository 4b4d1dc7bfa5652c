package apihttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voicestream/internal/domain"
)

type loadQueueRequest struct {
	EntryID         string     `json:"entryId"`
	Title           string     `json:"title"`
	URLs            []string   `json:"urls"`
	Durations       []*float64 `json:"durations"`
	Continuous      *bool      `json:"continuous"`
	GeneratorActive bool       `json:"generatorActive"`
	StartAt         float64    `json:"startAt"`
	Resume          bool       `json:"resume"`
}

type loadPlaylistRequest struct {
	EntryID string  `json:"entryId"`
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	StartAt float64 `json:"startAt"`
	Resume  bool    `json:"resume"`
}

type appendRequest struct {
	URL      string   `json:"url"`
	Duration *float64 `json:"duration"`
}

type generatorRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type seekRequest struct {
	Position *float64 `json:"position"`
}

type rateRequest struct {
	Rate *float64 `json:"rate"`
}

type statusResponse struct {
	Snapshot domain.Snapshot  `json:"snapshot"`
	Segments []domain.Segment `json:"segments"`
	Title    string           `json:"title,omitempty"`
}

func (s *Server) handleLoadQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req loadQueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "urls must not be empty")
		return
	}

	meta := domain.QueueMetadata{
		EntryID:         domain.EntryID(strings.TrimSpace(req.EntryID)),
		Title:           strings.TrimSpace(req.Title),
		Continuous:      req.Continuous,
		GeneratorActive: req.GeneratorActive,
	}
	startAt := req.StartAt
	if req.Resume && startAt == 0 {
		startAt = s.savedPosition(r.Context(), meta.EntryID)
	}

	if err := s.engine.LoadQueue(r.Context(), req.URLs, meta, req.Durations, startAt); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleLoadPlaylist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if s.playlists == nil {
		writeError(w, http.StatusServiceUnavailable, "playlists_unavailable", "playlist loading is not configured")
		return
	}
	var req loadPlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}

	queue, err := s.playlists.Fetch(r.Context(), req.URL)
	if err != nil {
		s.logger.Warn("playlist fetch failed", slog.String("url", req.URL), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "playlist_fetch_failed", "could not fetch or parse playlist")
		return
	}
	if len(queue.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "playlist contains no segments")
		return
	}

	meta := domain.QueueMetadata{
		EntryID:         domain.EntryID(strings.TrimSpace(req.EntryID)),
		Title:           strings.TrimSpace(req.Title),
		GeneratorActive: queue.GeneratorActive,
	}
	startAt := req.StartAt
	if req.Resume && startAt == 0 {
		startAt = s.savedPosition(r.Context(), meta.EntryID)
	}

	if err := s.engine.LoadQueue(r.Context(), queue.URLs, meta, queue.Durations, startAt); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req appendRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "url is required")
		return
	}
	seg, err := s.engine.AppendChunk(r.Context(), req.URL, req.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrQueueSuperseded) {
			writeEngineError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, seg)
}

func (s *Server) handleGenerator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req generatorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "done":
		s.engine.SetGeneratorDone()
	case "failed":
		s.engine.SetGeneratorFailed(req.Reason)
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", `status must be "done" or "failed"`)
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	s.engine.Play()
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	s.engine.Pause()
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	s.persistPosition()
	s.engine.Stop()
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	s.engine.WarmUp()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req seekRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Position == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "position is required")
		return
	}
	if err := s.engine.SeekToCumulativeTime(*req.Position); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleSkipForward(w http.ResponseWriter, r *http.Request) {
	s.handleSkip(w, r, s.engine.SkipForward)
}

func (s *Server) handleSkipBackward(w http.ResponseWriter, r *http.Request) {
	s.handleSkip(w, r, s.engine.SkipBackward)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request, skip func() error) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	if err := skip(); err != nil {
		writeEngineError(w, err)
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}
	var req rateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var rate float64
	if req.Rate != nil {
		if err := s.engine.SetPlaybackRate(*req.Rate); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unsupported playback rate")
			return
		}
		rate = *req.Rate
	} else {
		rate = s.engine.ChangePlaybackRate()
	}

	if s.settings != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.settings.SetPlaybackRate(ctx, rate); err != nil {
			s.logger.Warn("persist playback rate failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, map[string]float64{"rate": rate})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	s.writeStatus(w, http.StatusOK)
}

func (s *Server) writeStatus(w http.ResponseWriter, status int) {
	writeJSON(w, status, statusResponse{
		Snapshot: s.engine.Snapshot(),
		Segments: s.engine.Segments(),
		Title:    s.engine.Title(),
	})
}

// savedPosition looks up the stored resume position for an entry. Missing
// history is not an error, playback just starts from the beginning.
func (s *Server) savedPosition(ctx context.Context, id domain.EntryID) float64 {
	if s.history == nil || id == "" {
		return 0
	}
	p, err := s.history.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("listen history lookup failed",
				slog.String("entryId", string(id)), slog.String("error", err.Error()))
		}
		return 0
	}
	return p.Position
}

// persistPosition saves the current position before an explicit stop so the
// entry can be resumed later.
func (s *Server) persistPosition() {
	if s.history == nil {
		return
	}
	snap := s.engine.Snapshot()
	if snap.EntryID == "" || snap.TotalSegments == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.history.Upsert(ctx, domain.ListenPosition{
		EntryID:  snap.EntryID,
		Position: snap.CumulativeTime,
		Duration: snap.TotalDuration,
		Title:    s.engine.Title(),
	})
	if err != nil {
		s.logger.Warn("persist listen position failed",
			slog.String("entryId", string(snap.EntryID)), slog.String("error", err.Error()))
	}
}
