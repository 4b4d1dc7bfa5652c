// Package apihttp exposes the playback engine over HTTP and WebSocket.
package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"voicestream/internal/domain"
	domainports "voicestream/internal/domain/ports"
	"voicestream/internal/playlist"
)

// PlaybackEngine is the surface the HTTP layer drives. The coordinator
// implements it.
type PlaybackEngine interface {
	LoadQueue(ctx context.Context, urls []string, meta domain.QueueMetadata, serverDurations []*float64, startAt float64) error
	AppendChunk(ctx context.Context, url string, serverDuration *float64) (domain.Segment, error)
	SetGeneratorDone()
	SetGeneratorFailed(reason string)
	Play()
	Pause()
	Stop()
	SeekToCumulativeTime(target float64) error
	SkipForward() error
	SkipBackward() error
	ChangePlaybackRate() float64
	SetPlaybackRate(rate float64) error
	WarmUp()
	Snapshot() domain.Snapshot
	Segments() []domain.Segment
	Title() string
}

// PlaylistSource fetches an HLS playlist and turns it into a queue.
type PlaylistSource interface {
	Fetch(ctx context.Context, playlistURL string) (playlist.Queue, error)
}

type Server struct {
	engine         PlaybackEngine
	playlists      PlaylistSource
	history        domainports.ListenHistory
	settings       domainports.PlayerSettings
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithPlaylistSource(src PlaylistSource) ServerOption {
	return func(s *Server) {
		s.playlists = src
	}
}

func WithListenHistory(store domainports.ListenHistory) ServerOption {
	return func(s *Server) {
		s.history = store
	}
}

func WithPlayerSettings(store domainports.PlayerSettings) ServerOption {
	return func(s *Server) {
		s.settings = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(engine PlaybackEngine, opts ...ServerOption) *Server {
	s := &Server{engine: engine}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/playback/queue", s.handleLoadQueue)
	mux.HandleFunc("/playback/playlist", s.handleLoadPlaylist)
	mux.HandleFunc("/playback/append", s.handleAppend)
	mux.HandleFunc("/playback/generator", s.handleGenerator)
	mux.HandleFunc("/playback/play", s.handlePlay)
	mux.HandleFunc("/playback/pause", s.handlePause)
	mux.HandleFunc("/playback/stop", s.handleStop)
	mux.HandleFunc("/playback/warmup", s.handleWarmUp)
	mux.HandleFunc("/playback/seek", s.handleSeek)
	mux.HandleFunc("/playback/skip-forward", s.handleSkipForward)
	mux.HandleFunc("/playback/skip-backward", s.handleSkipBackward)
	mux.HandleFunc("/playback/rate", s.handleRate)
	mux.HandleFunc("/playback/status", s.handleStatus)
	mux.HandleFunc("/listen-history", s.handleListenHistory)
	mux.HandleFunc("/listen-history/", s.handleListenHistoryByID)
	mux.HandleFunc("/internal/health/player", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "voicestream",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/internal/health/player"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close shuts down the WebSocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// BroadcastSnapshot pushes a playback snapshot to every connected client.
// Wired as a coordinator subscriber.
func (s *Server) BroadcastSnapshot(snap domain.Snapshot) {
	if s.wsHub != nil {
		s.wsHub.Broadcast("snapshot", snap)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"isPlaying": snap.IsPlaying,
		"entryId":   snap.EntryID,
	})
}
