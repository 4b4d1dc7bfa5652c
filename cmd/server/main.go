package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apihttp "voicestream/internal/api/http"
	"voicestream/internal/app"
	"voicestream/internal/media/clockplayer"
	"voicestream/internal/media/ffprobe"
	"voicestream/internal/metrics"
	"voicestream/internal/playback"
	"voicestream/internal/playlist"
	mongorepo "voicestream/internal/repository/mongo"
	"voicestream/internal/telemetry"
	"voicestream/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "voicestream")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "voicestream"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("ffprobePath", cfg.FFProbePath),
		slog.Bool("persistence", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var historyRepo *mongorepo.ListenHistoryRepository
	var settingsRepo *mongorepo.PlayerSettingsRepository
	var disconnectMongo func()

	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		defer cancel()

		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		disconnectMongo = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}

		historyRepo = mongorepo.NewListenHistoryRepository(mongoClient, cfg.MongoDatabase)
		settingsRepo = mongorepo.NewPlayerSettingsRepository(mongoClient, cfg.MongoDatabase)
		if err := historyRepo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
	}

	prober := ffprobe.New(cfg.FFProbePath, cfg.ProbeTimeout, logger)
	opener := clockplayer.New(func(ctx context.Context, url string) (clockplayer.Probe, error) {
		info, err := prober.Probe(ctx, url)
		if err != nil {
			return clockplayer.Probe{}, err
		}
		return clockplayer.Probe{Duration: info.Duration, StartTime: info.StartTime}, nil
	}, cfg.ProbeTimeout+2*time.Second, logger)

	engine := playback.New(playback.Config{
		Opener:         opener,
		Logger:         logger,
		SampleInterval: cfg.SampleInterval,
		ProbeTimeout:   cfg.ProbeTimeout,
		FallbackChunk:  cfg.FallbackChunkSecs,
	})

	// Restore the persisted playback rate preference.
	if settingsRepo != nil {
		ctx, cancel := context.WithTimeout(rootCtx, 3*time.Second)
		if rate, ok, err := settingsRepo.GetPlaybackRate(ctx); err != nil {
			logger.Warn("player settings load failed", slog.String("error", err.Error()))
		} else if ok {
			if err := engine.SetPlaybackRate(rate); err != nil {
				logger.Warn("stored playback rate ignored", slog.Float64("rate", rate))
			}
		}
		cancel()
	}

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithPlaylistSource(playlist.NewSource(nil, logger)),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
	}
	if historyRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithListenHistory(historyRepo))
	}
	if settingsRepo != nil {
		serverOpts = append(serverOpts, apihttp.WithPlayerSettings(settingsRepo))
	}

	handler := apihttp.NewServer(engine, serverOpts...)
	engine.Subscribe(handler.BroadcastSnapshot)

	if historyRepo != nil {
		syncUC := usecase.SyncPosition{
			Snapshot: engine.Snapshot,
			Title:    engine.Title,
			Repo:     historyRepo,
			Logger:   logger,
			Interval: cfg.SyncInterval,
		}
		go syncUC.Run(rootCtx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	engine.Close()
	if disconnectMongo != nil {
		disconnectMongo()
	}

	logger.Info("server stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
