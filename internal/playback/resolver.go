package playback

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"voicestream/internal/domain"
	"voicestream/internal/domain/ports"
	"voicestream/internal/metrics"
)

const (
	defaultProbeTimeout     = 3 * time.Second
	defaultFallbackDuration = 300.0
	// Anything above ten hours is treated as a decoder artifact, not a real
	// chunk duration.
	maxSaneDuration = 10 * 60 * 60.0
)

func validDuration(d float64) bool {
	return !math.IsNaN(d) && !math.IsInf(d, 0) && d > 0 && d < maxSaneDuration
}

// Resolver turns segment URLs into Segments with a usable duration. Durations
// supplied by the generation service are authoritative and taken verbatim;
// everything else is probed by loading the media metadata, with a fixed
// fallback when the probe times out or fails.
type Resolver struct {
	opener   ports.Opener
	timeout  time.Duration
	fallback float64
	logger   *slog.Logger
}

func NewResolver(opener ports.Opener, timeout time.Duration, fallback float64, logger *slog.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if fallback <= 0 {
		fallback = defaultFallbackDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{opener: opener, timeout: timeout, fallback: fallback, logger: logger}
}

// Resolve resolves the whole queue. When the server supplied a complete
// duration list it is used verbatim with no probing at all; otherwise each
// segment is resolved concurrently.
func (r *Resolver) Resolve(ctx context.Context, urls []string, serverDurations []*float64) []domain.Segment {
	segments := make([]domain.Segment, len(urls))

	if complete(serverDurations, len(urls)) {
		for i, u := range urls {
			segments[i] = domain.Segment{
				Index:          i,
				URL:            u,
				Duration:       *serverDurations[i],
				DurationSource: domain.DurationAuthoritative,
			}
			metrics.DurationResolutionsTotal.WithLabelValues("authoritative").Inc()
		}
		return segments
	}

	var wg sync.WaitGroup
	for i, u := range urls {
		var hint *float64
		if i < len(serverDurations) {
			hint = serverDurations[i]
		}
		wg.Add(1)
		go func(i int, u string, hint *float64) {
			defer wg.Done()
			segments[i] = r.resolveOne(ctx, i, u, hint)
		}(i, u, hint)
	}
	wg.Wait()
	return segments
}

// ResolveOne resolves a single appended segment. The caller assigns the final
// queue index at insert time.
func (r *Resolver) ResolveOne(ctx context.Context, url string, hint *float64) domain.Segment {
	return r.resolveOne(ctx, 0, url, hint)
}

func (r *Resolver) resolveOne(ctx context.Context, index int, url string, hint *float64) domain.Segment {
	if hint != nil && validDuration(*hint) {
		metrics.DurationResolutionsTotal.WithLabelValues("authoritative").Inc()
		return domain.Segment{Index: index, URL: url, Duration: *hint, DurationSource: domain.DurationAuthoritative}
	}

	res := r.opener.NewResource()
	defer func() {
		res.Detach()
		_ = res.Close()
	}()

	found := make(chan float64, 4)
	failed := make(chan error, 1)
	res.Bind(ports.ResourceHandlers{
		OnMetadata: func(d float64) {
			select {
			case found <- d:
			default:
			}
		},
		OnDurationChange: func(d float64) {
			select {
			case found <- d:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	res.Load(url)

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	for {
		select {
		case d := <-found:
			if validDuration(d) {
				metrics.DurationResolutionsTotal.WithLabelValues("probed").Inc()
				return domain.Segment{Index: index, URL: url, Duration: d, DurationSource: domain.DurationProbed}
			}
			// Invalid first report; the backend may revise it before the
			// timeout, keep listening.
		case err := <-failed:
			r.logger.Warn("duration probe failed, using fallback",
				slog.String("url", url), slog.String("error", err.Error()))
			metrics.DurationResolutionsTotal.WithLabelValues("fallback").Inc()
			return domain.Segment{Index: index, URL: url, Duration: r.fallback, DurationSource: domain.DurationFallback}
		case <-timer.C:
			r.logger.Debug("duration probe timed out, using fallback", slog.String("url", url))
			metrics.DurationResolutionsTotal.WithLabelValues("fallback").Inc()
			return domain.Segment{Index: index, URL: url, Duration: r.fallback, DurationSource: domain.DurationFallback}
		case <-ctx.Done():
			metrics.DurationResolutionsTotal.WithLabelValues("fallback").Inc()
			return domain.Segment{Index: index, URL: url, Duration: r.fallback, DurationSource: domain.DurationFallback}
		}
	}
}

func complete(hints []*float64, n int) bool {
	if n == 0 || len(hints) != n {
		return false
	}
	for _, h := range hints {
		if h == nil || !validDuration(*h) {
			return false
		}
	}
	return true
}
