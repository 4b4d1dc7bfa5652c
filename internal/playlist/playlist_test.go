package playlist

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const closedPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.500,
chunk-0.mp3
#EXTINF:8.250,
chunk-1.mp3
#EXTINF:12.000,
https://other.example.com/chunk-2.mp3
#EXT-X-ENDLIST
`

const livePlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:9.500,
chunk-0.mp3
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func servePlaylist(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchClosedPlaylist(t *testing.T) {
	srv := servePlaylist(t, closedPlaylist)
	src := NewSource(srv.Client(), testLogger())

	q, err := src.Fetch(context.Background(), srv.URL+"/entries/e1/audio.m3u8")
	require.NoError(t, err)

	require.Len(t, q.URLs, 3)
	assert.Equal(t, srv.URL+"/entries/e1/chunk-0.mp3", q.URLs[0])
	assert.Equal(t, srv.URL+"/entries/e1/chunk-1.mp3", q.URLs[1])
	// Absolute segment URIs pass through unchanged.
	assert.Equal(t, "https://other.example.com/chunk-2.mp3", q.URLs[2])

	require.Len(t, q.Durations, 3)
	assert.InDelta(t, 9.5, *q.Durations[0], 0.001)
	assert.InDelta(t, 8.25, *q.Durations[1], 0.001)
	assert.InDelta(t, 12.0, *q.Durations[2], 0.001)

	assert.False(t, q.GeneratorActive, "ENDLIST playlist must not be live")
}

func TestFetchLivePlaylistMarksGeneratorActive(t *testing.T) {
	srv := servePlaylist(t, livePlaylist)
	src := NewSource(srv.Client(), testLogger())

	q, err := src.Fetch(context.Background(), srv.URL+"/audio.m3u8")
	require.NoError(t, err)
	require.Len(t, q.URLs, 1)
	assert.True(t, q.GeneratorActive, "open playlist means the generator is still writing")
}

func TestFetchRejectsNonMediaPlaylist(t *testing.T) {
	master := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=128000
low/audio.m3u8
`
	srv := servePlaylist(t, master)
	src := NewSource(srv.Client(), testLogger())

	_, err := src.Fetch(context.Background(), srv.URL+"/audio.m3u8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a media playlist")
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	src := NewSource(srv.Client(), testLogger())

	_, err := src.Fetch(context.Background(), srv.URL+"/missing.m3u8")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}
