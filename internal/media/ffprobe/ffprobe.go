// Package ffprobe extracts media metadata by shelling out to ffprobe.
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"time"
)

const defaultTimeout = 3 * time.Second

// Info is the subset of ffprobe output the engine cares about. StartTime is
// nonzero for chunks cut out of a continuously timestamped recording.
type Info struct {
	Duration  float64
	StartTime float64
	Codec     string
	Container string
}

type Prober struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

func New(path string, timeout time.Duration, logger *slog.Logger) *Prober {
	if path == "" {
		path = "ffprobe"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{path: path, timeout: timeout, logger: logger}
}

type probeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		StartTime  string `json:"start_time"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe runs ffprobe against the given URL and parses its JSON output.
func (p *Prober) Probe(ctx context.Context, url string) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		url,
	)
	out, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %s: %w", url, err)
	}
	return parse(out, url)
}

func parse(out []byte, url string) (Info, error) {
	var raw probeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return Info{}, fmt.Errorf("ffprobe output for %s: %w", url, err)
	}

	info := Info{Container: raw.Format.FormatName}

	info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	if info.Duration <= 0 {
		return Info{}, fmt.Errorf("ffprobe reported no duration for %s", url)
	}
	info.StartTime, _ = strconv.ParseFloat(raw.Format.StartTime, 64)
	if info.StartTime < 0 {
		info.StartTime = 0
	}

	for _, s := range raw.Streams {
		if s.CodecType == "audio" {
			info.Codec = s.CodecName
			break
		}
	}
	return info, nil
}
