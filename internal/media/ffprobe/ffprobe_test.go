package ffprobe

import "testing"

func TestParse(t *testing.T) {
	out := []byte(`{
		"format": {
			"format_name": "matroska,webm",
			"duration": "612.480000",
			"start_time": "600.000000"
		},
		"streams": [
			{"codec_type": "video", "codec_name": "vp9"},
			{"codec_type": "audio", "codec_name": "opus"}
		]
	}`)

	info, err := parse(out, "chunk.webm")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Duration != 612.48 {
		t.Errorf("duration = %f", info.Duration)
	}
	if info.StartTime != 600 {
		t.Errorf("start time = %f", info.StartTime)
	}
	if info.Codec != "opus" {
		t.Errorf("codec = %q", info.Codec)
	}
	if info.Container != "matroska,webm" {
		t.Errorf("container = %q", info.Container)
	}
}

func TestParseMissingStartTime(t *testing.T) {
	out := []byte(`{"format": {"format_name": "mp3", "duration": "9.72"}}`)
	info, err := parse(out, "chunk.mp3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.StartTime != 0 {
		t.Errorf("start time = %f, want 0", info.StartTime)
	}
	if info.Duration != 9.72 {
		t.Errorf("duration = %f", info.Duration)
	}
}

func TestParseRejectsMissingDuration(t *testing.T) {
	out := []byte(`{"format": {"format_name": "mp3"}}`)
	if _, err := parse(out, "chunk.mp3"); err == nil {
		t.Fatalf("expected error for missing duration")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := parse([]byte("not json"), "chunk.mp3"); err == nil {
		t.Fatalf("expected error for malformed output")
	}
}
