package playback

import "testing"

func TestOffsetConfirm(t *testing.T) {
	cases := []struct {
		name         string
		continuous   bool
		prior        float64
		raw          float64
		pendingLocal float64
		want         float64
	}{
		{"continuous matches provisional", true, 600, 601.4, 0, 600},
		{"continuous with pending seek", true, 600, 701.2, 100, 600},
		{"continuous but decoder resets", true, 600, 0.3, 0, 0},
		{"resetting container", false, 0, 0.2, 0, 0},
		{"resetting with pending seek", false, 0, 12.4, 12, 0},
		{"neither class adopts raw", true, 600, 350, 0, 350},
		{"neither class with pending", false, 0, 350, 10, 340},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := newOffsetState(tc.continuous, tc.prior)
			o.confirm(tc.raw, tc.pendingLocal)
			if !o.confirmed {
				t.Fatalf("offset not confirmed")
			}
			if o.value != tc.want {
				t.Fatalf("offset = %f, want %f", o.value, tc.want)
			}
		})
	}
}

func TestOffsetConfirmIsSticky(t *testing.T) {
	o := newOffsetState(true, 600)
	o.confirm(601, 0)
	o.confirm(0.1, 0)
	if o.value != 600 {
		t.Fatalf("confirmed offset must not change, got %f", o.value)
	}
}

func TestOffsetCurrentBeforeConfirmation(t *testing.T) {
	o := newOffsetState(true, 450)
	if got := o.current(); got != 450 {
		t.Fatalf("provisional offset = %f, want 450", got)
	}
	o.confirm(0.2, 0)
	if got := o.current(); got != 0 {
		t.Fatalf("confirmed offset = %f, want 0", got)
	}
}

func TestContainerContinuous(t *testing.T) {
	cases := []struct {
		url      string
		explicit *bool
		want     bool
	}{
		{"https://cdn.example.com/chunks/p1.webm", nil, true},
		{"https://cdn.example.com/chunks/p1.mkv?sig=abc", nil, true},
		{"https://cdn.example.com/chunks/p1.WEBM", nil, true},
		{"https://cdn.example.com/chunks/p1.mp3", nil, false},
		{"https://cdn.example.com/chunks/p1.m4a#frag", nil, false},
		{"https://cdn.example.com/chunks/p1", nil, false},
		{"https://cdn.example.com/chunks/p1.mp3", boolPtr(true), true},
		{"https://cdn.example.com/chunks/p1.webm", boolPtr(false), false},
	}
	for _, tc := range cases {
		if got := containerContinuous(tc.url, tc.explicit); got != tc.want {
			t.Errorf("containerContinuous(%q, %v) = %v, want %v", tc.url, tc.explicit, got, tc.want)
		}
	}
}

func boolPtr(b bool) *bool { return &b }
