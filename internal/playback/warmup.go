package playback

import (
	"sync"

	"voicestream/internal/domain/ports"
)

// warmCache holds at most one pre-unlocked audio resource. Autoplay policies
// only allow starting audio from a direct user action, so the UI calls WarmUp
// on a tap and the coordinator consumes the unlocked resource on the next
// segment load. Single use: once taken it is gone.
type warmCache struct {
	mu  sync.Mutex
	res ports.AudioResource
}

func (w *warmCache) put(res ports.AudioResource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.res != nil {
		_ = w.res.Close()
	}
	w.res = res
}

func (w *warmCache) take() ports.AudioResource {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := w.res
	w.res = nil
	return res
}

func (w *warmCache) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.res != nil {
		_ = w.res.Close()
		w.res = nil
	}
}
