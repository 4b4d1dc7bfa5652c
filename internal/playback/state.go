package playback

import (
	"fmt"
	"sync"
	"time"

	"voicestream/internal/metrics"
)

// State represents the coordinator's position in the playback lifecycle.
type State int

const (
	StateIdle           State = iota
	StateLoading              // Segment resource being created/fetched
	StatePlaying              // Live resource producing audio
	StatePaused               // Live resource held, not advancing
	StateWaitingForMore       // Queue exhausted, upstream generator still running
	StateEnded                // Whole stream finished; metadata kept for scrubbing
)

var stateNames = [...]string{
	"idle", "loading", "playing", "paused", "waiting_for_more", "ended",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// validTransitions defines the allowed state transitions.
var validTransitions = map[State][]State{
	StateIdle:           {StateLoading},
	StateLoading:        {StatePlaying, StatePaused, StateLoading, StateWaitingForMore, StateEnded, StateIdle},
	StatePlaying:        {StatePaused, StateLoading, StateWaitingForMore, StateEnded, StateIdle},
	StatePaused:         {StatePlaying, StateLoading, StateWaitingForMore, StateEnded, StateIdle},
	StateWaitingForMore: {StateLoading, StateEnded, StateIdle},
	StateEnded:          {StateLoading, StatePlaying, StatePaused, StateIdle},
}

func canTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Controller owns the state machine and the session generation counter for a
// single playback engine. The generation is the implicit cancellation token:
// it is incremented on every segment load/switch, and every asynchronous
// callback compares its captured generation against the live one before
// touching shared state.
type Controller struct {
	mu         sync.RWMutex
	state      State
	generation uint64
	stateTime  time.Time
	listeners  []func(from, to State)
}

// NewController creates a controller in the Idle state.
func NewController() *Controller {
	return &Controller{
		state:     StateIdle,
		stateTime: time.Now(),
	}
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Generation returns the live session generation.
func (c *Controller) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// NextGeneration increments and returns the session generation, invalidating
// every callback captured under an earlier value.
func (c *Controller) NextGeneration() uint64 {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()
	return gen
}

// StateDuration returns how long the controller has been in the current state.
func (c *Controller) StateDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Since(c.stateTime)
}

// Transition attempts to move from the current state to the target state.
// Returns an error if the transition is not valid.
func (c *Controller) Transition(to State) error {
	c.mu.Lock()
	from := c.state
	if !canTransition(from, to) {
		c.mu.Unlock()
		return fmt.Errorf("invalid playback state transition: %s -> %s", from, to)
	}
	c.state = to
	c.stateTime = time.Now()
	listeners := make([]func(from, to State), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	metrics.StateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()

	for _, fn := range listeners {
		fn(from, to)
	}
	return nil
}

// force moves to the target state without validity checking. Only the
// coordinator's defensive path uses it, after logging the violation.
func (c *Controller) force(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.stateTime = time.Now()
	listeners := make([]func(from, to State), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	metrics.StateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()

	for _, fn := range listeners {
		fn(from, to)
	}
}

// OnTransition registers a listener that is called after every state change.
func (c *Controller) OnTransition(fn func(from, to State)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}
