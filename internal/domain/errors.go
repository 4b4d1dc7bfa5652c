package domain

import "errors"

var ErrNotFound = errors.New("not found")
var ErrEmptyQueue = errors.New("queue has no segments")
var ErrInvalidSeek = errors.New("invalid seek target")

// ErrQueueSuperseded is returned when an append resolved against a queue that
// was replaced or stopped while the segment's duration was being resolved.
var ErrQueueSuperseded = errors.New("queue superseded")

// ErrAutoplayBlocked is returned by a playback resource whose environment
// refuses programmatic playback start outside a user gesture. It is expected
// policy, not a failure; the coordinator swallows it.
var ErrAutoplayBlocked = errors.New("autoplay blocked")
