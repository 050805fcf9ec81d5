package api

import "sync"

// StreamRegistry tracks the single active pipeline stream per job, mirroring
// cmd/fanout's Hub (there keyed by username, broadcasting over WebSocket;
// here keyed by job id, fronting one SSE connection). Spec section 6: "a
// single-user model is assumed — one active stream per job."
type StreamRegistry struct {
	mu      sync.Mutex
	streams map[string]*activeStream
}

type activeStream struct {
	stop func()
}

// NewStreamRegistry returns an empty registry.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{streams: map[string]*activeStream{}}
}

// Register records the active stream for a job, replacing (and not
// stopping) whatever was previously registered — callers are expected to
// reject a second concurrent run before calling Register.
func (r *StreamRegistry) Register(jobID string, stop func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[jobID] = &activeStream{stop: stop}
}

// Unregister clears a job's active stream entry once it finishes.
func (r *StreamRegistry) Unregister(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, jobID)
}

// Active reports whether a job currently has a running stream.
func (r *StreamRegistry) Active(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.streams[jobID]
	return ok
}

// Stop requests a cooperative stop of a job's active stream, if any. Returns
// false if no stream is running for the job.
func (r *StreamRegistry) Stop(jobID string) bool {
	r.mu.Lock()
	s, ok := r.streams[jobID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.stop()
	return true
}
