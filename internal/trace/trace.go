// Package trace implements the append-only invocation log that the flow
// engine records to and the Mermaid renderer reads from.
package trace

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/G14MB0/conductor/internal/node"
)

// previewLimit bounds the compact input/output previews embedded in each
// entry so Mermaid diagram labels stay legible (spec.md §4.4/§9).
const previewLimit = 200

const truncationMarker = "…(truncated)"

// Entry records one completed node invocation.
type Entry struct {
	NodeID     string      `json:"node_id"`
	Sequence   uint64      `json:"sequence"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	DurationMs int64       `json:"duration_ms"`
	Input      node.Input  `json:"input"`
	Output     node.Output `json:"output"`
	Status     string      `json:"status"`
	Scheduled  []string    `json:"scheduled"`
	Error      *string     `json:"error,omitempty"`
	InputPrev  string      `json:"input_preview"`
	OutputPrev string      `json:"output_preview"`
}

// Preview renders v as compact JSON truncated to previewLimit characters,
// appending a truncation marker when the source was longer.
func Preview(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "<unprintable>"
	}
	s := string(raw)
	if len(s) <= previewLimit {
		return s
	}
	cut := previewLimit - len(truncationMarker)
	if cut < 0 {
		cut = 0
	}
	return s[:cut] + truncationMarker
}

// NewEntry builds an Entry, computing previews and duration from the
// supplied timestamps.
func NewEntry(nodeID string, seq uint64, started, finished time.Time, in node.Input, out node.Output, scheduled []string, errMsg *string) Entry {
	return Entry{
		NodeID:     nodeID,
		Sequence:   seq,
		StartedAt:  started,
		FinishedAt: finished,
		DurationMs: finished.Sub(started).Milliseconds(),
		Input:      in,
		Output:     out,
		Status:     out.Status,
		Scheduled:  scheduled,
		Error:      errMsg,
		InputPrev:  Preview(in.Payload),
		OutputPrev: Preview(out.Data),
	}
}

// Recorder is a mutex-guarded, append-only list of Entry values.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
	seq     uint64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// NextSequence atomically reserves and returns the next dispatch sequence
// number. Called at dispatch time, not completion time, so entries remain
// orderable by dispatch order even though they are appended in completion
// order (spec.md §4.2).
func (r *Recorder) NextSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// Append records a completed invocation. Appends are atomic with respect
// to concurrent Append/Snapshot calls.
func (r *Recorder) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Snapshot returns a copy of the entries recorded so far, in completion
// order.
func (r *Recorder) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
