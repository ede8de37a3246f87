// Package eventstream defines the stream lifecycle events gemrelay can
// publish to an external event backend, and the Publisher contract backends
// implement.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeStreamFinished is emitted once a relayed stream has ended,
	// however it ended.
	EventTypeStreamFinished = "gemrelay.stream.finished"
)

// StreamFinishedEvent is a transport-neutral summary of one relayed stream.
type StreamFinishedEvent struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	EventID       string       `json:"event_id"`
	EmittedAt     time.Time    `json:"emitted_at"`
	Stream        StreamMeta   `json:"stream"`
	Frames        FrameCounts  `json:"frames"`
	Upstream      UpstreamMeta `json:"upstream"`
}

// StreamMeta identifies the stream and how it ended.
type StreamMeta struct {
	ID           string `json:"id"`
	Mnemonic     string `json:"mnemonic"`
	Model        string `json:"model"`
	Outcome      string `json:"outcome"`
	FinishReason string `json:"finish_reason,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"duration_ms"`
}

// FrameCounts tallies the frames written to the client.
type FrameCounts struct {
	Text  int  `json:"text"`
	Error int  `json:"error"`
	Done  bool `json:"done"`
}

// UpstreamMeta captures the upstream response. Status is zero when no response
// was received.
type UpstreamMeta struct {
	Status int `json:"status,omitempty"`
}

// NewStreamFinishedEvent returns an event stamped with a fresh ID, the
// current schema version, and the current time.
func NewStreamFinishedEvent(stream StreamMeta, frames FrameCounts, upstream UpstreamMeta) *StreamFinishedEvent {
	return &StreamFinishedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeStreamFinished,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Stream:        stream,
		Frames:        frames,
		Upstream:      upstream,
	}
}
