// Package worker provides an asynchronous worker pool that records completed
// stream summaries to metrics, the log, and an optional event stream.
//
// The pool decouples bookkeeping from the relay's streaming hot path so that a
// slow metrics registry or log sink never holds up frames bound for a client.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/gemrelay/pkg/eventstream"
	"github.com/papercomputeco/gemrelay/pkg/eventstream/nop"
)

var (
	defaultNumWorkers   uint = 2
	defaultJobQueueSize uint = 256

	publishTimeout = 5 * time.Second
)

// Outcome is how a relayed stream ended.
type Outcome string

const (
	// OutcomeCompleted means the upstream body was fully relayed and the done
	// frame written.
	OutcomeCompleted Outcome = "completed"

	// OutcomeRejected means the upstream answered with a non-success status.
	OutcomeRejected Outcome = "rejected"

	// OutcomeAborted means a transport or read failure ended the stream.
	OutcomeAborted Outcome = "aborted"

	// OutcomeDisconnected means the client went away mid-stream.
	OutcomeDisconnected Outcome = "disconnected"
)

// Job is the summary of one relayed stream.
type Job struct {
	StreamID string
	Mnemonic string
	Model    string
	Outcome  Outcome

	// UpstreamStatus is zero when no upstream response was received.
	UpstreamStatus int

	// FinishReason is the last finish reason the upstream reported, if any.
	FinishReason string

	TextFrames  int
	ErrorFrames int
	DoneWritten bool

	// Err is the failure that ended an aborted or disconnected stream.
	Err error

	Duration time.Duration
}

// Recorder receives stream summaries. *metrics.Collector satisfies it.
type Recorder interface {
	RecordStream(model, outcome string, duration time.Duration)
	RecordFrames(kind string, n int)
	RecordUpstreamStatus(code int)
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Recorder is the optional metrics sink.
	Recorder Recorder

	// Publisher receives one event per stream. Defaults to a no-op publisher.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool processes stream summaries asynchronously via a worker pool.
type Pool struct {
	config *Config
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	queue  chan Job
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if c.Publisher == nil {
		c.Publisher = nop.NewPublisher()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"stream_id", job.StreamID,
		)
		return false
	}

	select {
	case p.queue <- job:
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"stream_id", job.StreamID,
			"model", job.Model,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the relay HTTP server has stopped.
// Close is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob records a stream summary to the recorder, the log, and the
// publisher.
func (p *Pool) processJob(job Job) {
	if r := p.config.Recorder; r != nil {
		r.RecordStream(job.Model, string(job.Outcome), job.Duration)
		r.RecordFrames("text", job.TextFrames)
		r.RecordFrames("error", job.ErrorFrames)
		if job.DoneWritten {
			r.RecordFrames("done", 1)
		}
		if job.UpstreamStatus != 0 {
			r.RecordUpstreamStatus(job.UpstreamStatus)
		}
	}

	attrs := []any{
		"stream_id", job.StreamID,
		"model", job.Model,
		"mnemonic", job.Mnemonic,
		"outcome", string(job.Outcome),
		"upstream_status", job.UpstreamStatus,
		"finish_reason", job.FinishReason,
		"text_frames", job.TextFrames,
		"error_frames", job.ErrorFrames,
		"done", job.DoneWritten,
		"duration", job.Duration,
	}

	switch job.Outcome {
	case OutcomeAborted:
		p.logger.Error("stream aborted", append(attrs, "error", job.Err)...)
	case OutcomeDisconnected:
		p.logger.Warn("client disconnected", append(attrs, "error", job.Err)...)
	case OutcomeRejected:
		p.logger.Warn("upstream rejected stream", attrs...)
	default:
		p.logger.Info("stream finished", attrs...)
	}

	p.publish(job)
}

func (p *Pool) publish(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.config.Publisher.PublishStream(ctx, NewStreamEvent(job)); err != nil {
		p.logger.Warn("could not publish stream event",
			"stream_id", job.StreamID,
			"error", err,
		)
	}
}

// NewStreamEvent converts a stream summary to its event payload.
func NewStreamEvent(job Job) *eventstream.StreamFinishedEvent {
	meta := eventstream.StreamMeta{
		ID:           job.StreamID,
		Mnemonic:     job.Mnemonic,
		Model:        job.Model,
		Outcome:      string(job.Outcome),
		FinishReason: job.FinishReason,
		DurationMs:   job.Duration.Milliseconds(),
	}
	if job.Err != nil {
		meta.Error = job.Err.Error()
	}

	return eventstream.NewStreamFinishedEvent(
		meta,
		eventstream.FrameCounts{Text: job.TextFrames, Error: job.ErrorFrames, Done: job.DoneWritten},
		eventstream.UpstreamMeta{Status: job.UpstreamStatus},
	)
}
