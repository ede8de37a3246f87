package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/papercomputeco/gemrelay/pkg/gemini"
	"github.com/papercomputeco/gemrelay/pkg/sse"
	"github.com/papercomputeco/gemrelay/pkg/utils"
	"github.com/papercomputeco/gemrelay/relay/worker"
)

const (
	// readBufferSize is the size of each upstream body read.
	readBufferSize = 32 * 1024

	// maxRejectionBody caps how much of a non-success upstream body is read.
	maxRejectionBody = 64 * 1024

	// fallbackErrorMessage replaces an empty upstream error message.
	fallbackErrorMessage = "upstream error"
)

// errClientGone wraps a failed write to the client.
var errClientGone = errors.New("client connection closed")

// stream is the state of one relayed request. It is owned by a single
// goroutine and never shared.
type stream struct {
	id       string
	mnemonic string
	model    string
	contents []byte
	started  time.Time

	upstream    Upstream
	frames      *sse.Writer
	reassembler *sse.LineReassembler
	logger      *slog.Logger

	upstreamStatus int
	finishReason   string
}

// run relays the upstream response into the client frame grammar and returns
// the summary of how the stream ended. The upstream body is always released
// before run returns.
func (s *stream) run(ctx context.Context) worker.Job {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcome, err := s.relay(ctx)

	switch {
	case errors.Is(err, errClientGone):
		outcome = worker.OutcomeDisconnected
	case err != nil:
		// Best effort: the client may already be gone.
		_ = s.frames.WriteError(err.Error())
		outcome = worker.OutcomeAborted
	}

	return worker.Job{
		StreamID:       s.id,
		Mnemonic:       s.mnemonic,
		Model:          s.model,
		Outcome:        outcome,
		UpstreamStatus: s.upstreamStatus,
		FinishReason:   s.finishReason,
		TextFrames:     s.frames.Count(sse.FrameText),
		ErrorFrames:    s.frames.Count(sse.FrameError),
		DoneWritten:    s.frames.Done(),
		Err:            err,
		Duration:       time.Since(s.started),
	}
}

// relay drives the upstream request. A returned error that does not wrap
// errClientGone aborts the stream without the done frame.
func (s *stream) relay(ctx context.Context) (worker.Outcome, error) {
	resp, err := s.upstream.StreamGenerateContent(ctx, s.model, s.contents)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	s.upstreamStatus = resp.StatusCode

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return worker.OutcomeRejected, s.reject(resp)
	}

	buf := make([]byte, readBufferSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, line := range s.reassembler.Feed(buf[:n]) {
				if err := s.handleLine(line); err != nil {
					return "", err
				}
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if partial := s.reassembler.Buffered(); partial != "" {
				s.logger.Debug("discarding partial upstream line",
					"stream_id", s.id,
					"partial", utils.Truncate(partial, 120),
				)
			}
			return "", fmt.Errorf("reading upstream stream: %w", readErr)
		}
	}

	// The upstream may close without a trailing newline.
	if line, ok := s.reassembler.Flush(); ok {
		if err := s.handleLine(line); err != nil {
			return "", err
		}
	}

	return worker.OutcomeCompleted, s.finish()
}

// reject reports a non-success upstream response as a single error frame
// followed by the done frame.
func (s *stream) reject(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRejectionBody))
	if err != nil {
		return fmt.Errorf("reading upstream error body: %w", err)
	}

	msg := gemini.RejectionMessage(resp.StatusCode, body)
	s.logger.Debug("upstream rejected request",
		"stream_id", s.id,
		"status", resp.StatusCode,
		"message", msg,
	)

	if err := s.frames.WriteError(msg); err != nil {
		return fmt.Errorf("%w: %w", errClientGone, err)
	}

	return s.finish()
}

// handleLine interprets one reassembled upstream line. Lines that are blank,
// comments, non-data fields, the upstream's own sentinel, or not a JSON
// object produce no frames.
func (s *stream) handleLine(line string) error {
	payload, ok := sse.DataPayload(line)
	if !ok || payload == sse.DoneSentinel {
		return nil
	}

	ev, ok := gemini.ParseEvent(payload)
	if !ok {
		s.logger.Debug("skipping non-JSON data line", "stream_id", s.id, "payload", utils.Truncate(payload, 120))
		return nil
	}

	if reason := ev.FinishReason(); reason != "" {
		s.finishReason = reason
	}

	if text := ev.Text(); text != "" {
		if err := s.frames.WriteText(text); err != nil {
			return fmt.Errorf("%w: %w", errClientGone, err)
		}
	}

	if msg, ok := ev.ErrorMessage(); ok {
		if msg == "" {
			msg = fallbackErrorMessage
		}
		if err := s.frames.WriteError(msg); err != nil {
			return fmt.Errorf("%w: %w", errClientGone, err)
		}
	}

	return nil
}

func (s *stream) finish() error {
	if err := s.frames.WriteDone(); err != nil {
		return fmt.Errorf("%w: %w", errClientGone, err)
	}
	return nil
}
