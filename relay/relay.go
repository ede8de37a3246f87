// Package relay provides the streaming relay: it accepts chat generation
// requests, opens one streaming request to the upstream API per client, and
// re-frames the upstream event stream into gemrelay's normalized event grammar.
package relay

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/google/uuid"

	"github.com/papercomputeco/gemrelay/pkg/metrics"
	"github.com/papercomputeco/gemrelay/pkg/sse"
	"github.com/papercomputeco/gemrelay/relay/header"
	"github.com/papercomputeco/gemrelay/relay/worker"
)

//go:embed static/index.html
var staticFS embed.FS

// Upstream opens streaming generation requests. *gemini.Client satisfies it.
type Upstream interface {
	StreamGenerateContent(ctx context.Context, model string, contents json.RawMessage) (*http.Response, error)
}

// errorResponse is the body of a synchronous (non-stream) error.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Relay is the client-facing HTTP server. Each POST /api/gemini is relayed on
// its own goroutine; stream summaries are recorded off the hot path by the
// worker pool.
type Relay struct {
	config        Config
	upstream      Upstream
	collector     *metrics.Collector
	workerPool    *worker.Pool
	logger        *slog.Logger
	server        *fiber.App
	headerHandler *header.Handler

	// streams tracks relay goroutines still writing to a client.
	streams sync.WaitGroup
}

// New creates a new Relay. A nil collector gets a private registry.
func New(config Config, upstream Upstream, collector *metrics.Collector, logger *slog.Logger) (*Relay, error) {
	if upstream == nil {
		return nil, errors.New("upstream is required")
	}
	if config.Models == nil {
		return nil, errors.New("model table is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if collector == nil {
		collector = metrics.NewCollector(nil)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		AppName:               "gemrelay",
		ErrorHandler:          errorHandler,
	})

	wp, err := worker.NewPool(&worker.Config{
		Recorder:  collector,
		Publisher: config.Publisher,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	r := &Relay{
		config:        config,
		upstream:      upstream,
		collector:     collector,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		headerHandler: header.NewHandler(),
	}

	// Event streams are never compressed: the compressor would hold frames
	// back until its buffer fills.
	app.Get("/", compress.New(), r.handleIndex)
	app.Get("/health", r.handleHealth)
	app.Post("/api/gemini", r.handleGenerate)

	if config.EnableMetrics {
		app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))
	}

	return r, nil
}

// Run starts the relay server on the configured listening address
func (r *Relay) Run() error {
	r.logger.Info("starting relay server",
		"listen", r.config.ListenAddr,
		"default_model", r.config.Models.Default(),
		"metrics", r.config.EnableMetrics,
	)

	return r.server.Listen(r.config.ListenAddr)
}

// RunWithListener starts the relay server using the provided listener.
func (r *Relay) RunWithListener(listener net.Listener) error {
	r.logger.Info("starting relay server",
		"listen", listener.Addr().String(),
		"default_model", r.config.Models.Default(),
		"metrics", r.config.EnableMetrics,
	)

	return r.server.Listener(listener)
}

// Close gracefully shuts down the server, waits for in-flight streams to
// finish, then drains the worker pool.
func (r *Relay) Close() error {
	err := r.server.Shutdown()
	r.streams.Wait()
	r.workerPool.Close()
	return err
}

// ShutdownWithTimeout is Close bounded by timeout for the HTTP server.
// Streams still running past the deadline are left to finish on their own;
// their summaries are dropped.
func (r *Relay) ShutdownWithTimeout(timeout time.Duration) error {
	err := r.server.ShutdownWithTimeout(timeout)

	done := make(chan struct{})
	go func() {
		r.streams.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.logger.Warn("streams still running at shutdown deadline")
	}

	r.workerPool.Close()
	return err
}

func (r *Relay) handleIndex(c *fiber.Ctx) error {
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(page)
}

func (r *Relay) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleGenerate validates the request synchronously, then hands the stream
// to its own goroutine.
func (r *Relay) handleGenerate(c *fiber.Ctx) error {
	req, err := parseRequest(c)
	if err != nil {
		r.logger.Debug("rejecting malformed request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: errorBody{Message: err.Error()}})
	}

	mnemonic, model := r.config.Models.Resolve(req.ModelType)
	streamID := uuid.NewString()

	r.logger.Info("stream started",
		"stream_id", streamID,
		"mnemonic", mnemonic,
		"model", model,
		"requested", req.ModelType,
	)

	r.headerHandler.SetStreamHeaders(c, streamID)
	c.Status(fiber.StatusOK)

	// Use io.Pipe + SetBodyStream instead of SetBodyStreamWriter.
	// SetBodyStreamWriter buffers through bufio.Writers, so a Flush in the
	// callback does not reach the TCP socket. With io.Pipe, pw.Write blocks
	// until fasthttp's chunked body writer has consumed and flushed the
	// frame, which gives per-frame delivery and backpressure on the upstream
	// read loop.
	pr, pw := io.Pipe()

	s := &stream{
		id:          streamID,
		mnemonic:    mnemonic,
		model:       model,
		contents:    req.Contents,
		started:     time.Now(),
		upstream:    r.upstream,
		frames:      sse.NewWriter(pw),
		reassembler: sse.NewLineReassembler(),
		logger:      r.logger,
	}

	r.streams.Add(1)
	go func() {
		defer r.streams.Done()
		defer pw.Close()

		// context.Background() instead of c.Context(): fasthttp recycles its
		// RequestCtx after the handler returns, while this goroutine keeps
		// the upstream connection open.
		summary := s.run(context.Background())
		r.workerPool.Enqueue(summary)
	}()

	// Unknown size (-1) triggers chunked transfer encoding in fasthttp.
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

// errorHandler renders fiber errors (unknown routes, wrong methods, oversized
// bodies) in the same JSON shape as request validation errors.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	return c.Status(code).JSON(errorResponse{Error: errorBody{Message: err.Error()}})
}
