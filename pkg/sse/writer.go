package sse

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrStreamClosed is returned by Writer methods once the done frame has been
// written.
var ErrStreamClosed = errors.New("sse: stream already terminated")

// doneFrame is the sole terminal marker of the downstream stream.
const doneFrame = "data: [DONE]\n\n"

// escaper escapes text for embedding in a JSON string literal.
// strings.Replacer substitutes in a single pass, so a backslash produced by
// one substitution is never escaped again.
var escaper = newEscaper()

func newEscaper() *strings.Replacer {
	pairs := []string{
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	}

	// The remaining C0 control characters would make the payload invalid JSON.
	for c := rune(0); c < 0x20; c++ {
		switch c {
		case '\n', '\r', '\t':
			continue
		}
		pairs = append(pairs, string(c), fmt.Sprintf(`\u%04x`, c))
	}

	return strings.NewReplacer(pairs...)
}

// Escape escapes s for use inside a JSON string.
func Escape(s string) string {
	return escaper.Replace(s)
}

// FrameKind identifies the type of a downstream frame.
type FrameKind string

const (
	FrameText  FrameKind = "text"
	FrameError FrameKind = "error"
	FrameDone  FrameKind = "done"
)

// Writer writes the normalized downstream frame grammar:
//
//	data: {"text": "<escaped>"}\n\n
//	data: {"error": {"message": "<escaped>"}}\n\n
//	data: [DONE]\n\n
//
// No other fields (event, id, retry) are ever written. After the done frame
// every write fails with ErrStreamClosed.
type Writer struct {
	dest   io.Writer
	done   bool
	counts map[FrameKind]int
}

// NewWriter returns a Writer that writes frames to dest.
func NewWriter(dest io.Writer) *Writer {
	return &Writer{
		dest:   dest,
		counts: make(map[FrameKind]int, 3),
	}
}

// WriteText writes a text delta frame.
func (w *Writer) WriteText(text string) error {
	return w.write(FrameText, `data: {"text": "`+Escape(text)+`"}`+"\n\n")
}

// WriteError writes an error frame carrying message.
func (w *Writer) WriteError(message string) error {
	return w.write(FrameError, `data: {"error": {"message": "`+Escape(message)+`"}}`+"\n\n")
}

// WriteDone writes the terminal done frame. It may succeed at most once.
func (w *Writer) WriteDone() error {
	if err := w.write(FrameDone, doneFrame); err != nil {
		return err
	}
	w.done = true
	return nil
}

// Done reports whether the done frame has been written.
func (w *Writer) Done() bool {
	return w.done
}

// Count returns the number of frames of the given kind written so far.
func (w *Writer) Count(kind FrameKind) int {
	return w.counts[kind]
}

func (w *Writer) write(kind FrameKind, frame string) error {
	if w.done {
		return ErrStreamClosed
	}

	if _, err := io.WriteString(w.dest, frame); err != nil {
		return err
	}

	w.counts[kind]++
	return nil
}
