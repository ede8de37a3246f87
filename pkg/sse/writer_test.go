package sse_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/gemrelay/pkg/sse"
)

// failingWriter fails every write, simulating a disconnected client.
type failingWriter struct{}

var errDisconnected = errors.New("client went away")

func (failingWriter) Write([]byte) (int, error) { return 0, errDisconnected }

// decodeFrame strips the "data: " prefix and the "\n\n" terminator and decodes
// the JSON payload.
func decodeFrame(frame string) map[string]any {
	Expect(frame).To(HavePrefix("data: "))
	Expect(frame).To(HaveSuffix("\n\n"))
	payload := strings.TrimSuffix(strings.TrimPrefix(frame, "data: "), "\n\n")

	var parsed map[string]any
	Expect(json.Unmarshal([]byte(payload), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Writer", func() {
	var (
		buf *bytes.Buffer
		w   *sse.Writer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		w = sse.NewWriter(buf)
	})

	It("writes a text frame in the exact wire format", func() {
		Expect(w.WriteText("Hello")).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"text\": \"Hello\"}\n\n"))
		Expect(w.Count(sse.FrameText)).To(Equal(1))
	})

	It("writes an error frame in the exact wire format", func() {
		Expect(w.WriteError("rate limited")).To(Succeed())
		Expect(buf.String()).To(Equal("data: {\"error\": {\"message\": \"rate limited\"}}\n\n"))
		Expect(w.Count(sse.FrameError)).To(Equal(1))
	})

	It("writes the done frame", func() {
		Expect(w.WriteDone()).To(Succeed())
		Expect(buf.String()).To(Equal("data: [DONE]\n\n"))
		Expect(w.Done()).To(BeTrue())
	})

	It("refuses every frame after the done frame", func() {
		Expect(w.WriteText("a")).To(Succeed())
		Expect(w.WriteDone()).To(Succeed())

		Expect(w.WriteText("b")).To(MatchError(sse.ErrStreamClosed))
		Expect(w.WriteError("c")).To(MatchError(sse.ErrStreamClosed))
		Expect(w.WriteDone()).To(MatchError(sse.ErrStreamClosed))

		Expect(buf.String()).To(Equal("data: {\"text\": \"a\"}\n\ndata: [DONE]\n\n"))
		Expect(strings.Count(buf.String(), "[DONE]")).To(Equal(1))
	})

	It("returns the underlying write error and does not count the frame", func() {
		fw := sse.NewWriter(failingWriter{})
		Expect(fw.WriteText("x")).To(MatchError(errDisconnected))
		Expect(fw.Count(sse.FrameText)).To(BeZero())
		Expect(fw.Done()).To(BeFalse())
	})

	DescribeTable("escaped payloads decode back to the original text",
		func(text string) {
			Expect(w.WriteText(text)).To(Succeed())
			Expect(decodeFrame(buf.String())["text"]).To(Equal(text))

			buf.Reset()
			Expect(w.WriteError(text)).To(Succeed())
			errObj, ok := decodeFrame(buf.String())["error"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(errObj["message"]).To(Equal(text))
		},
		Entry("plain", "hello world"),
		Entry("backslashes", `C:\path\to\file \\ end\`),
		Entry("quotes", `she said "hi" and "bye"`),
		Entry("newlines", "line one\nline two\n"),
		Entry("carriage returns", "a\r\nb\r"),
		Entry("tabs", "col1\tcol2\t"),
		Entry("escape-looking text", `\n is not a newline, \" is not a quote`),
		Entry("unicode", "ünïcødé ✓ 日本語 🎉"),
		Entry("other control characters", "bell\a null\x00 esc\x1b"),
		Entry("frame terminator injection", "x\"}\n\ndata: [DONE]\n\n"),
	)

	Describe("Escape", func() {
		It("escapes the backslash before anything else", func() {
			Expect(sse.Escape("\\\n")).To(Equal(`\\\n`))
			Expect(sse.Escape(`\"`)).To(Equal(`\\\"`))
		})

		It("never leaves a raw newline in the output", func() {
			Expect(sse.Escape("a\nb\r\nc")).NotTo(ContainSubstring("\n"))
		})
	})
})

var _ = Describe("DataPayload", func() {
	DescribeTable("classifies upstream lines",
		func(line, payload string, ok bool) {
			got, gotOK := sse.DataPayload(line)
			Expect(gotOK).To(Equal(ok))
			Expect(got).To(Equal(payload))
		},
		Entry("data with space", "data: {\"a\":1}", "{\"a\":1}", true),
		Entry("data without space", "data:{\"a\":1}", "{\"a\":1}", true),
		Entry("surrounding whitespace and CR", "  data:   [DONE]  \r", "[DONE]", true),
		Entry("empty data", "data:", "", true),
		Entry("blank line", "", "", false),
		Entry("whitespace only", " \t\r", "", false),
		Entry("comment", ": keep-alive", "", false),
		Entry("event field", "event: message", "", false),
		Entry("raw json", "{\"a\":1}", "", false),
	)
})
