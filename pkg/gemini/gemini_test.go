package gemini_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/gemrelay/pkg/gemini"
)

var _ = Describe("ModelTable", func() {
	var table *gemini.ModelTable

	BeforeEach(func() {
		var err error
		table, err = gemini.NewModelTable(gemini.DefaultModels(), gemini.DefaultMnemonic)
		Expect(err).NotTo(HaveOccurred())
	})

	It("resolves a known mnemonic", func() {
		mnemonic, id := table.Resolve("pro")
		Expect(mnemonic).To(Equal("pro"))
		Expect(id).To(Equal("gemini-2.5-pro"))
	})

	It("falls back to the default for an unknown mnemonic", func() {
		mnemonic, id := table.Resolve("bogus")
		Expect(mnemonic).To(Equal("fast"))
		Expect(id).To(Equal("gemini-2.5-flash"))
	})

	It("falls back to the default for an empty mnemonic", func() {
		_, id := table.Resolve("")
		Expect(id).To(Equal("gemini-2.5-flash"))
	})

	It("lists mnemonics in sorted order", func() {
		Expect(table.Mnemonics()).To(Equal([]string{"fast", "lite", "pro"}))
	})

	It("rejects a default that is not in the table", func() {
		_, err := gemini.NewModelTable(gemini.Models{"a": "model-a"}, "b")
		Expect(err).To(HaveOccurred())
	})

	It("rejects an empty table", func() {
		_, err := gemini.NewModelTable(gemini.Models{}, "fast")
		Expect(err).To(HaveOccurred())
	})

	It("is not affected by later changes to the source map", func() {
		models := gemini.Models{"x": "model-x"}
		t, err := gemini.NewModelTable(models, "x")
		Expect(err).NotTo(HaveOccurred())
		models["x"] = "changed"
		_, id := t.Resolve("x")
		Expect(id).To(Equal("model-x"))
	})
})

var _ = Describe("Event", func() {
	It("concatenates the text of every part of the first candidate", func() {
		ev, ok := gemini.ParseEvent(`{"candidates":[{"content":{"parts":[{"text":"Hel"},{"text":"lo"}]}},{"content":{"parts":[{"text":"ignored"}]}}]}`)
		Expect(ok).To(BeTrue())
		Expect(ev.Text()).To(Equal("Hello"))
	})

	DescribeTable("yields empty text when a level is absent",
		func(payload string) {
			ev, ok := gemini.ParseEvent(payload)
			Expect(ok).To(BeTrue())
			Expect(ev.Text()).To(BeEmpty())
		},
		Entry("no candidates", `{}`),
		Entry("empty candidates", `{"candidates":[]}`),
		Entry("candidate not an object", `{"candidates":["x"]}`),
		Entry("no content", `{"candidates":[{"finishReason":"STOP"}]}`),
		Entry("no parts", `{"candidates":[{"content":{"role":"model"}}]}`),
		Entry("parts without text", `{"candidates":[{"content":{"parts":[{"inlineData":{}}]}}]}`),
		Entry("text not a string", `{"candidates":[{"content":{"parts":[{"text":42}]}}]}`),
	)

	It("reads the finish reason", func() {
		ev, _ := gemini.ParseEvent(`{"candidates":[{"finishReason":"STOP"}]}`)
		Expect(ev.FinishReason()).To(Equal("STOP"))
	})

	Describe("ErrorMessage", func() {
		It("returns the structured message", func() {
			ev, _ := gemini.ParseEvent(`{"error":{"code":500,"message":"internal"}}`)
			msg, ok := ev.ErrorMessage()
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("internal"))
		})

		It("accepts a bare string error", func() {
			ev, _ := gemini.ParseEvent(`{"error":"boom"}`)
			msg, ok := ev.ErrorMessage()
			Expect(ok).To(BeTrue())
			Expect(msg).To(Equal("boom"))
		})

		It("reports an error object without a message", func() {
			ev, _ := gemini.ParseEvent(`{"error":{"code":500}}`)
			msg, ok := ev.ErrorMessage()
			Expect(ok).To(BeTrue())
			Expect(msg).To(BeEmpty())
		})

		It("reports no error when the field is absent or null", func() {
			ev, _ := gemini.ParseEvent(`{"candidates":[]}`)
			_, ok := ev.ErrorMessage()
			Expect(ok).To(BeFalse())

			ev, _ = gemini.ParseEvent(`{"error":null}`)
			_, ok = ev.ErrorMessage()
			Expect(ok).To(BeFalse())
		})
	})

	DescribeTable("ParseEvent rejects non-object payloads",
		func(payload string) {
			_, ok := gemini.ParseEvent(payload)
			Expect(ok).To(BeFalse())
		},
		Entry("not json", "hello"),
		Entry("truncated json", `{"candidates":[`),
		Entry("array", `[1,2]`),
		Entry("string", `"text"`),
		Entry("null", `null`),
		Entry("empty", ``),
	)
})

var _ = Describe("RejectionMessage", func() {
	It("prefers the structured error message", func() {
		Expect(gemini.RejectionMessage(429, []byte(`{"error":{"message":"rate limited"}}`))).To(Equal("rate limited"))
	})

	It("falls back to the raw body for non-JSON", func() {
		Expect(gemini.RejectionMessage(502, []byte("<html>Bad Gateway</html>"))).To(Equal("<html>Bad Gateway</html>"))
	})

	It("truncates a long raw body to 200 characters", func() {
		body := strings.Repeat("é", 500)
		msg := gemini.RejectionMessage(500, []byte(body))
		Expect([]rune(msg)).To(HaveLen(200))
	})

	It("uses the raw body when the JSON has no message", func() {
		Expect(gemini.RejectionMessage(400, []byte(`{"error":{"code":400}}`))).To(Equal(`{"error":{"code":400}}`))
	})

	It("describes the status for an empty body", func() {
		Expect(gemini.RejectionMessage(503, nil)).To(Equal("upstream returned 503 Service Unavailable"))
	})
})

var _ = Describe("Client", func() {
	var (
		upstream *httptest.Server
		gotPath  string
		gotQuery map[string][]string
		gotBody  []byte
		gotCT    string
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.Query()
			gotCT = r.Header.Get("Content-Type")
			gotBody, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, "data: {}\n\n")
		}))
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("requires an api key", func() {
		_, err := gemini.NewClient(gemini.ClientOpts{BaseURL: upstream.URL})
		Expect(err).To(HaveOccurred())
	})

	It("posts contents to the streaming endpoint with alt=sse and the key", func() {
		c, err := gemini.NewClient(gemini.ClientOpts{BaseURL: upstream.URL + "/", APIKey: "secret"})
		Expect(err).NotTo(HaveOccurred())

		contents := json.RawMessage(`[{"role":"user","parts":[{"text":"hi"}]}]`)
		resp, err := c.StreamGenerateContent(GinkgoT().Context(), "gemini-2.5-flash", contents)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(gotPath).To(Equal("/v1beta/models/gemini-2.5-flash:streamGenerateContent"))
		Expect(gotQuery["alt"]).To(Equal([]string{"sse"}))
		Expect(gotQuery["key"]).To(Equal([]string{"secret"}))
		Expect(gotCT).To(Equal("application/json"))
		Expect(gotBody).To(MatchJSON(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`))
	})

	It("sends an empty contents array by default", func() {
		c, err := gemini.NewClient(gemini.ClientOpts{BaseURL: upstream.URL, APIKey: "k"})
		Expect(err).NotTo(HaveOccurred())

		resp, err := c.StreamGenerateContent(GinkgoT().Context(), "m", nil)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()

		Expect(gotBody).To(MatchJSON(`{"contents":[]}`))
	})

	It("keeps the api key out of transport errors", func() {
		upstream.Close()

		c, err := gemini.NewClient(gemini.ClientOpts{BaseURL: upstream.URL, APIKey: "top-secret"})
		Expect(err).NotTo(HaveOccurred())

		_, err = c.StreamGenerateContent(GinkgoT().Context(), "m", nil)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).NotTo(ContainSubstring("top-secret"))
		Expect(err.Error()).To(ContainSubstring("REDACTED"))
	})
})
