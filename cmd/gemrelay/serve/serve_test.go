package servecmder

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/gemrelay/pkg/config"
	"github.com/papercomputeco/gemrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/gemrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/gemrelay/pkg/logger"
)

// isolatedEnv blanks every variable the serve command reads. Viper treats
// empty variables as unset.
var isolatedEnv = []string{
	config.EnvAPIKey,
	config.EnvPort,
	"GEMRELAY_UPSTREAM_API_KEY",
	"GEMRELAY_SERVER_PORT",
	"GEMRELAY_SERVER_HOST",
	"GEMRELAY_UPSTREAM_BASE_URL",
	"GEMRELAY_UPSTREAM_DEFAULT_MODEL",
	"GEMRELAY_LOG_FILE",
	"GEMRELAY_LOG_JSON",
	"GEMRELAY_LOG_PRETTY",
	"GEMRELAY_METRICS_ENABLED",
	"GEMRELAY_EVENTS_KAFKA_BROKERS",
	"GEMRELAY_EVENTS_KAFKA_TOPIC",
}

// newTestCmd mounts the serve command under a root carrying the global flags
// and parses args without running the server.
func newTestCmd(args ...string) (*serveCommander, *cobra.Command) {
	root := &cobra.Command{Use: "gemrelay"}
	root.PersistentFlags().BoolP("debug", "d", false, "")
	root.PersistentFlags().String("config-dir", "", "")

	cmder := &serveCommander{}
	cmd := newServeCmd(cmder)
	cmd.SetOut(GinkgoWriter)
	root.AddCommand(cmd)

	Expect(cmd.ParseFlags(args)).To(Succeed())
	return cmder, cmd
}

var _ = Describe("Serve command", func() {
	var tmpDir string

	BeforeEach(func() {
		for _, key := range isolatedEnv {
			GinkgoT().Setenv(key, "")
		}

		var err error
		tmpDir, err = os.MkdirTemp("", "gemrelay-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		GinkgoT().Setenv("HOME", tmpDir)

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)
	})

	Describe("flags", func() {
		It("registers the serve flags with their shorthands", func() {
			cmd := NewServeCmd()

			for name, short := range map[string]string{
				config.FlagListenPort:   "p",
				config.FlagUpstream:     "u",
				config.FlagDefaultModel: "m",
			} {
				f := cmd.Flags().Lookup(name)
				Expect(f).NotTo(BeNil(), name)
				Expect(f.Shorthand).To(Equal(short), name)
			}

			for _, name := range []string{
				config.FlagHost,
				config.FlagAPIKey,
				config.FlagLogFile,
				config.FlagLogJSON,
				config.FlagLogPretty,
				config.FlagMetrics,
				config.FlagKafkaBrokers,
				config.FlagKafkaTopic,
			} {
				Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
			}

			Expect(cmd.Flags().Lookup("env-file").DefValue).To(Equal(".env"))
		})

		It("defaults the port to 3000", func() {
			cmd := NewServeCmd()
			Expect(cmd.Flags().Lookup(config.FlagListenPort).DefValue).To(Equal("3000"))
		})
	})

	Describe("configuration", func() {
		It("refuses to start without an api key", func() {
			_, cmd := newTestCmd()
			err := cmd.PreRunE(cmd, nil)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring(config.EnvAPIKey))
		})

		It("reads the api key and port from the conventional variables", func() {
			GinkgoT().Setenv(config.EnvAPIKey, "env-key")
			GinkgoT().Setenv(config.EnvPort, "8123")

			cmder, cmd := newTestCmd()
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
			Expect(cmder.cfg.Upstream.APIKey).To(Equal("env-key"))
			Expect(cmder.cfg.Server.Port).To(Equal(uint(8123)))
		})

		It("prefers flags over the environment", func() {
			GinkgoT().Setenv(config.EnvAPIKey, "env-key")
			GinkgoT().Setenv(config.EnvPort, "8123")

			cmder, cmd := newTestCmd("--listen-port", "9000", "--api-key", "flag-key", "-m", "pro")
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
			Expect(cmder.cfg.Server.Port).To(Equal(uint(9000)))
			Expect(cmder.cfg.Upstream.APIKey).To(Equal("flag-key"))
			Expect(cmder.cfg.Upstream.DefaultModel).To(Equal("pro"))
		})

		It("loads variables from the env file", func() {
			Expect(os.Unsetenv(config.EnvAPIKey)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("GEMINI_API_KEY=dotenv-key\n"), 0o600)).To(Succeed())

			cmder, cmd := newTestCmd()
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
			Expect(cmder.cfg.Upstream.APIKey).To(Equal("dotenv-key"))
		})

		It("ignores a missing env file", func() {
			GinkgoT().Setenv(config.EnvAPIKey, "env-key")

			_, cmd := newTestCmd("--env-file", filepath.Join(tmpDir, "missing.env"))
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
		})

		It("reads config.toml from the config dir", func() {
			dir := filepath.Join(tmpDir, "cfg")
			Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
			toml := "[server]\nport = 7070\n\n[upstream]\napi_key = \"file-key\"\n\n[models]\nthink = \"gemini-2.5-pro\"\n"
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0o600)).To(Succeed())

			cmder, cmd := newTestCmd("--config-dir", dir)
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
			Expect(cmder.cfg.Server.Port).To(Equal(uint(7070)))
			Expect(cmder.cfg.Upstream.APIKey).To(Equal("file-key"))
			Expect(cmder.cfg.Models).To(HaveKeyWithValue("think", "gemini-2.5-pro"))
			Expect(cmder.cfg.Models).To(HaveKeyWithValue("fast", "gemini-2.5-flash"))
		})

		It("rejects a default model missing from the table", func() {
			GinkgoT().Setenv(config.EnvAPIKey, "env-key")

			_, cmd := newTestCmd("--default-model", "nope")
			Expect(cmd.PreRunE(cmd, nil)).NotTo(Succeed())
		})
	})

	Describe("event publisher", func() {
		It("is a no-op without brokers", func() {
			cmder, cmd := newTestCmd("--api-key", "k")
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

			p, err := cmder.newPublisher()
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
		})

		It("publishes to kafka when brokers are set", func() {
			cmder, cmd := newTestCmd("--api-key", "k", "--kafka-brokers", "localhost:9092", "--kafka-topic", "streams")
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())
			cmder.logger = logger.Nop()

			p, err := cmder.newPublisher()
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeAssignableToTypeOf(&kafka.Publisher{}))
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("logger", func() {
		It("writes JSON to the console and the log file with source locations in debug", func() {
			logFile := filepath.Join(tmpDir, "json.log")
			cmder, cmd := newTestCmd("-d", "--api-key", "k", "--log-json", "--log-file", logFile)
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

			var console bytes.Buffer
			cmder.out = &console

			l, closeLog, err := cmder.newLogger()
			Expect(err).NotTo(HaveOccurred())
			l.Debug("json record")
			Expect(closeLog()).To(Succeed())

			data, err := os.ReadFile(logFile)
			Expect(err).NotTo(HaveOccurred())
			for _, out := range []string{console.String(), string(data)} {
				Expect(out).To(ContainSubstring(`"msg":"json record"`))
				Expect(out).To(ContainSubstring(`"source"`))
			}
		})

		It("keeps text console output and a JSON file copy", func() {
			logFile := filepath.Join(tmpDir, "text.log")
			cmder, cmd := newTestCmd("--api-key", "k", "--log-file", logFile)
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

			var console bytes.Buffer
			cmder.out = &console

			l, closeLog, err := cmder.newLogger()
			Expect(err).NotTo(HaveOccurred())
			l.Info("mixed record")
			l.Debug("hidden record")
			Expect(closeLog()).To(Succeed())

			Expect(console.String()).To(ContainSubstring("msg=\"mixed record\""))
			Expect(console.String()).NotTo(ContainSubstring("source"))

			data, err := os.ReadFile(logFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"msg":"mixed record"`))
			Expect(string(data)).NotTo(ContainSubstring("hidden record"))
		})
	})

	Describe("run", func() {
		var upstream *httptest.Server

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"hi\"}]}}]}\n\n")
			}))
			DeferCleanup(upstream.Close)
		})

		It("serves streams until the context is cancelled", func() {
			logFile := filepath.Join(tmpDir, "relay.log")
			cmder, cmd := newTestCmd("--api-key", "k", "--upstream", upstream.URL, "--log-file", logFile)
			Expect(cmd.PreRunE(cmd, nil)).To(Succeed())

			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			base := "http://" + listener.Addr().String()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- cmder.run(ctx, listener)
			}()

			Eventually(func() int {
				resp, err := http.Get(base + "/health")
				if err != nil {
					return 0
				}
				resp.Body.Close()
				return resp.StatusCode
			}).WithTimeout(5 * time.Second).Should(Equal(http.StatusOK))

			resp, err := http.Post(base+"/api/gemini", "application/json", strings.NewReader(`{"modelType":"fast","contents":[]}`))
			Expect(err).NotTo(HaveOccurred())
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal("data: {\"text\": \"hi\"}\n\ndata: [DONE]\n\n"))

			cancel()
			Eventually(done).WithTimeout(5 * time.Second).Should(Receive(BeNil()))

			data, err := os.ReadFile(logFile)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("starting relay server"))
		})
	})
})
