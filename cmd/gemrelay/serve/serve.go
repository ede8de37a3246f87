// Package servecmder provides the relay server command.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/gemrelay/pkg/config"
	"github.com/papercomputeco/gemrelay/pkg/eventstream"
	"github.com/papercomputeco/gemrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/gemrelay/pkg/eventstream/nop"
	"github.com/papercomputeco/gemrelay/pkg/gemini"
	"github.com/papercomputeco/gemrelay/pkg/logger"
	"github.com/papercomputeco/gemrelay/pkg/metrics"
	"github.com/papercomputeco/gemrelay/relay"
)

// shutdownTimeout bounds how long in-flight streams may run after a signal.
const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	// Flag targets. Values are read back through viper so that env vars and
	// config.toml participate in precedence.
	port         uint
	host         string
	upstream     string
	apiKey       string
	defaultModel string
	logFile      string
	logJSON      bool
	logPretty    bool
	metrics      bool
	kafkaBrokers string
	kafkaTopic   string

	envFile string
	debug   bool
	out     io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run the gemrelay server.

The relay accepts POST /api/gemini with a JSON body of the form

  {"modelType": "fast", "contents": [...]}

opens one streaming request to the upstream Gemini API, and re-emits the
response as server-sent events:

  data: {"text": "..."}
  data: {"error": {"message": "..."}}
  data: [DONE]

Configuration precedence: flags, then environment (GEMRELAY_*, GEMINI_API_KEY,
PORT, including a .env file in the working directory), then config.toml, then
defaults. An upstream API key is required.

With --kafka-brokers set, a summary event is published to --kafka-topic for
every stream once it ends.`

const serveShortDesc string = "Run the gemrelay server"

func NewServeCmd() *cobra.Command {
	return newServeCmd(&serveCommander{})
}

func newServeCmd(cmder *serveCommander) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.cfg, err = cmder.resolveConfig(cmd, configDir)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, nil)
		},
	}

	config.AddUintFlag(cmd, config.ServeFlags, config.FlagListenPort, &cmder.port)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagHost, &cmder.host)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIKey, &cmder.apiKey)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagDefaultModel, &cmder.defaultModel)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagLogFile, &cmder.logFile)
	config.AddBoolFlag(cmd, config.ServeFlags, config.FlagLogJSON, &cmder.logJSON)
	config.AddBoolFlag(cmd, config.ServeFlags, config.FlagLogPretty, &cmder.logPretty)
	config.AddBoolFlag(cmd, config.ServeFlags, config.FlagMetrics, &cmder.metrics)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	cmd.Flags().StringVar(&cmder.envFile, "env-file", ".env", "Load environment variables from this file if it exists")

	return cmd
}

// resolveConfig layers the env file, config.toml, environment, and flags into
// a validated Config.
func (c *serveCommander) resolveConfig(cmd *cobra.Command, configDir string) (*config.Config, error) {
	// godotenv never overrides variables already set in the environment.
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", c.envFile, err)
		}
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{
		config.FlagListenPort,
		config.FlagHost,
		config.FlagUpstream,
		config.FlagAPIKey,
		config.FlagDefaultModel,
		config.FlagLogFile,
		config.FlagLogJSON,
		config.FlagLogPretty,
		config.FlagMetrics,
		config.FlagKafkaBrokers,
		config.FlagKafkaTopic,
	})

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// run serves until ctx is done or the server fails. A nil listener makes the
// relay listen on the configured address.
func (c *serveCommander) run(ctx context.Context, listener net.Listener) error {
	var closeLog func() error
	var err error
	c.logger, closeLog, err = c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	client, err := gemini.NewClient(gemini.ClientOpts{
		BaseURL: c.cfg.Upstream.BaseURL,
		APIKey:  c.cfg.Upstream.APIKey,
	})
	if err != nil {
		return fmt.Errorf("creating upstream client: %w", err)
	}

	models, err := gemini.NewModelTable(c.cfg.Models, c.cfg.Upstream.DefaultModel)
	if err != nil {
		return fmt.Errorf("creating model table: %w", err)
	}

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			c.logger.Warn("could not close event publisher", "error", err)
		}
	}()

	r, err := relay.New(relay.Config{
		ListenAddr:    c.cfg.ListenAddr(),
		Models:        models,
		EnableMetrics: c.cfg.Metrics.Enabled,
		Publisher:     publisher,
	}, client, metrics.NewCollector(nil), c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	c.logger.Info("upstream configured",
		"base_url", c.cfg.Upstream.BaseURL,
		"models", models.Mnemonics(),
	)

	// Channel to capture the server error
	errChan := make(chan error, 1)
	go func() {
		if listener != nil {
			errChan <- r.RunWithListener(listener)
			return
		}
		errChan <- r.Run()
	}()

	select {
	case err := <-errChan:
		_ = r.Close()
		if err != nil {
			return fmt.Errorf("relay server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return r.ShutdownWithTimeout(shutdownTimeout)
	}
}

// newPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := c.cfg.Events.Brokers()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.Events.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}

	c.logger.Info("publishing stream events",
		"brokers", brokers,
		"topic", c.cfg.Events.KafkaTopic,
	)
	return p, nil
}

// newLogger builds the console logger and, with a log file configured, copies
// every record to that file as JSON. Debug logging adds source locations.
func (c *serveCommander) newLogger() (*slog.Logger, func() error, error) {
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	if c.cfg.Log.File == "" {
		return logger.New(
			logger.WithWriter(out),
			logger.WithDebug(c.debug),
			logger.WithSource(c.debug),
			logger.WithJSON(c.cfg.Log.JSON),
			logger.WithPretty(c.cfg.Log.Pretty),
		), func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	// JSON console output shares one handler with the file.
	if c.cfg.Log.JSON {
		return logger.New(
			logger.WithWriters(out, f),
			logger.WithDebug(c.debug),
			logger.WithSource(c.debug),
			logger.WithJSON(true),
		), f.Close, nil
	}

	console := logger.New(
		logger.WithWriter(out),
		logger.WithDebug(c.debug),
		logger.WithSource(c.debug),
		logger.WithPretty(c.cfg.Log.Pretty),
	)
	file := logger.New(
		logger.WithWriter(f),
		logger.WithDebug(c.debug),
		logger.WithSource(c.debug),
		logger.WithJSON(true),
	)

	return logger.Multi(console, file), f.Close, nil
}
