package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/royans/GeminiLiveSupport/audio"
	"github.com/royans/GeminiLiveSupport/logger"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
	"github.com/royans/GeminiLiveSupport/session"
	"github.com/royans/GeminiLiveSupport/settings"
	"github.com/royans/GeminiLiveSupport/snapshot"
	"github.com/royans/GeminiLiveSupport/telemetry"
	"github.com/royans/GeminiLiveSupport/tui"
)

const (
	flagMetricsAddr  = "metrics-addr"
	flagOTLPEndpoint = "otlp-endpoint"
	flagCamera       = "camera-device"
	flagScreen       = "screen-device"
	flagNoTUI        = "no-tui"
	flagLogFile      = "log-file"
	flagEndpoint     = "endpoint"

	shutdownTimeout = 5 * time.Second
	serviceName     = "livesupport"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a live support session",
	Long: `Connect to Gemini Live, start the microphone and open the control panel.

Camera and screen devices default to the platform's ffmpeg capture input.
Use "file:<path>" to stream a still image instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptionsFromFlags(cmd)
		if err != nil {
			return err
		}
		return runSession(cmd.Context(), cmd, opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String(flagMetricsAddr, "", "Serve Prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().String(flagOTLPEndpoint, "", "Export traces to this OTLP/HTTP endpoint (host:port)")
	runCmd.Flags().String(flagCamera, "", "Camera input (ffmpeg device or file:<image>)")
	runCmd.Flags().String(flagScreen, "", "Screen input (ffmpeg display or file:<image>)")
	runCmd.Flags().Bool(flagNoTUI, false, "Run without the control panel; Ctrl-C to quit")
	runCmd.Flags().String(flagLogFile, "", "Write logs to this file while the control panel is open")
	runCmd.Flags().String(flagEndpoint, "", "Override the Gemini Live WebSocket endpoint")
}

type runOptions struct {
	metricsAddr  string
	otlpEndpoint string
	camera       string
	screen       string
	noTUI        bool
	logFile      string
	endpoint     string
}

func runOptionsFromFlags(cmd *cobra.Command) (runOptions, error) {
	var o runOptions
	var err error
	f := cmd.Flags()
	if o.metricsAddr, err = f.GetString(flagMetricsAddr); err != nil {
		return o, err
	}
	if o.otlpEndpoint, err = f.GetString(flagOTLPEndpoint); err != nil {
		return o, err
	}
	if o.camera, err = f.GetString(flagCamera); err != nil {
		return o, err
	}
	if o.screen, err = f.GetString(flagScreen); err != nil {
		return o, err
	}
	if o.noTUI, err = f.GetBool(flagNoTUI); err != nil {
		return o, err
	}
	if o.logFile, err = f.GetString(flagLogFile); err != nil {
		return o, err
	}
	if o.endpoint, err = f.GetString(flagEndpoint); err != nil {
		return o, err
	}
	return o, nil
}

func runSession(parent context.Context, cmd *cobra.Command, opts runOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	cfg := store.Settings()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings in %s: %w", store.Path(), err)
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("%w: run `livesupport settings set %s <key>` or set GEMINI_API_KEY",
			session.ErrMissingAPIKey, settings.KeyAPIKey)
	}

	useTUI := !opts.noTUI && tui.IsTerminal()
	if useTUI {
		closeLog, err := redirectLogs(opts.logFile)
		if err != nil {
			return err
		}
		defer closeLog()
	}

	shutdownTracing, err := telemetry.Setup(ctx, opts.otlpEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Trace shutdown failed", "error", err)
		}
	}()

	terminateAudio, err := audio.InitializeHost()
	if err != nil {
		return err
	}
	defer func() { _ = terminateAudio() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := &tui.Bridge{}
	events := bridge.Events()
	if !useTUI {
		events = headlessEvents(cancel)
	}

	sess := session.New(store, session.Devices{
		Input: audio.NewPortAudioInput(),
		NewSink: func(sampleRate int) (audio.Sink, error) {
			return audio.NewPortAudioSink(sampleRate), nil
		},
		Camera: snapshot.ParseDevice(snapshot.KindCamera, opts.camera, cfg.FPS),
		Screen: snapshot.ParseDevice(snapshot.KindScreen, opts.screen, cfg.FPS),
	}, session.WithEndpoint(opts.endpoint), session.WithEvents(events))
	defer func() {
		if err := sess.Disconnect(); err != nil {
			logger.Warn("Disconnect", "error", err)
		}
	}()

	if err := sess.ConnectAndInitialize(runCtx); err != nil {
		return fmt.Errorf("connection failed, check the API key and logs: %w", err)
	}
	if _, err := sess.ToggleMic(); err != nil {
		logger.Warn("Microphone unavailable", "error", err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	if opts.metricsAddr != "" {
		exporter := metrics.NewExporter(opts.metricsAddr)
		g.Go(func() error {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return exporter.Shutdown(sctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		if useTUI {
			return tui.Run(gctx, tui.NewModel(gctx, sess), bridge)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Connected. Speak to the assistant; press Ctrl-C to quit.")
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

func headlessEvents(cancel context.CancelFunc) session.Events {
	return session.Events{
		ScreenShareStopped: func() { logger.Info("Screen share ended") },
		ConnectionClosed: func(err error) {
			logger.Warn("Connection closed by server", "error", err)
			cancel()
		},
		TurnComplete: func() { logger.Debug("Turn complete") },
	}
}

// redirectLogs keeps log output off the terminal while the panel owns it.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		logger.SetOutput(io.Discard)
		return func() { logger.SetOutput(os.Stderr) }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger.SetOutput(f)
	return func() {
		logger.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}
