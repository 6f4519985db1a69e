// ABOUTME: Entry point for the livetalk voice client
// ABOUTME: Parses CLI flags, wires devices to a session and runs TUI or headless mode
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/livetalk-go/internal/app"
	"github.com/Resonate-Protocol/livetalk-go/internal/config"
	"github.com/Resonate-Protocol/livetalk-go/internal/discovery"
	"github.com/Resonate-Protocol/livetalk-go/internal/logging"
	"github.com/Resonate-Protocol/livetalk-go/internal/ui"
	"github.com/Resonate-Protocol/livetalk-go/internal/version"
	"github.com/Resonate-Protocol/livetalk-go/pkg/audio/output"
	"github.com/Resonate-Protocol/livetalk-go/pkg/capture"
	"github.com/dimiro1/banner"
)

const analyserSize = 2048

var (
	configPath  = flag.String("config", "", "Path to a YAML config file")
	endpoint    = flag.String("endpoint", "", "Agent websocket endpoint (overrides config)")
	discover    = flag.Bool("discover", false, "Find a gateway with mDNS when no endpoint is configured")
	backend     = flag.String("backend", "", "Audio output backend: oto or malgo")
	logFile     = flag.String("log-file", "", "Log file path (overrides config)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	listen      = flag.Bool("listen", true, "Open the microphone as soon as the session connects")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "livetalk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up logging
	f, err := os.OpenFile(cfg.Log.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var w io.Writer = f
	if !cfg.UI.Enabled {
		// Streaming logs mode: log to both stdout and file
		w = io.MultiWriter(os.Stdout, f)
		printBanner()
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case cfg.NeedsDiscovery():
		logger.Info("browsing for a live gateway", "timeout", cfg.DiscoveryTimeout)
		gw, err := discovery.Browse(ctx, cfg.DiscoveryTimeout, logging.Component(logger, "discovery"))
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		cfg.Endpoint = gw.URL()
	case cfg.Discover:
		logger.Info("endpoint configured, skipping discovery", "endpoint", cfg.Endpoint)
	}

	tap := output.NewAnalyser(analyserSize, cfg.Audio.OutputRate)
	device, err := output.Open(cfg.Audio.Backend, cfg.Audio.OutputRate, tap, logging.Component(logger, "output"))
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer func() { _ = device.Close() }()

	session, err := app.New(cfg, app.Deps{
		Output:     device,
		Microphone: capture.NewMalgoMicrophone(logging.Component(logger, "microphone")),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer session.Close()

	logger.Info("starting livetalk",
		"version", version.Version,
		"session", session.ID(),
		"backend", cfg.Audio.Backend)

	if err := session.Connect(ctx); err != nil {
		return err
	}

	if *listen {
		if err := session.StartListening(); err != nil {
			// The conversation still works one way
			logger.Error("microphone unavailable", "error", err)
		}
	}

	if !cfg.UI.Enabled {
		err := session.Run(ctx)
		logger.Info("livetalk stopped")
		return err
	}

	prog := ui.NewProgram(session, session.Sampler(), cfg.Sampler.FPS)

	runErr := make(chan error, 1)
	go func() {
		err := session.Run(ctx)
		prog.Quit()
		runErr <- err
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI failed: %w", err)
	}

	session.Close()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("livetalk stopped")
	return nil
}

// loadConfig applies flag overrides on top of the config file
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return config.Config{}, err
	}

	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *discover {
		cfg.Discover = true
	}
	if *backend != "" {
		cfg.Audio.Backend = *backend
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}
	if *noTUI {
		cfg.UI.Enabled = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func printBanner() {
	tpl := "{{ .Title \"livetalk\" \"\" 0 }}\n" + version.Product + " " + version.Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}
