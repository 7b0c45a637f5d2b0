package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sfts-dev/sfts/internal/logger"
	"github.com/sfts-dev/sfts/pkg/api"
	"github.com/sfts-dev/sfts/pkg/assemble"
	"github.com/sfts-dev/sfts/pkg/config"
	"github.com/sfts-dev/sfts/pkg/events"
	"github.com/sfts-dev/sfts/pkg/ingest"
	"github.com/sfts-dev/sfts/pkg/metrics"
	"github.com/sfts-dev/sfts/pkg/registry"
	"github.com/sfts-dev/sfts/pkg/staging"
	"github.com/sfts-dev/sfts/pkg/store"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `sftsd - Smart file transfer coordinator

Usage:
  sftsd <command> [flags]

Commands:
  init     Initialize a sample configuration file
  start    Start the coordinator
  version  Show version information

Flags:
  --config string    Path to config file (default: $XDG_CONFIG_HOME/sfts/config.yaml)
  --force            Force overwrite existing config file (init command only)

Examples:
  # Initialize config file
  sftsd init

  # Start the coordinator with default config location
  sftsd start

  # Start with custom config
  sftsd start --config /etc/sfts/config.yaml

  # Use environment variables to override config
  SFTS_LOGGING_LEVEL=DEBUG sftsd start

Environment Variables:
  All configuration options can be overridden using environment variables.
  Format: SFTS_<SECTION>_<KEY> (use underscores for nested keys)

  Examples:
    SFTS_LOGGING_LEVEL=DEBUG
    SFTS_SERVER_PORT=9000
    SFTS_STAGING_PATH=/var/lib/sfts/staging
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit()
	case "start":
		runStart()
	case "help", "--help", "-h":
		fmt.Print(usage)
	case "version", "--version", "-v":
		fmt.Printf("sftsd %s (commit: %s, built: %s)\n", version, commit, date)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// runInit handles the init subcommand
func runInit() {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	configFile := initFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/sfts/config.yaml)")
	force := initFlags.Bool("force", false, "Force overwrite existing config file")

	if err := initFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	var configPath string
	var err error

	if *configFile != "" {
		err = config.InitConfigToPath(*configFile, *force)
		configPath = *configFile
	} else {
		configPath, err = config.InitConfig(*force)
	}
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the coordinator with: sftsd start")
	fmt.Printf("  3. Or specify custom config: sftsd start --config %s\n", configPath)
}

// runStart handles the start subcommand
func runStart() {
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	configFile := startFlags.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/sfts/config.yaml)")

	if err := startFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("sftsd starting", "version", version)
	logger.Info("configuration loaded", "source", configSource(*configFile))

	s, err := store.New(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open transfer store: %v", err)
	}
	defer func() { _ = s.Close() }()
	logger.Info("transfer store ready", "type", cfg.Database.Type)

	dir, err := staging.New(cfg.Staging.Path)
	if err != nil {
		log.Fatalf("Failed to prepare staging directory: %v", err)
	}
	logger.Info("staging directory ready", "path", cfg.Staging.Path)

	bus := events.NewBus()

	var promRegistry *prometheus.Registry
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.NewMetrics(promRegistry)
		logger.Info("metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("metrics collection disabled")
	}

	reg := registry.New(s, dir, bus, m)
	ing := ingest.New(s, dir, bus, m)
	asm := assemble.New(s, dir, bus, m)

	server := api.NewServer(cfg.Server, api.Deps{
		Registry:   reg,
		Ingestor:   ing,
		Assembler:  asm,
		Store:      s,
		Bus:        bus,
		Prometheus: promRegistry,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := registry.NewSweeper(s, m, cfg.Sweep.Interval, cfg.Sweep.MaxAge)
	go sweeper.Run(ctx)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("coordinator is running, press Ctrl+C to stop", "port", cfg.Server.Port)

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("coordinator shutdown error", "error", err)
			os.Exit(1)
		}
		logger.Info("coordinator stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("coordinator error", "error", err)
			os.Exit(1)
		}
		logger.Info("coordinator stopped")
	}
}

// configSource returns a description of where the config was loaded from
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
