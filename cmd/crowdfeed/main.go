// Command crowdfeed is the entry point for the crowd monitor. It loads the
// configuration, runs the monitor and the status server, and manages
// graceful shutdown via OS signals.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/crowdpulse/crowdfeed/internal/config"
	"github.com/crowdpulse/crowdfeed/internal/logger"
	"github.com/crowdpulse/crowdfeed/internal/monitor"
	"github.com/crowdpulse/crowdfeed/internal/server"
)

const banner = `
╔══════════════════════════════════════════════════╗
║          crowdfeed  ·  live crowd monitor        ║
╚══════════════════════════════════════════════════╝
`

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Path to the YAML configuration file")
	port := flag.String("port", "", "Port for the status HTTP server (overrides PORT env and server.port)")
	logLevel := flag.String("log-level", "", "Log level: DEBUG, INFO, WARN, ERROR (overrides LOG_LEVEL env)")
	noColor := flag.Bool("no-color", false, "Disable colored output (overrides TTY detection)")
	flag.Parse()

	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level := logger.ParseLevel(cfg.Log.Level)
	if *logLevel != "" {
		level = logger.ParseLevel(*logLevel)
	} else if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = logger.ParseLevel(envLevel)
	}

	httpPort := cfg.Server.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		httpPort = envPort
	}
	if *port != "" {
		httpPort = *port
	}

	colored := !*noColor && term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

	rootLog, err := logger.Setup(logger.Config{
		Level:     level,
		FileLevel: slog.LevelDebug,
		Colored:   colored,
		LogDir:    cfg.Log.Dir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Print(banner)

	if err := config.Validate(cfg); err != nil {
		rootLog.Error("Invalid config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	rootLog.Info("📂 Configuration loaded",
		"path", *configPath,
		"areas", len(cfg.Areas),
		"relay", cfg.Relay.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		rootLog.Info("Received shutdown signal", "signal", sig.String())
		cancel()

		time.AfterFunc(30*time.Second, func() {
			rootLog.Error("Graceful shutdown timed out, forcing exit")
			os.Exit(1)
		})
	}()

	mon, err := monitor.New(cfg, rootLog)
	if err != nil {
		rootLog.Error("Failed to create monitor", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	if cfg.Server.IsEnabled() {
		addr := ":" + httpPort
		statusServer := server.NewStatusServer(addr, rootLog)
		statusServer.SetSource(mon)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := statusServer.Run(ctx); err != nil && ctx.Err() == nil {
				rootLog.Error("Status server failed", "error", err)
			}
		}()

		rootLog.Info("🌐 Status server started", "addr", addr)
	}

	exitCode := 0
	if err := mon.Run(ctx); err != nil {
		rootLog.Error("Monitor failed", "error", err)
		exitCode = 1
	}

	cancel()
	wg.Wait()

	rootLog.Info("👋 Monitor stopped. Goodbye!")
	os.Exit(exitCode)
}

// loadConfig reads path, falling back to defaults and the environment when
// the default file is absent.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) && path == config.DefaultConfigPath {
		return config.Default(), nil
	}
	return cfg, err
}
