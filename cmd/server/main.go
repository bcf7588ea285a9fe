// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/saavnbox/internal/api/connect"
	"github.com/osa030/saavnbox/internal/app/provider"
	"github.com/osa030/saavnbox/internal/app/session"
	"github.com/osa030/saavnbox/internal/infra/config"
	"github.com/osa030/saavnbox/internal/infra/logger"
)

var (
	app        = kingpin.New("saavnbox-server", "saavnbox music player daemon")
	configPath = app.Flag("config", "Path to config file (default: built-in defaults)").Envar("SAAVNBOX_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// providers command
	providersCmd = app.Command("providers", "Check the configured catalog providers and exit")
)

func init() {
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags take precedence over the logging section
	loggerConfig := logger.Config{
		Output:     cfg.Logging.Output,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	if command == providersCmd.FullCommand() {
		err = checkProviders(cfg)
	} else {
		err = run(cfg)
	}
	logCloser.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	sessionMgr, err := session.NewManagerFromConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer sessionMgr.Close()

	// Create RPC services
	interceptors := connect.WithInterceptors(apiconnect.NewTokenInterceptor(cfg.Server.Token))
	if cfg.Server.Token == "" {
		zlog.Warn().Msg("No control token configured, RPCs are not authenticated")
	}

	mux := http.NewServeMux()
	mux.Handle(apiconnect.NewPlayerServiceHandler(apiconnect.NewPlayerService(sessionMgr), interceptors))
	mux.Handle(apiconnect.NewLibraryServiceHandler(apiconnect.NewLibraryService(sessionMgr), interceptors))

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	sessionMgr.Start()

	go func() {
		zlog.Info().Msgf("Starting server: addr=%s session=%s", cfg.Server.Addr, sessionMgr.Info().ID)
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case <-sessionMgr.Done():
		zlog.Info().Msg("Session ended, shutting down...")
	case err := <-serverErrCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close the session first to end active notification streams
	if err := sessionMgr.Close(); err != nil {
		zlog.Error().Msgf("Failed to close session: %v", err)
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// checkProviders builds the provider chain and runs one search through it.
func checkProviders(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chain, err := provider.NewProviderChainFromConfig(ctx, cfg)
	if err != nil {
		return err
	}

	fmt.Println("Catalog Providers:")
	for i, pcfg := range cfg.Catalog.Providers {
		fmt.Printf("  %d. %-10s %s\n", i+1, pcfg.Type, pcfg.DisplayName)
	}

	page, err := chain.SearchSongs(ctx, "love", 1, 1)
	if err != nil {
		return fmt.Errorf("catalog search failed: %w", err)
	}
	fmt.Printf("Catalog reachable: %d songs match a test query\n", page.Total)
	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
