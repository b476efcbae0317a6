// Command sieveprobe connects to a ManageSieve server, prints its greeting
// and then forwards command lines read from stdin, printing each reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/migadu/sieveconn/client/managesieve"
	"github.com/migadu/sieveconn/config"
	"github.com/migadu/sieveconn/logger"
	"github.com/migadu/sieveconn/pkg/errors"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "sieveprobe.toml"

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", defaultConfigPath, "Path to TOML configuration file")
	fHost := flag.String("host", "", "ManageSieve server host (overrides config)")
	fPort := flag.Int("port", 0, "ManageSieve server port (overrides config)")
	fDebug := flag.Bool("debug", false, "Log all commands and responses (overrides config)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("sieveprobe version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loadConfig(*configPath, &cfg, errorHandler)

	if *fHost != "" {
		cfg.Client.Host = *fHost
	}
	if *fPort > 0 {
		cfg.Client.Port = *fPort
	}
	if *fDebug {
		cfg.Client.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "SIEVEPROBE: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.Metrics.Enabled {
		go startMetricsServer(ctx, cfg.Metrics)
	}

	opts, err := managesieve.OptionsFromConfig(&cfg.Client)
	if err != nil {
		errorHandler.ValidationError("client", err)
		os.Exit(errorHandler.WaitForExit())
	}
	backoff, err := managesieve.BackoffFromConfig(&cfg.Client.Retry)
	if err != nil {
		errorHandler.ValidationError("client.retry", err)
		os.Exit(errorHandler.WaitForExit())
	}

	conn, err := managesieve.DialWithRetry(ctx, cfg.Client.Host, cfg.Client.Port, opts, backoff)
	if err != nil {
		errorHandler.FatalError("connect", err)
		os.Exit(errorHandler.WaitForExit())
	}
	logger.Info("Connected to ManageSieve server", "host", cfg.Client.Host, "addr", conn.RemoteAddr())

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() {
			if err := conn.Close(); err != nil {
				logger.Warn("Error closing connection", "error", err)
			}
		})
	}
	defer closeConn()

	// stdin reads cannot be interrupted; leave directly on a signal.
	go exitOnSignal(ctx, closeConn, logFile, os.Exit)

	if err := runSession(conn, os.Stdin, os.Stdout); err != nil {
		closeConn()
		errorHandler.FatalError("session", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// exitOnSignal waits for ctx to end, then closes the connection and the log
// file before exiting with 130. os.Exit skips deferred calls.
func exitOnSignal(ctx context.Context, closeConn func(), logFile *os.File, exit func(int)) {
	<-ctx.Done()
	logger.Info("Interrupted, closing connection")
	closeConn()
	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "SIEVEPROBE: Error closing log file: %v\n", err)
		}
	}
	exit(130)
}

// loadConfig loads the TOML file. A missing default file is not an error.
func loadConfig(configPath string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) && configPath == defaultConfigPath {
			return
		}
		errorHandler.ConfigError(configPath, err)
		os.Exit(errorHandler.WaitForExit())
	}
}
