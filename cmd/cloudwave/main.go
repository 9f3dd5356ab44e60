// Package main provides the cloudwave daemon and one-shot commands.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/cloudwave/internal/infra/config"
	"github.com/osa030/cloudwave/internal/infra/logger"
)

var (
	app        = kingpin.New("cloudwave", "SoundCloud soundwave refresher")
	configPath = app.Flag("config", "Path to config file").Default("config/cloudwave.yaml").Envar("CLOUDWAVE_CONFIG").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// refresh command
	refreshCmd      = app.Command("refresh", "Run one refresh cycle and exit")
	refreshProgress = refreshCmd.Flag("progress", "Show a progress bar while downloading").Bool()
	refreshOffline  = refreshCmd.Flag("offline", "Assume the network is unavailable").Bool()

	// show command
	showCmd = app.Command("show", "Print the persisted track store")

	// reset command
	resetCmd = app.Command("reset", "Delete the persisted track store")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := initLogger(cfg)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer closer.Close()

	switch command {
	case refreshCmd.FullCommand():
		err = runRefresh(cfg, *refreshProgress, *refreshOffline)
	case showCmd.FullCommand():
		err = runShow(cfg, os.Stdout)
	case resetCmd.FullCommand():
		err = runReset(cfg)
	default:
		err = runDaemon(cfg)
	}

	if err != nil {
		zlog.Error().Msgf("%s failed: %v", command, err)
		closer.Close()
		os.Exit(1)
	}
}

// loadConfig reads the config file. A missing file falls back to defaults and
// environment variables.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default()
	}
	return config.Load(path)
}

// initLogger sets up the global logger from config, with flags taking precedence.
func initLogger(cfg *config.Config) (io.Closer, error) {
	loggerConfig := logger.Config{
		Output: cfg.Log.Output,
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	return logger.Init(loggerConfig)
}
