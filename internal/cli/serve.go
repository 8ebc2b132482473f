package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lazypower/tether/internal/config"
	"github.com/lazypower/tether/internal/engine"
	"github.com/lazypower/tether/internal/mqtt"
	"github.com/lazypower/tether/internal/registry"
	"github.com/lazypower/tether/internal/server"
	"github.com/lazypower/tether/internal/store"
)

var (
	serveConfigPath string
	serveDebug      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the presence tracking server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Config file path (default ./tether.yaml, ~/.tether/tether.yaml)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	logger := newLogger(serveDebug)

	// Registry document: load at startup, hold in memory, persist on mutation.
	storePath := cfg.Store.Path
	if storePath == "" {
		storePath, err = store.DefaultStorePath()
		if err != nil {
			return fmt.Errorf("resolve store path: %w", err)
		}
	}
	files := store.NewFileStore(storePath, logger)
	reg := registry.NewFromDocument(files.Load())

	eng := engine.New(reg, files, logger)
	eng.SetThresholds(engine.Thresholds{
		Freshness:    cfg.Tracking.Freshness,
		ActiveWindow: cfg.Tracking.ActiveWindow,
		Retention:    cfg.Tracking.Retention,
	})
	eng.SetReapInterval(cfg.Tracking.ReapInterval)
	eng.SetHistoryRetention(cfg.Tracking.HistoryRetention)

	if cfg.Store.History {
		historyPath := cfg.Store.HistoryPath
		if historyPath == "" {
			historyPath, err = store.DefaultHistoryPath()
			if err != nil {
				return fmt.Errorf("resolve history path: %w", err)
			}
		}
		db, err := store.Open(historyPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", historyPath).Msg("history disabled, database unavailable")
		} else {
			defer db.Close()
			eng.SetHistory(db)
			logger.Info().Str("path", historyPath).Msg("sighting history enabled")
		}
	}

	eng.StartReapTimer()
	defer eng.Stop()

	if cfg.MQTT.Broker != "" {
		sub := mqtt.NewSubscriber(cfg.MQTT, eng, logger)
		if err := sub.Start(); err != nil {
			logger.Warn().Err(err).Msg("mqtt ingest unavailable")
		} else {
			defer sub.Stop()
		}
	}

	srv := server.New(eng, logger, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info().Str("addr", addr).Str("store", storePath).Msg("tether serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	<-done
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
