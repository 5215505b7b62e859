// Command redikv runs the single-node key-value server: it parses CLI
// flags, loads an existing snapshot if one is present, and serves
// connections until interrupted.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"redikv/internal/config"
	"redikv/internal/logging"
	"redikv/internal/metrics"
	"redikv/internal/server"
	"redikv/internal/snapshot"
	"redikv/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "redikv:", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.Default()

	port := pflag.Uint16("port", defaults.Port, "TCP port to listen on")
	dir := pflag.String("dir", defaults.Dir, "directory containing the snapshot file")
	dbfilename := pflag.String("dbfilename", defaults.DBFilename, "snapshot file name")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	cfg := config.Config{Port: *port, Dir: *dir, DBFilename: *dbfilename}

	logger, err := logging.New(*logLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st := store.New()
	if err := loadSnapshot(st, cfg, logger); err != nil {
		return err
	}

	srv := server.New(st, cfg, logger, metrics.New(nil))

	if err := srv.Listen(); err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-shutdown
		logger.Info("shutting down")
		srv.Close()
	}()

	return srv.Serve()
}

// loadSnapshot reads <dir>/<dbfilename> if it exists and populates st
// with its entries. Absence of the file is not an error.
func loadSnapshot(st *store.Store, cfg config.Config, logger *zap.Logger) error {
	path := filepath.Join(cfg.Dir, cfg.DBFilename)
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no snapshot found, starting empty", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("redikv: reading snapshot %s: %w", path, err)
	}

	result, err := snapshot.Decode(buf)
	if err != nil {
		return fmt.Errorf("redikv: decoding snapshot %s: %w", path, err)
	}

	for _, e := range result.Entries {
		st.Set(e.Key, store.Value{Data: e.Value, ExpiresAtMillis: e.ExpiresAtMillis})
	}
	logger.Info("snapshot loaded",
		zap.String("path", path),
		zap.Uint32("version", result.Version),
		zap.Int("entries", len(result.Entries)),
	)
	return nil
}
