// Package daemon runs swimsync's long-lived sync process: the engine's
// processing loop, a periodic pull ticker, and (optionally) the import
// directory watcher, until the context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jarnaez728/swimsync/internal/config"
	"github.com/jarnaez728/swimsync/internal/engine"
	"github.com/jarnaez728/swimsync/internal/importer"
)

// Config holds daemon configuration.
type Config struct {
	// PullInterval is how often to ask the engine for a pull cycle.
	PullInterval time.Duration

	// ImportDir, when non-empty, is watched for dropped swim-time exports.
	ImportDir string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PullInterval: 30 * time.Second,
		Logger:       log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// NewLogger builds the daemon logger from configuration: a size-rotated
// file when log_file is set, stderr otherwise.
func NewLogger(cfg *config.Config) *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	}, "[daemon] ", log.LstdFlags)
}

// Daemon orchestrates the sync engine's background operation.
type Daemon struct {
	engine *engine.Engine
	config *Config
}

// New creates a daemon around an engine.
func New(eng *engine.Engine, cfg *Config) (*Daemon, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.PullInterval <= 0 {
		cfg.PullInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	return &Daemon{engine: eng, config: cfg}, nil
}

// Run blocks until ctx is cancelled. It performs an initial pull and flush
// (catching up after downtime), then keeps the engine's loop, the pull
// ticker, and the importer running.
func (d *Daemon) Run(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Catch up: pull what happened while we were down, then flush anything
	// still queued from the previous run. Failures are retried on the next
	// cycle, never fatal.
	if err := d.engine.PullOnce(ctx); err != nil {
		d.config.Logger.Printf("Initial pull failed (will retry): %v", err)
	}
	if err := d.engine.Flush(ctx); err != nil {
		d.config.Logger.Printf("Initial flush failed (will retry): %v", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.engine.Start(ctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(d.config.PullInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				d.engine.RequestPull()
			}
		}
	})

	if d.config.ImportDir != "" {
		im, err := importer.New(d.config.ImportDir, d.engine, d.config.Logger)
		if err != nil {
			return fmt.Errorf("failed to create importer: %w", err)
		}
		if err := im.Start(ctx); err != nil {
			return fmt.Errorf("failed to start importer: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			return im.Stop()
		})
		d.config.Logger.Printf("Watching import directory: %s", d.config.ImportDir)
	}

	err := g.Wait()
	d.config.Logger.Println("Daemon stopped")
	return err
}
