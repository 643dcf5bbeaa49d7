package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/openmined/bulkpin/internal/bulkpin"
	"github.com/openmined/bulkpin/internal/client/config"
	"github.com/openmined/bulkpin/internal/client/handlers"
	"github.com/openmined/bulkpin/internal/diskspace"
	"github.com/openmined/bulkpin/internal/drivesdk"
	"github.com/openmined/bulkpin/internal/utils"
)

const lockFileName = ".bulkpin.lock"

var ErrAlreadyLocked = errors.New("another bulkpin instance is using this cache dir")

// Options change how Start behaves.
type Options struct {
	// ExitWhenDone makes Start return once the first run has finished.
	ExitWhenDone bool
}

// Client wires the bulk pin manager to the drive service, the local disk and
// the status server.
type Client struct {
	config  *config.Config
	opts    Options
	sdk     *drivesdk.DriveSDK
	manager *bulkpin.Manager
	tracker *handlers.ProgressTracker
	status  *StatusServer
	lock    *flock.Flock

	mu      sync.Mutex
	runCtx  context.Context
	stopAll context.CancelFunc
	lastErr error
}

func New(cfg *config.Config, opts Options) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := utils.EnsureDir(cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	ignore, err := loadIgnoreList(cfg)
	if err != nil {
		return nil, err
	}

	sdk, err := drivesdk.New(&drivesdk.Config{
		BaseURL:     cfg.ServerURL,
		AccessToken: cfg.AccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sdk: %w", err)
	}

	margin := cfg.SpaceMargin
	if margin == 0 {
		margin = bulkpin.DefaultSpaceMargin
	}

	drive := newDriveAdapter(sdk.Files)
	manager, err := bulkpin.NewManager(bulkpin.Config{
		Root:            cfg.Root,
		CachePath:       cfg.CacheDir,
		SpaceMargin:     margin,
		PageSize:        cfg.PageSize,
		MaxInflightPins: cfg.MaxInflightPins,
		DryRun:          cfg.DryRun,
		Ignore:          ignore,
	}, diskspace.NewProbe(), drive, drive, drive)
	if err != nil {
		sdk.Close()
		return nil, err
	}

	tracker := handlers.NewProgressTracker()
	manager.AddObserver(tracker)

	c := &Client{
		config:  cfg,
		opts:    opts,
		sdk:     sdk,
		manager: manager,
		tracker: tracker,
		lock:    flock.New(filepath.Join(cfg.CacheDir, lockFileName)),
	}

	status, err := NewStatusServer(&StatusServerConfig{
		Addr:      cfg.StatusAddr,
		AuthToken: cfg.StatusToken,
	}, tracker, c)
	if err != nil {
		manager.Close()
		sdk.Close()
		return nil, err
	}
	c.status = status

	return c, nil
}

func loadIgnoreList(cfg *config.Config) (*bulkpin.IgnoreList, error) {
	list := bulkpin.NewIgnoreList(cfg.Ignore...)
	if cfg.IgnoreFile != "" {
		var err error
		if list, err = bulkpin.LoadIgnoreFile(cfg.IgnoreFile, cfg.Ignore...); err != nil {
			return nil, err
		}
	}
	if len(cfg.Include) == 0 {
		return list, nil
	}
	return list.Only(cfg.Include...)
}

// Start runs the client until ctx is cancelled, or until the first run has
// finished when ExitWhenDone is set.
func (c *Client) Start(ctx context.Context) error {
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock cache dir: %w", err)
	}
	if !locked {
		return ErrAlreadyLocked
	}

	slog.Info("bulkpin client start",
		"server", c.config.ServerURL,
		"root", c.config.Root,
		"cache", c.config.CacheDir,
		"dryRun", c.config.DryRun,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(ctx)

	c.mu.Lock()
	c.runCtx = egCtx
	c.stopAll = cancel
	c.mu.Unlock()

	eg.Go(func() error {
		return c.status.Start(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("stopping bulkpin client")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return c.status.Stop(shutdownCtx)
	})

	if err := c.sdk.Events.Connect(egCtx); err != nil {
		cancel()
		_ = eg.Wait()
		c.shutdown()
		return fmt.Errorf("failed to connect events: %w", err)
	}

	eg.Go(func() error {
		pumpEvents(egCtx, c.sdk.Events.Get(), c.manager)
		return nil
	})

	if err := c.StartRun(); err != nil {
		cancel()
		_ = eg.Wait()
		c.shutdown()
		return err
	}

	err = eg.Wait()
	c.shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bulkpin client failure", "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	slog.Info("bulkpin client stopped")
	return c.lastErr
}

func (c *Client) shutdown() {
	c.manager.Close()
	c.sdk.Close()
	if err := c.lock.Unlock(); err != nil {
		slog.Warn("failed to release cache dir lock", "error", err)
	}
}

// StartRun begins a new bulk pin run. It implements handlers.RunController.
func (c *Client) StartRun() error {
	c.mu.Lock()
	ctx := c.runCtx
	c.mu.Unlock()

	if ctx == nil {
		return errors.New("client not started")
	}
	return c.manager.Start(ctx, c.onRunDone)
}

func (c *Client) StopRun() {
	c.manager.Stop()
}

// Progress returns the latest counters of the current run.
func (c *Client) Progress() bulkpin.Progress {
	return c.manager.Progress()
}

// StatusAddr is the bound address of the status server.
func (c *Client) StatusAddr() string {
	return c.status.Addr()
}

func (c *Client) onRunDone(p bulkpin.Progress) {
	args := []any{
		"stage", p.Stage,
		"pinnedFiles", p.PinnedFiles,
		"failedFiles", p.FailedFiles,
		"skippedFiles", p.SkippedFiles,
		"pinned", humanize.IBytes(uint64(max(p.PinnedBytes, 0))),
		"required", humanize.IBytes(uint64(max(p.RequiredSpace, 0))),
		"available", humanize.IBytes(uint64(max(p.AvailableDiskSpace, 0))),
	}

	var runErr error
	if p.Stage.IsError() {
		runErr = fmt.Errorf("bulk pin finished with %s", p.Stage)
		slog.Error("bulk pin done", args...)
	} else {
		slog.Info("bulk pin done", args...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = runErr
	if c.opts.ExitWhenDone && c.stopAll != nil {
		c.stopAll()
	}
}
