// Package client wires the note store, WebDAV SDK and sync engine together
// and runs the background daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdsync "sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rjeczalik/notify"

	"github.com/notedav/notedav/internal/client/config"
	"github.com/notedav/notedav/internal/client/notestore"
	"github.com/notedav/notedav/internal/client/sync"
	"github.com/notedav/notedav/internal/davsdk"
)

// changeDebounce coalesces bursts of file events into one sync.
const changeDebounce = 2 * time.Second

type Client struct {
	config  *config.Config
	store   *notestore.Store
	dav     *davsdk.Client
	journal *sync.Journal
	engine  *sync.Engine
	lock    *flock.Flock
	wg      stdsync.WaitGroup
}

func New(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := notestore.NewStore(cfg.NotesDir())
	if err != nil {
		return nil, fmt.Errorf("open note store: %w", err)
	}

	dav := davsdk.NewClient(&davsdk.Config{
		BaseURL:  cfg.ServerURL,
		Username: cfg.Username,
		Password: cfg.Password,
	})

	journal, err := sync.NewJournal(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("open sync journal: %w", err)
	}

	tracker := sync.LoadDeletionTracker(cfg.TombstonePath())

	engine := sync.NewEngine(store, dav, journal, tracker, sync.NewStateManager(), sync.Options{
		RemotePath:     cfg.RemotePath,
		DeviceID:       cfg.DeviceID,
		ExportMarkdown: cfg.ExportMarkdown,
		Transfer: davsdk.TransferOptions{
			MaxParallel: cfg.MaxParallel,
			RetryCount:  cfg.RetryCount,
		},
	})

	return &Client{
		config:  cfg,
		store:   store,
		dav:     dav,
		journal: journal,
		engine:  engine,
		lock:    flock.New(cfg.LockPath()),
	}, nil
}

func (c *Client) Engine() *sync.Engine {
	return c.engine
}

func (c *Client) Store() *notestore.Store {
	return c.store
}

func (c *Client) Config() *config.Config {
	return c.config
}

// Start runs the daemon until ctx is cancelled: one sync on startup, then
// periodic silent syncs plus file-watch triggered ones. Only one daemon may
// run per data dir.
func (c *Client) Start(ctx context.Context) error {
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another instance is already running for %s", c.config.DataDir)
	}
	defer c.lock.Unlock()

	interval, err := c.config.Interval()
	if err != nil {
		return err
	}

	slog.Info("notedav client start",
		"datadir", c.config.DataDir,
		"server", c.config.ServerURL,
		"remote", c.config.RemotePath,
		"interval", interval,
	)

	c.engine.Sync(ctx, "startup", true)

	if err := c.startWatcher(ctx); err != nil {
		// degraded but functional, periodic sync still runs
		slog.Warn("file watcher unavailable", "error", err)
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		// using a timer and not a ticker to avoid queued ticks when a sync
		// takes more than the interval to complete
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				c.engine.Sync(ctx, "periodic", true)
				timer.Reset(interval)
			}
		}
	}()

	<-ctx.Done()
	slog.Info("received interrupt signal, stopping client")

	c.wg.Wait()
	if err := c.journal.Close(); err != nil {
		slog.Warn("close journal", "error", err)
	}
	slog.Info("notedav client stop")
	return nil
}

// Close releases resources for non-daemon (one-shot CLI) use.
func (c *Client) Close() error {
	return c.journal.Close()
}

func (c *Client) startWatcher(ctx context.Context) error {
	events := make(chan notify.EventInfo, 16)
	if err := notify.Watch(c.store.Dir()+"/...", events, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}
	slog.Info("fs notify start", "dir", c.store.Dir())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		debounce := time.NewTimer(changeDebounce)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				notify.Stop(events)
				return
			case ev := <-events:
				if !strings.HasSuffix(ev.Path(), ".json") {
					continue
				}
				slog.Debug("fs event", "path", ev.Path(), "event", ev.Event())
				debounce.Reset(changeDebounce)
			case <-debounce.C:
				result := c.engine.Sync(ctx, "file-change", true)
				if !result.Success && !errors.Is(ctx.Err(), context.Canceled) {
					slog.Error("change-triggered sync", "error", result.ErrorMessage)
				}
			}
		}
	}()
	return nil
}
