package bulkpin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

var (
	ErrAlreadyRunning = errors.New("bulk pin already running")
	ErrClosed         = errors.New("bulk pin manager closed")

	errStaleRun = errors.New("stale run")
)

// Manager drives bulk pin runs: it lists the remote tree, checks the space
// budget, issues pin requests and follows the sync engine until every
// admitted file is pinned.
//
// All state lives in the Ledger and is only touched while holding mu.
// Collaborators are called without the lock; their results are applied only
// if the run generation they were issued for is still current.
type Manager struct {
	cfg     Config
	probe   SpaceProbe
	lister  DirectoryLister
	pinner  PinIssuer
	fetcher MetadataFetcher

	baseCtx    context.Context
	cancelBase context.CancelFunc
	pinSem     *semaphore.Weighted
	events     *dispatcher
	wg         sync.WaitGroup

	mu        sync.Mutex
	ledger    *Ledger
	gen       uint64
	runCtx    context.Context
	cancelRun context.CancelFunc
	unwatch   func() bool
	done      DoneFunc
	pinning   bool
	observers []Observer
	closed    bool
	logger    *slog.Logger
}

func NewManager(cfg Config, probe SpaceProbe, lister DirectoryLister, pinner PinIssuer, fetcher MetadataFetcher) (*Manager, error) {
	if probe == nil || lister == nil || pinner == nil || fetcher == nil {
		return nil, errors.New("bulk pin: all collaborators are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bulk pin config: %w", err)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		probe:      probe,
		lister:     lister,
		pinner:     pinner,
		fetcher:    fetcher,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		pinSem:     semaphore.NewWeighted(int64(cfg.MaxInflightPins)),
		events:     newDispatcher(),
		ledger:     NewLedger(cfg.Root, cfg.BlockSize, cfg.Ignore),
		logger:     slog.Default().With("component", "bulkpin"),
	}, nil
}

// Start begins a fresh run. done is called exactly once with the final
// progress, whatever the outcome. Cancelling ctx stops the run.
func (m *Manager) Start(ctx context.Context, done DoneFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if stage := m.ledger.progress.Stage; stage != StageNotStarted && !stage.IsTerminal() {
		return ErrAlreadyRunning
	}

	m.gen++
	gen := m.gen
	m.ledger.Reset()
	m.done = done
	m.pinning = false
	m.logger = slog.Default().With("component", "bulkpin", "run", uuid.NewString())

	runCtx, cancel := context.WithCancel(m.baseCtx)
	m.runCtx = runCtx
	m.cancelRun = cancel
	m.unwatch = context.AfterFunc(ctx, func() {
		m.stopRun(gen)
	})

	m.ledger.setStage(StageStarted)
	m.notifyLocked()
	m.logger.Info("bulk pin start", "root", m.cfg.Root, "cache", m.cfg.CachePath, "dryRun", m.cfg.DryRun)

	m.spawn(func() { m.run(runCtx, gen) })
	return nil
}

// Stop ends the current run with StageStopped. Results of collaborator calls
// still in flight are discarded. Stop is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopRun(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.stopLocked()
	}
}

func (m *Manager) stopLocked() {
	stage := m.ledger.progress.Stage
	if stage == StageNotStarted || stage.IsTerminal() {
		return
	}
	m.finishLocked(StageStopped)
}

// Close stops the current run, tells every observer the manager is gone and
// waits for background work to wind down. It must not be called from an
// Observer or a DoneFunc.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.stopLocked()
	m.closed = true
	observers := slices.Clone(m.observers)
	m.events.post(func() {
		for _, o := range observers {
			o.OnDrop()
		}
	})
	m.cancelBase()
	m.mu.Unlock()

	m.wg.Wait()
	m.events.close()
	return nil
}

func (m *Manager) AddObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.observers, o) {
		m.observers = append(m.observers, o)
	}
}

func (m *Manager) RemoveObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = slices.DeleteFunc(m.observers, func(x Observer) bool { return x == o })
}

// Progress returns a snapshot of the current counters.
func (m *Manager) Progress() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Progress()
}

func (m *Manager) Stage() Stage {
	return m.Progress().Stage
}

// CanPin reports whether a file would be admitted, without changing anything.
func (m *Manager) CanPin(md *Metadata, path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.CanPin(md, path)
}

// spawn runs fn on a tracked goroutine. Callers hold mu or already run on a
// tracked goroutine, so Close cannot be waiting on a zero counter.
func (m *Manager) spawn(fn func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// apply runs fn under the lock when gen is still the current run and
// notifies observers if fn reports a change. It returns false for stale runs.
func (m *Manager) apply(gen uint64, fn func() bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	if fn() {
		m.notifyLocked()
	}
	return true
}

func (m *Manager) notifyLocked() {
	if len(m.observers) == 0 {
		return
	}
	p := m.ledger.Progress()
	observers := slices.Clone(m.observers)
	m.events.post(func() {
		for _, o := range observers {
			o.OnProgress(p)
		}
	})
}

func (m *Manager) setStageLocked(stage Stage) {
	if m.ledger.setStage(stage) {
		m.logger.Debug("bulk pin stage", "stage", stage)
		m.notifyLocked()
	}
}

// finishLocked moves the run to a terminal stage and fires the done callback.
func (m *Manager) finishLocked(stage Stage) {
	m.ledger.setStage(stage)
	m.gen++
	m.pinning = false
	if m.cancelRun != nil {
		m.cancelRun()
	}
	if m.unwatch != nil {
		m.unwatch()
		m.unwatch = nil
	}
	m.notifyLocked()

	p := m.ledger.Progress()
	if done := m.done; done != nil {
		m.done = nil
		m.events.post(func() { done(p) })
	}

	attrs := []any{
		"stage", stage,
		"pinnedFiles", p.PinnedFiles,
		"failedFiles", p.FailedFiles,
		"skippedFiles", p.SkippedFiles,
		"pinned", humanize.IBytes(uint64(max(p.PinnedBytes, 0))),
		"required", humanize.IBytes(uint64(max(p.RequiredSpace, 0))),
		"free", humanize.IBytes(uint64(max(p.AvailableDiskSpace, 0))),
	}
	if stage.IsError() {
		m.logger.Error("bulk pin finished", attrs...)
	} else {
		m.logger.Info("bulk pin finished", attrs...)
	}
}

// checkDoneLocked completes the run once nothing is left to track.
func (m *Manager) checkDoneLocked() {
	if m.ledger.progress.Stage == StageSyncing && m.ledger.Len() == 0 {
		m.finishLocked(StageSuccess)
	}
}

func (m *Manager) finish(gen uint64, stage Stage) {
	m.apply(gen, func() bool {
		m.finishLocked(stage)
		return false
	})
}

// run is the main pipeline of a run: probe, list, budget, pin.
func (m *Manager) run(ctx context.Context, gen uint64) {
	free, err := m.probe.FreeBytes(ctx, m.cfg.CachePath)
	if ctx.Err() != nil {
		return
	}
	if err == nil && free < 0 {
		err = ErrNoFreeSpace
	}
	if err != nil {
		m.logWarn(gen, "free space probe failed", "path", m.cfg.CachePath, "error", err)
		m.finish(gen, StageCannotGetFreeSpace)
		return
	}

	if !m.apply(gen, func() bool {
		m.ledger.setAvailableSpace(free)
		m.setStageLocked(StageListingFiles)
		return false
	}) {
		return
	}

	if err := m.list(ctx, gen, m.admitPage); err != nil {
		if ctx.Err() == nil && !errors.Is(err, errStaleRun) {
			m.logWarn(gen, "listing failed", "error", err)
			m.finish(gen, StageCannotListFiles)
		}
		return
	}

	proceed := false
	m.apply(gen, func() bool {
		p := m.ledger.Progress()
		if err := CheckSpace(p.RequiredSpace, p.AvailableDiskSpace, m.cfg.SpaceMargin); err != nil {
			m.logger.Warn("space check failed", "error", err)
			m.finishLocked(StageNotEnoughSpace)
			return false
		}
		if m.cfg.DryRun {
			m.logger.Info("dry run, nothing pinned", "files", m.ledger.Len(), "required", humanize.IBytes(uint64(p.RequiredSpace)))
			m.finishLocked(StageSuccess)
			return false
		}
		m.pinning = true
		proceed = true
		return false
	})
	if !proceed {
		return
	}

	m.spawn(func() { m.reap(ctx, gen) })

	if err := m.list(ctx, gen, m.pinPage); err != nil {
		if ctx.Err() == nil && !errors.Is(err, errStaleRun) {
			m.logWarn(gen, "listing for pinning failed", "error", err)
			m.finish(gen, StageFinishedWithError)
		}
		return
	}

	m.pinRemaining(ctx, gen)

	m.apply(gen, func() bool {
		m.setStageLocked(StageSyncing)
		m.checkDoneLocked()
		return false
	})
}

type pageFunc func(ctx context.Context, gen uint64, items []Metadata) error

// list pages through the remote tree one request at a time.
func (m *Manager) list(ctx context.Context, gen uint64, handle pageFunc) error {
	query, err := m.lister.StartQuery(ctx, ListParams{Root: m.cfg.Root, PageSize: m.cfg.PageSize})
	if err != nil {
		return fmt.Errorf("start query: %w", err)
	}
	defer query.Close()

	for page := 1; ; page++ {
		items, err := query.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		if len(items) == 0 {
			return nil
		}
		if err := handle(ctx, gen, items); err != nil {
			return err
		}
	}
}

func (m *Manager) admitPage(_ context.Context, gen uint64, items []Metadata) error {
	if !m.apply(gen, func() bool {
		changed := false
		for i := range items {
			skipped := m.ledger.progress.SkippedFiles
			if m.ledger.Add(&items[i], items[i].Path) || skipped != m.ledger.progress.SkippedFiles {
				changed = true
			}
		}
		if changed {
			p := m.ledger.Progress()
			m.logger.Debug("listing", "files", m.ledger.Len(), "skipped", p.SkippedFiles, "required", humanize.IBytes(uint64(p.RequiredSpace)))
		}
		return changed
	}) {
		return errStaleRun
	}
	return nil
}

// pinPage issues pin requests for the tracked files of a page that still need
// one. It returns once every request has been issued, not completed.
func (m *Manager) pinPage(ctx context.Context, gen uint64, items []Metadata) error {
	var toPin []Metadata
	if !m.apply(gen, func() bool {
		changed := false
		for _, item := range items {
			e, ok := m.ledger.Get(item.ID)
			if !ok {
				continue
			}
			switch {
			case m.ledger.ClaimPin(item.ID):
				toPin = append(toPin, item)
			case m.ledger.PinIssued(item.ID) || e.Reported:
				// waiting on the pin reply or the sync engine
			case m.ledger.MarkQueued(item.ID):
				changed = true
			}
		}
		return changed
	}) {
		return errStaleRun
	}

	for _, item := range toPin {
		if err := m.issuePin(ctx, gen, item.ID, item.Path); err != nil {
			return err
		}
	}
	return nil
}

// pinRemaining covers files the pin listing did not return, such as files
// moved since they were admitted. Files still waiting for a pin request get
// one; files that are already pinned are handed over to the sync engine.
func (m *Manager) pinRemaining(ctx context.Context, gen uint64) {
	var remaining []Metadata
	m.apply(gen, func() bool {
		for _, id := range m.ledger.PinSet() {
			if e, ok := m.ledger.Get(id); ok && m.ledger.ClaimPin(id) {
				remaining = append(remaining, Metadata{ID: id, Path: e.Path})
			}
		}
		return m.ledger.QueuePinned() > 0
	})

	for _, item := range remaining {
		if err := m.issuePin(ctx, gen, item.ID, item.Path); err != nil {
			return
		}
	}
}

// issuePin sends one pin request for a file claimed with ClaimPin, without
// waiting for its reply. It blocks while MaxInflightPins requests are
// outstanding and only fails once the run is over.
func (m *Manager) issuePin(ctx context.Context, gen uint64, id FileID, path string) error {
	if err := m.pinSem.Acquire(ctx, 1); err != nil {
		return err
	}

	m.spawn(func() {
		defer m.pinSem.Release(1)

		err := m.pinner.SetPinned(ctx, id, path, true)
		if ctx.Err() != nil {
			return
		}
		m.apply(gen, func() bool {
			if err != nil {
				m.logger.Warn("pin request failed", "id", id, "path", path, "error", err)
				if !m.ledger.Drop(id) {
					return false
				}
				m.ledger.fileFailed()
				m.checkDoneLocked()
				return true
			}
			m.logger.Debug("pin request", "id", id, "path", path)
			changed := m.ledger.MarkPinned(id)
			m.checkDoneLocked()
			return changed
		})
	})
	return nil
}

func (m *Manager) logWarn(gen uint64, msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.logger.Warn(msg, args...)
	}
}
