package bulkpin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errFake = errors.New("fake failure")

type fakeProbe struct {
	free  int64
	err   error
	block bool
}

func (p *fakeProbe) FreeBytes(ctx context.Context, path string) (int64, error) {
	if p.block {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	return p.free, p.err
}

// fakeLister replays the same pages for every query, or later from the
// second query on when set. failQuery/failPage select a query (1-based) and
// page (1-based) that return an error. onPage runs before a page is served.
type fakeLister struct {
	mu        sync.Mutex
	pages     [][]Metadata
	later     [][]Metadata
	startErr  error
	failQuery int
	failPage  int
	queries   int
	closed    int
	onPage    func(query, page int)
}

func (l *fakeLister) StartQuery(ctx context.Context, params ListParams) (Query, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	l.queries++
	return &fakeQuery{lister: l, n: l.queries}, nil
}

func (l *fakeLister) queryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queries
}

func (l *fakeLister) closedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeQuery struct {
	lister *fakeLister
	n      int
	page   int
}

func (q *fakeQuery) NextPage(ctx context.Context) ([]Metadata, error) {
	q.page++
	if q.lister.onPage != nil {
		q.lister.onPage(q.n, q.page)
	}

	q.lister.mu.Lock()
	defer q.lister.mu.Unlock()
	if q.n == q.lister.failQuery && q.page == q.lister.failPage {
		return nil, errFake
	}
	pages := q.lister.pages
	if q.n > 1 && q.lister.later != nil {
		pages = q.lister.later
	}
	if q.page > len(pages) {
		return nil, nil
	}
	page := pages[q.page-1]
	out := make([]Metadata, len(page))
	copy(out, page)
	return out, nil
}

func (q *fakeQuery) Close() error {
	q.lister.mu.Lock()
	defer q.lister.mu.Unlock()
	q.lister.closed++
	return nil
}

type pinCall struct {
	ID     FileID
	Path   string
	Pinned bool
}

type fakePinner struct {
	mu    sync.Mutex
	calls []pinCall
	errs  map[FileID]error
}

func (p *fakePinner) SetPinned(ctx context.Context, id FileID, path string, pinned bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pinCall{ID: id, Path: path, Pinned: pinned})
	return p.errs[id]
}

func (p *fakePinner) Calls() []pinCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pinCall(nil), p.calls...)
}

type fakeFetcher struct {
	mu    sync.Mutex
	files map[FileID]*Metadata
	calls int
}

func newFakeFetcher(files ...Metadata) *fakeFetcher {
	f := &fakeFetcher{files: make(map[FileID]*Metadata)}
	for i := range files {
		f.set(files[i])
	}
	return f
}

func (f *fakeFetcher) set(md Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[md.ID] = &md
}

func (f *fakeFetcher) GetMetadata(ctx context.Context, id FileID, path string) (*Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	md, ok := f.files[id]
	if !ok {
		return nil, errFake
	}
	out := *md
	return &out, nil
}

type recordingObserver struct {
	mu       sync.Mutex
	progress []Progress
	drops    int
}

func (o *recordingObserver) OnProgress(p Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, p)
}

func (o *recordingObserver) OnDrop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.drops++
}

func (o *recordingObserver) stages() []Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var stages []Stage
	for _, p := range o.progress {
		if len(stages) == 0 || stages[len(stages)-1] != p.Stage {
			stages = append(stages, p.Stage)
		}
	}
	return stages
}

func file(id string, path string, size int64) Metadata {
	return Metadata{ID: FileID(id), Path: path, Size: size, Type: FileTypeFile}
}

func boolPtr(b bool) *bool {
	return &b
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Root = "/root"
	cfg.CachePath = "/cache"
	cfg.ReapInterval = 10 * time.Millisecond
	return cfg
}

// startRun starts m and returns a channel receiving the final progress.
func startRun(t *testing.T, m *Manager) <-chan Progress {
	t.Helper()
	done := make(chan Progress, 1)
	require.NoError(t, m.Start(t.Context(), func(p Progress) {
		done <- p
	}))
	return done
}

func waitDone(t *testing.T, done <-chan Progress) Progress {
	t.Helper()
	select {
	case p := <-done:
		return p
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timeout waiting for run to finish")
		return Progress{}
	}
}

func newTestManager(t *testing.T, cfg Config, probe SpaceProbe, lister DirectoryLister, pinner PinIssuer, fetcher MetadataFetcher) *Manager {
	t.Helper()
	m, err := NewManager(cfg, probe, lister, pinner, fetcher)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}
