package bulkpin

import (
	"path"
	"slices"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// NoChange leaves the transferred or total byte count of an entry untouched in Update.
const NoChange int64 = -1

// Entry is a copy of the state tracked for one file.
type Entry struct {
	Path        string
	Transferred int64
	Total       int64
	Pinned      bool
	InProgress  bool
	// Reported is set once the sync engine has reported a transfer size.
	Reported bool
}

type admission int

const (
	admit admission = iota
	reject
	// alreadyDone means pinned and available offline, nothing left to do.
	alreadyDone
)

// Ledger tracks the files of a run and the aggregate Progress.
// It is not safe for concurrent use; Manager serializes access to it.
type Ledger struct {
	root      string
	blockSize int64
	ignore    *IgnoreList

	files    map[FileID]*Entry
	pinSet   mapset.Set[FileID]
	issued   mapset.Set[FileID]
	progress Progress
}

func NewLedger(root string, blockSize int64, ignore *IgnoreList) *Ledger {
	if root == "" {
		root = "/"
	}
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Ledger{
		root:      path.Clean(root),
		blockSize: blockSize,
		ignore:    ignore,
		files:     make(map[FileID]*Entry),
		pinSet:    mapset.NewThreadUnsafeSet[FileID](),
		issued:    mapset.NewThreadUnsafeSet[FileID](),
	}
}

// Reset drops every entry and zeroes the counters.
func (l *Ledger) Reset() {
	l.files = make(map[FileID]*Entry)
	l.pinSet.Clear()
	l.issued.Clear()
	l.progress = Progress{}
}

// CanPin reports whether a file with md at p needs the attention of the manager.
// It has no side effects.
func (l *Ledger) CanPin(md *Metadata, p string) bool {
	return l.admission(md, p) == admit
}

func (l *Ledger) admission(md *Metadata, p string) admission {
	if md == nil || md.Type == FileTypeDirectory {
		return reject
	}
	if md.CanPin != nil && !*md.CanPin {
		return reject
	}
	if md.Shortcut != nil {
		return reject
	}
	rel, ok := l.relPath(p)
	if !ok || l.ignore.ShouldIgnore(rel) {
		return reject
	}
	if md.Pinned && md.AvailableOffline {
		return alreadyDone
	}
	return admit
}

// relPath returns p relative to the root, or false when p lies outside of it.
func (l *Ledger) relPath(p string) (string, bool) {
	if !path.IsAbs(p) {
		return "", false
	}
	p = path.Clean(p)
	if l.root == "/" {
		rel := strings.TrimPrefix(p, "/")
		return rel, rel != ""
	}
	rel, ok := strings.CutPrefix(p, l.root+"/")
	return rel, ok && rel != ""
}

func (l *Ledger) round(size int64) int64 {
	return RoundUpToBlock(size, l.blockSize)
}

func (l *Ledger) setInProgress(e *Entry, inProgress bool) {
	if e.InProgress == inProgress {
		return
	}
	e.InProgress = inProgress
	if inProgress {
		l.progress.SyncingFiles++
	} else {
		l.progress.SyncingFiles--
	}
}

// Add starts tracking a file. It returns false when the file cannot be pinned
// or is already tracked; the first admission of an id wins.
func (l *Ledger) Add(md *Metadata, p string) bool {
	if md == nil {
		return false
	}
	if _, tracked := l.files[md.ID]; tracked {
		return false
	}

	switch l.admission(md, p) {
	case alreadyDone:
		l.progress.SkippedFiles++
		return false
	case reject:
		return false
	}

	total := max(md.Size, 0)
	e := &Entry{
		Path:   p,
		Total:  total,
		Pinned: md.Pinned,
	}
	if md.AvailableOffline {
		e.Transferred = total
	}
	l.files[md.ID] = e
	l.setInProgress(e, true)

	l.progress.BytesToPin += total
	l.progress.RequiredSpace += l.round(total)
	if !md.Pinned {
		l.pinSet.Add(md.ID)
	}
	if e.Transferred > 0 {
		l.progress.PinnedBytes += e.Transferred
	}
	return true
}

// Update applies new transfer figures to a tracked file. Either figure may be
// NoChange. The path is only updated together with a byte change.
func (l *Ledger) Update(id FileID, p string, transferred, total int64) bool {
	e, ok := l.files[id]
	if !ok {
		return false
	}

	transferredChanged := transferred >= 0 && transferred != e.Transferred
	totalChanged := total >= 0 && total != e.Total
	if !transferredChanged && !totalChanged {
		return false
	}

	if p != "" {
		e.Path = p
	}

	// a restarted transfer can legitimately report less than before
	if transferredChanged {
		l.progress.PinnedBytes += transferred - e.Transferred
		e.Transferred = transferred
	}

	if totalChanged {
		l.progress.BytesToPin += total - e.Total
		l.progress.RequiredSpace += l.round(total) - l.round(e.Total)
		e.Total = total
		l.setInProgress(e, e.Total > e.Transferred)
	}
	return true
}

// Rename moves a tracked file to a new path without touching any counter.
func (l *Ledger) Rename(id FileID, p string) bool {
	e, ok := l.files[id]
	if !ok || p == "" || e.Path == p {
		return false
	}
	e.Path = p
	return true
}

// Remove finalizes a tracked file. pinned_bytes is credited with whatever was
// not yet reported, so it ends exactly at finalSize. Pass NoChange to use the
// last known total. bytes_to_pin keeps the file's contribution, adjusted to
// finalSize, even when no pin request was sent for it.
func (l *Ledger) Remove(id FileID, p string, finalSize int64) bool {
	e, ok := l.files[id]
	if !ok {
		return false
	}
	if p != "" {
		e.Path = p
	}
	if finalSize < 0 {
		finalSize = e.Total
	}

	l.progress.PinnedBytes += finalSize - e.Transferred
	if finalSize != e.Total {
		l.progress.BytesToPin += finalSize - e.Total
		l.progress.RequiredSpace += l.round(finalSize) - l.round(e.Total)
	}
	l.setInProgress(e, false)
	l.forget(id)
	return true
}

// Drop stops tracking a file that will not be pinned by this run. Bytes it
// still had to transfer no longer count towards bytes_to_pin.
func (l *Ledger) Drop(id FileID) bool {
	e, ok := l.files[id]
	if !ok {
		return false
	}
	l.progress.BytesToPin -= max(e.Total-e.Transferred, 0)
	l.setInProgress(e, false)
	l.forget(id)
	return true
}

// MarkQueued clears the in progress flag of a tracked file.
func (l *Ledger) MarkQueued(id FileID) bool {
	e, ok := l.files[id]
	if !ok || !e.InProgress {
		return false
	}
	l.setInProgress(e, false)
	return true
}

// MarkReported records that the sync engine emitted progress for id and
// flags the file as in progress while bytes remain.
func (l *Ledger) MarkReported(id FileID) bool {
	e, ok := l.files[id]
	if !ok {
		return false
	}
	changed := !e.Reported
	e.Reported = true
	inProgress := e.Total > e.Transferred
	if e.InProgress != inProgress {
		l.setInProgress(e, inProgress)
		changed = true
	}
	return changed
}

func (l *Ledger) forget(id FileID) {
	l.pinSet.Remove(id)
	l.issued.Remove(id)
	delete(l.files, id)
}

// ClaimPin moves id out of the pin set once a pin request is about to be
// sent for it, so at most one request is ever outstanding per file. It
// returns false when id does not need a pin.
func (l *Ledger) ClaimPin(id FileID) bool {
	if !l.pinSet.Contains(id) {
		return false
	}
	l.pinSet.Remove(id)
	l.issued.Add(id)
	return true
}

// PinIssued reports whether a pin request for id is outstanding.
func (l *Ledger) PinIssued(id FileID) bool {
	return l.issued.Contains(id)
}

// MarkPinned records a successful pin request. The file now waits on the sync engine.
func (l *Ledger) MarkPinned(id FileID) bool {
	e, ok := l.files[id]
	if !ok {
		return false
	}
	e.Pinned = true
	l.pinSet.Remove(id)
	l.issued.Remove(id)
	if !e.Reported {
		l.setInProgress(e, false)
	}
	return true
}

// QueuePinned hands every file that is already pinned, and that the sync
// engine has not reported on yet, over to the sync engine and the reaper.
// It returns the number of files whose state changed.
func (l *Ledger) QueuePinned() int {
	n := 0
	for _, e := range l.files {
		if e.Pinned && e.InProgress && !e.Reported {
			l.setInProgress(e, false)
			n++
		}
	}
	return n
}

func (l *Ledger) Get(id FileID) (Entry, bool) {
	e, ok := l.files[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (l *Ledger) Contains(id FileID) bool {
	_, ok := l.files[id]
	return ok
}

func (l *Ledger) NeedsPin(id FileID) bool {
	return l.pinSet.Contains(id)
}

// PinSet returns the ids still waiting for a pin request, sorted.
func (l *Ledger) PinSet() []FileID {
	ids := l.pinSet.ToSlice()
	slices.Sort(ids)
	return ids
}

func (l *Ledger) Len() int {
	return len(l.files)
}

// Unstarted returns the files the sync engine never reported on and that are
// not in progress. They are candidates for the reaper.
func (l *Ledger) Unstarted() map[FileID]string {
	out := make(map[FileID]string)
	for id, e := range l.files {
		if !e.InProgress && !e.Reported {
			out[id] = e.Path
		}
	}
	return out
}

func (l *Ledger) Progress() Progress {
	return l.progress
}

func (l *Ledger) setStage(stage Stage) bool {
	if l.progress.Stage == stage {
		return false
	}
	l.progress.Stage = stage
	return true
}

func (l *Ledger) setAvailableSpace(free int64) {
	l.progress.AvailableDiskSpace = free
}

func (l *Ledger) fileFailed() {
	l.progress.FailedFiles++
}

func (l *Ledger) filePinned() {
	l.progress.PinnedFiles++
}
