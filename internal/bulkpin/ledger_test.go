package bulkpin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedger() *Ledger {
	return NewLedger("/root", DefaultBlockSize, nil)
}

func TestLedger_CanPin(t *testing.T) {
	ledger := NewLedger("/root", DefaultBlockSize, NewIgnoreList("*.tmp"))

	tests := []struct {
		name string
		md   Metadata
		path string
		want bool
	}{
		{"regular file", Metadata{ID: "1", Size: 10, Type: FileTypeFile}, "/root/a.txt", true},
		{"zero byte file", Metadata{ID: "1", Type: FileTypeFile}, "/root/empty", true},
		{"hosted document", Metadata{ID: "1", Type: FileTypeHosted}, "/root/doc.gdoc", true},
		{"pinned not available", Metadata{ID: "1", Size: 10, Pinned: true}, "/root/a", true},
		{"available not pinned", Metadata{ID: "1", Size: 10, AvailableOffline: true}, "/root/a", true},
		{"can pin explicitly true", Metadata{ID: "1", Size: 10, CanPin: boolPtr(true)}, "/root/a", true},
		{"directory", Metadata{ID: "1", Type: FileTypeDirectory}, "/root/dir", false},
		{"can pin disabled", Metadata{ID: "1", Size: 10, CanPin: boolPtr(false)}, "/root/a", false},
		{"shortcut", Metadata{ID: "1", Shortcut: &ShortcutDetails{TargetID: "2"}}, "/root/link", false},
		{"outside root", Metadata{ID: "1", Size: 10}, "/other/a", false},
		{"root prefix only", Metadata{ID: "1", Size: 10}, "/rootless/a", false},
		{"root itself", Metadata{ID: "1", Size: 10}, "/root", false},
		{"relative path", Metadata{ID: "1", Size: 10}, "root/a", false},
		{"ignored pattern", Metadata{ID: "1", Size: 10}, "/root/x/scratch.tmp", false},
		{"already done", Metadata{ID: "1", Size: 10, Pinned: true, AvailableOffline: true}, "/root/a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := ledger.Progress()
			// same answer every time, nothing mutated
			for range 3 {
				assert.Equal(t, tt.want, ledger.CanPin(&tt.md, tt.path))
			}
			assert.Equal(t, before, ledger.Progress())
			assert.Zero(t, ledger.Len())
		})
	}
}

func TestLedger_CanPin_NilMetadata(t *testing.T) {
	assert.False(t, newTestLedger().CanPin(nil, "/root/a"))
}

func TestLedger_Add_LargeUnpinnedFile(t *testing.T) {
	ledger := newTestLedger()

	md := Metadata{ID: "101", Path: "/root/big.bin", Size: 698248964, Type: FileTypeFile}
	require.True(t, ledger.Add(&md, md.Path))

	p := ledger.Progress()
	assert.Equal(t, 0, p.PinnedFiles)
	assert.Equal(t, int64(0), p.PinnedBytes)
	assert.Equal(t, int64(698248964), p.BytesToPin)
	assert.Equal(t, int64(698249216), p.RequiredSpace)
	assert.Equal(t, 1, p.SyncingFiles)
	assert.True(t, ledger.NeedsPin("101"))
	assert.Equal(t, []FileID{"101"}, ledger.PinSet())

	e, ok := ledger.Get("101")
	require.True(t, ok)
	assert.True(t, e.InProgress)
	assert.False(t, e.Pinned)
	assert.Equal(t, int64(0), e.Transferred)
}

func TestLedger_UpdateRemove_EndsAtFinalSize(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "101", Path: "/root/big.bin", Size: 698248964}
	require.True(t, ledger.Add(&md, md.Path))

	require.True(t, ledger.Update("101", "", 5000, NoChange))
	assert.Equal(t, int64(5000), ledger.Progress().PinnedBytes)

	require.True(t, ledger.Remove("101", "", 698248964))
	p := ledger.Progress()
	assert.Equal(t, int64(698248964), p.PinnedBytes)
	assert.Equal(t, int64(698248964), p.BytesToPin, "a completed file stays part of the run total")
	assert.Equal(t, int64(698249216), p.RequiredSpace)
	assert.Equal(t, float64(100), p.Percent())
	assert.Equal(t, 0, p.SyncingFiles)
	assert.False(t, ledger.Contains("101"))
	assert.False(t, ledger.NeedsPin("101"))
	assert.Empty(t, ledger.PinSet())
}

func TestLedger_Add_SumsTotals(t *testing.T) {
	ledger := newTestLedger()
	sizes := []int64{0, 1, 4095, 4096, 4097, 300 << 20, 12345678}

	var wantBytes, wantRequired int64
	for i, size := range sizes {
		md := Metadata{ID: FileID(rune('a' + i)), Size: size}
		require.True(t, ledger.Add(&md, "/root/f"))
		wantBytes += size
		wantRequired += RoundUpToBlock(size, DefaultBlockSize)
	}

	p := ledger.Progress()
	assert.Equal(t, wantBytes, p.BytesToPin)
	assert.Equal(t, wantRequired, p.RequiredSpace)
	assert.Equal(t, len(sizes), p.SyncingFiles)
	assert.Equal(t, len(sizes), ledger.Len())
}

func TestLedger_Add_DuplicateIsNoop(t *testing.T) {
	ledger := newTestLedger()
	first := Metadata{ID: "1", Size: 100}
	require.True(t, ledger.Add(&first, "/root/a"))
	before := ledger.Progress()

	dups := []Metadata{
		{ID: "1", Size: 100},
		{ID: "1", Size: 999999},
		{ID: "1", Size: 5, Pinned: true},
		{ID: "1", Size: 100, Pinned: true, AvailableOffline: true},
	}
	for _, dup := range dups {
		assert.False(t, ledger.Add(&dup, "/root/moved"))
	}

	assert.Equal(t, before, ledger.Progress())
	e, _ := ledger.Get("1")
	assert.Equal(t, "/root/a", e.Path)
	assert.Equal(t, int64(100), e.Total)
}

func TestLedger_Add_AlreadyDoneCountsSkipped(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 100, Pinned: true, AvailableOffline: true}

	assert.False(t, ledger.Add(&md, "/root/a"))
	assert.Equal(t, Progress{SkippedFiles: 1}, ledger.Progress())
	assert.Zero(t, ledger.Len())

	// other rejections do not count as skipped
	dir := Metadata{ID: "2", Type: FileTypeDirectory, Pinned: true, AvailableOffline: true}
	outside := Metadata{ID: "3", Size: 1, Pinned: true, AvailableOffline: true}
	assert.False(t, ledger.Add(&dir, "/root/d"))
	assert.False(t, ledger.Add(&outside, "/elsewhere/a"))
	assert.Equal(t, 1, ledger.Progress().SkippedFiles)
}

func TestLedger_Add_AvailableOfflineCountsAsTransferred(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 10000, AvailableOffline: true}
	require.True(t, ledger.Add(&md, "/root/a"))

	p := ledger.Progress()
	assert.Equal(t, int64(10000), p.PinnedBytes)
	assert.Equal(t, int64(10000), p.BytesToPin)
	assert.True(t, ledger.NeedsPin("1"), "not pinned yet, still needs a pin request")

	pinned := Metadata{ID: "2", Size: 10, Pinned: true}
	require.True(t, ledger.Add(&pinned, "/root/b"))
	assert.False(t, ledger.NeedsPin("2"))
}

func TestLedger_UnknownIDsAreNoops(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 100}
	require.True(t, ledger.Add(&md, "/root/a"))
	before := ledger.Progress()

	assert.False(t, ledger.Update("nope", "/root/x", 10, 20))
	assert.False(t, ledger.Remove("nope", "/root/x", 10))
	assert.False(t, ledger.Drop("nope"))
	assert.False(t, ledger.MarkQueued("nope"))
	assert.False(t, ledger.MarkPinned("nope"))
	assert.False(t, ledger.Rename("nope", "/root/y"))
	assert.Equal(t, before, ledger.Progress())
}

func TestLedger_Update(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 100}
	require.True(t, ledger.Add(&md, "/root/a"))

	t.Run("nothing changed", func(t *testing.T) {
		assert.False(t, ledger.Update("1", "/root/renamed", NoChange, NoChange))
		assert.False(t, ledger.Update("1", "/root/renamed", 0, 100))
		e, _ := ledger.Get("1")
		assert.Equal(t, "/root/a", e.Path)
	})

	t.Run("transferred grows", func(t *testing.T) {
		require.True(t, ledger.Update("1", "/root/b", 60, NoChange))
		e, _ := ledger.Get("1")
		assert.Equal(t, "/root/b", e.Path)
		assert.Equal(t, int64(60), ledger.Progress().PinnedBytes)
	})

	t.Run("restarted transfer shrinks", func(t *testing.T) {
		require.True(t, ledger.Update("1", "", 20, NoChange))
		assert.Equal(t, int64(20), ledger.Progress().PinnedBytes)
	})

	t.Run("total grows", func(t *testing.T) {
		require.True(t, ledger.Update("1", "", NoChange, 5000))
		p := ledger.Progress()
		assert.Equal(t, int64(5000), p.BytesToPin)
		assert.Equal(t, int64(8192), p.RequiredSpace)
		assert.Equal(t, 1, p.SyncingFiles)
	})

	t.Run("total reached", func(t *testing.T) {
		require.True(t, ledger.Update("1", "", 5000, 5000))
		p := ledger.Progress()
		assert.Equal(t, int64(5000), p.PinnedBytes)
		assert.Equal(t, 1, p.SyncingFiles, "in progress only recomputed when the total changes")

		require.True(t, ledger.Update("1", "", NoChange, 4000))
		p = ledger.Progress()
		assert.Equal(t, 0, p.SyncingFiles)
		assert.Equal(t, int64(4000), p.BytesToPin)
		assert.Equal(t, int64(4096), p.RequiredSpace)
	})
}

func TestLedger_Remove_CreditsRemainder(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 1000}
	require.True(t, ledger.Add(&md, "/root/a"))
	require.True(t, ledger.Update("1", "", 700, NoChange))
	require.True(t, ledger.Update("1", "", 300, NoChange))

	require.True(t, ledger.Remove("1", "", NoChange))
	p := ledger.Progress()
	assert.Equal(t, int64(1000), p.PinnedBytes, "never double counted")
	assert.Equal(t, int64(1000), p.BytesToPin)
	assert.Equal(t, 0, p.SyncingFiles)
	assert.False(t, ledger.Remove("1", "", NoChange))
}

func TestLedger_Remove_FinalSizeSupersedesTotal(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 1000}
	require.True(t, ledger.Add(&md, "/root/a"))
	require.True(t, ledger.Update("1", "", 400, NoChange))

	require.True(t, ledger.Remove("1", "", 1500))
	p := ledger.Progress()
	assert.Equal(t, int64(1500), p.PinnedBytes)
	assert.Equal(t, int64(1500), p.BytesToPin)
	assert.Equal(t, int64(4096), p.RequiredSpace)
}

func TestLedger_Drop(t *testing.T) {
	ledger := newTestLedger()
	a := Metadata{ID: "a", Size: 1000}
	b := Metadata{ID: "b", Size: 500, Pinned: true}
	require.True(t, ledger.Add(&a, "/root/a"))
	require.True(t, ledger.Add(&b, "/root/b"))
	require.True(t, ledger.Update("a", "", 250, NoChange))

	require.True(t, ledger.Drop("a"))
	p := ledger.Progress()
	assert.Equal(t, int64(250), p.PinnedBytes, "bytes already pinned are kept")
	assert.Equal(t, int64(750), p.BytesToPin)
	assert.Equal(t, 1, p.SyncingFiles)
	assert.False(t, ledger.NeedsPin("a"))
	assert.False(t, ledger.Drop("a"))
}

func TestLedger_SyncingFilesMatchesInProgress(t *testing.T) {
	ledger := newTestLedger()
	for _, id := range []FileID{"a", "b", "c", "d"} {
		md := Metadata{ID: id, Size: 100}
		require.True(t, ledger.Add(&md, "/root/"+string(id)))
	}

	ledger.MarkQueued("a")
	ledger.MarkQueued("a")
	ledger.MarkPinned("b")
	ledger.Update("c", "", 100, 100)
	ledger.MarkReported("b")
	ledger.Drop("d")

	count := 0
	for _, id := range []FileID{"a", "b", "c", "d"} {
		if e, ok := ledger.Get(id); ok && e.InProgress {
			count++
		}
	}
	assert.Equal(t, count, ledger.Progress().SyncingFiles)
}

func TestLedger_Unstarted(t *testing.T) {
	ledger := newTestLedger()
	for _, id := range []FileID{"a", "b", "c"} {
		md := Metadata{ID: id, Size: 100}
		require.True(t, ledger.Add(&md, "/root/"+string(id)))
	}
	ledger.MarkPinned("a")
	ledger.MarkPinned("b")
	ledger.Update("b", "", 10, 200)
	ledger.MarkReported("b")

	assert.Equal(t, map[FileID]string{"a": "/root/a"}, ledger.Unstarted())
}

func TestLedger_ClaimPin(t *testing.T) {
	ledger := newTestLedger()
	a := Metadata{ID: "a", Size: 100}
	b := Metadata{ID: "b", Size: 100, Pinned: true}
	require.True(t, ledger.Add(&a, "/root/a"))
	require.True(t, ledger.Add(&b, "/root/b"))

	assert.False(t, ledger.ClaimPin("b"), "already pinned")
	assert.False(t, ledger.ClaimPin("zzz"))

	require.True(t, ledger.ClaimPin("a"))
	assert.False(t, ledger.ClaimPin("a"), "one request per file")
	assert.False(t, ledger.NeedsPin("a"))
	assert.Empty(t, ledger.PinSet())
	assert.True(t, ledger.PinIssued("a"))

	e, _ := ledger.Get("a")
	assert.True(t, e.InProgress, "still waiting on the pin reply")

	require.True(t, ledger.MarkPinned("a"))
	assert.False(t, ledger.PinIssued("a"))
	assert.Equal(t, 1, ledger.Progress().SyncingFiles)

	assert.False(t, ledger.ClaimPin("a"))
	c := Metadata{ID: "c", Size: 100}
	require.True(t, ledger.Add(&c, "/root/c"))
	require.True(t, ledger.ClaimPin("c"))
	require.True(t, ledger.Drop("c"))
	assert.False(t, ledger.PinIssued("c"))
}

func TestLedger_MarkPinned_KeepsReportedTransfer(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "a", Size: 100}
	require.True(t, ledger.Add(&md, "/root/a"))
	require.True(t, ledger.ClaimPin("a"))

	require.True(t, ledger.Update("a", "", 10, 100))
	require.True(t, ledger.MarkReported("a"))
	require.True(t, ledger.MarkPinned("a"))

	e, _ := ledger.Get("a")
	assert.True(t, e.InProgress)
	assert.Equal(t, 1, ledger.Progress().SyncingFiles)
}

func TestLedger_QueuePinned(t *testing.T) {
	ledger := newTestLedger()
	for _, md := range []Metadata{
		{ID: "pinned", Size: 10, Pinned: true},
		{ID: "hosted", Type: FileTypeHosted, Pinned: true},
		{ID: "reported", Size: 10, Pinned: true},
		{ID: "unpinned", Size: 10},
	} {
		require.True(t, ledger.Add(&md, "/root/"+string(md.ID)))
	}
	require.True(t, ledger.Update("reported", "", 1, NoChange))
	require.True(t, ledger.MarkReported("reported"))

	assert.Equal(t, 2, ledger.QueuePinned())
	assert.Zero(t, ledger.QueuePinned())
	assert.Equal(t, 2, ledger.Progress().SyncingFiles)
	assert.Equal(t, map[FileID]string{
		"pinned": "/root/pinned",
		"hosted": "/root/hosted",
	}, ledger.Unstarted())
}

func TestLedger_Reset(t *testing.T) {
	ledger := newTestLedger()
	md := Metadata{ID: "1", Size: 100}
	require.True(t, ledger.Add(&md, "/root/a"))

	ledger.Reset()
	assert.Zero(t, ledger.Len())
	assert.Empty(t, ledger.PinSet())
	assert.Equal(t, Progress{}, ledger.Progress())
}
