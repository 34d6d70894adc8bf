package subscriber

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hedeqiang/telreg/status"
)

func nopListener() Listener {
	return Func(func(Update) error { return nil })
}

func TestTableUpsertNewReturnsFullMask(t *testing.T) {
	tbl := NewTable()
	mask := status.MaskOf(status.CallStateField, status.SignalStrengthField)

	rec, added := tbl.Upsert("a", nopListener(), "pkg.a", mask)

	assert.Equal(t, ID("a"), rec.ID)
	assert.Equal(t, "pkg.a", rec.Label)
	assert.Equal(t, mask, added)
	assert.Equal(t, 1, tbl.Len())
}

func TestTableUpsertExistingUpdatesInPlace(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("a", nopListener(), "first", status.MaskOf(status.SignalStrengthField))
	tbl.Upsert("b", nopListener(), "other", status.MaskOf(status.CallStateField))

	rec, added := tbl.Upsert("a", nopListener(), "second",
		status.MaskOf(status.SignalStrengthField, status.CallStateField))

	assert.Equal(t, status.MaskOf(status.CallStateField), added)
	assert.Equal(t, "second", rec.Label)
	require.Equal(t, 2, tbl.Len())

	// position is kept
	all := tbl.DumpAll()
	assert.Equal(t, ID("a"), all[0].ID)
	assert.Equal(t, ID("b"), all[1].ID)
}

func TestTableRemoveIdempotent(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("a", nopListener(), "", status.AllMask)

	assert.True(t, tbl.Remove("a"))
	assert.False(t, tbl.Remove("a"))
	assert.False(t, tbl.Remove("never"))
	assert.Equal(t, 0, tbl.Len())
}

func TestTableForEachInterestedNewestFirst(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("a", nopListener(), "", status.MaskOf(status.CallStateField))
	tbl.Upsert("b", nopListener(), "", status.MaskOf(status.SignalStrengthField))
	tbl.Upsert("c", nopListener(), "", status.MaskOf(status.CallStateField))

	var seen []ID
	removed := tbl.ForEachInterested(status.CallStateField, func(r Record) error {
		seen = append(seen, r.ID)
		return nil
	})

	assert.Empty(t, removed)
	assert.Equal(t, []ID{"c", "a"}, seen)
}

func TestTableForEachInterestedRemovesFailures(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("s1", nopListener(), "", status.AllMask)
	tbl.Upsert("s2", nopListener(), "", status.AllMask)
	tbl.Upsert("s3", nopListener(), "", status.AllMask)

	var seen []ID
	removed := tbl.ForEachInterested(status.SignalStrengthField, func(r Record) error {
		seen = append(seen, r.ID)
		if r.ID == "s2" {
			return errors.New("peer gone")
		}
		return nil
	})

	assert.Equal(t, []ID{"s3", "s2", "s1"}, seen)
	require.Len(t, removed, 1)
	assert.Equal(t, ID("s2"), removed[0].ID)

	_, ok := tbl.Get("s2")
	assert.False(t, ok)
	assert.Equal(t, 2, tbl.Len())
}

func TestTableFailureDoesNotRemoveReregisteredRecord(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("a", nopListener(), "old", status.AllMask)

	removed := tbl.ForEachInterested(status.CallStateField, func(r Record) error {
		// the subscriber re-registers while its old listener is failing
		tbl.Upsert("a", nopListener(), "new", status.AllMask)
		return errors.New("old listener gone")
	})

	assert.Empty(t, removed)
	rec, ok := tbl.Get("a")
	require.True(t, ok)
	assert.Equal(t, "new", rec.Label)
}

func TestTableDumpAllIsCopy(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert("a", nopListener(), "x", status.AllMask)

	all := tbl.DumpAll()
	all[0].Label = "mutated"

	rec, _ := tbl.Get("a")
	assert.Equal(t, "x", rec.Label)
}

func TestTableConcurrentUpsertKeepsOneRecordPerID(t *testing.T) {
	tbl := NewTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := ID([]string{"a", "b", "c"}[i%3])
			tbl.Upsert(id, nopListener(), "", status.Mask(1<<(i%8)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 3, tbl.Len())
}
