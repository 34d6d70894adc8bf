package subscriber

import (
	"sync"

	"github.com/hedeqiang/telreg/status"
)

// Record is one registered subscriber.
type Record struct {
	ID       ID
	Listener Listener
	Label    string
	Mask     status.Mask
}

type entry struct {
	rec Record
	gen uint64
}

// Table holds at most one Record per ID, in insertion order.
type Table struct {
	mu      sync.Mutex
	entries []*entry
	gen     uint64
}

// NewTable creates an empty subscription table.
func NewTable() *Table {
	return &Table{}
}

// Upsert registers id or replaces the listener, label and mask of its
// existing record. It returns the stored record and the bits that were not
// selected before (the full mask for a new record).
func (t *Table) Upsert(id ID, l Listener, label string, mask status.Mask) (Record, status.Mask) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.gen++
	if e := t.find(id); e != nil {
		added := mask.Added(e.rec.Mask)
		e.rec.Listener = l
		e.rec.Label = label
		e.rec.Mask = mask
		e.gen = t.gen
		return e.rec, added
	}

	e := &entry{
		rec: Record{ID: id, Listener: l, Label: label, Mask: mask},
		gen: t.gen,
	}
	t.entries = append(t.entries, e)
	return e.rec, mask
}

// Remove deletes the record for id. Removing an unknown id is a no-op.
func (t *Table) Remove(id ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.rec.ID == id {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the record for id.
func (t *Table) Get(id ID) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e := t.find(id); e != nil {
		return e.rec, true
	}
	return Record{}, false
}

// ForEachInterested calls fn for every record whose mask selects f, newest
// first. A record for which fn returns an error is removed; the remaining
// records are still visited. The removed records are returned.
//
// fn runs without the table lock held, so it may touch the table.
func (t *Table) ForEachInterested(f status.Field, fn func(Record) error) []Record {
	t.mu.Lock()
	var targets []entry
	for i := len(t.entries) - 1; i >= 0; i-- {
		if e := t.entries[i]; e.rec.Mask.Has(f) {
			targets = append(targets, *e)
		}
	}
	t.mu.Unlock()

	var removed []Record
	for _, target := range targets {
		if err := fn(target.rec); err != nil {
			if t.removeIfUnchanged(target.rec.ID, target.gen) {
				removed = append(removed, target.rec)
			}
		}
	}
	return removed
}

// DumpAll returns a copy of every record, oldest first.
func (t *Table) DumpAll() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Record, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.rec
	}
	return out
}

// Len returns the number of records.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear removes every record.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// removeIfUnchanged drops id unless it was re-registered after gen.
func (t *Table) removeIfUnchanged(id ID, gen uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.rec.ID == id {
			if e.gen != gen {
				return false
			}
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Table) find(id ID) *entry {
	for _, e := range t.entries {
		if e.rec.ID == id {
			return e
		}
	}
	return nil
}
