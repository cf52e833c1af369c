package core

import (
	"time"

	"fixit/pkg/schema"
)

// JournalEntry records one applied event.
type JournalEntry struct {
	ID    string    `json:"id"`
	Kind  string    `json:"kind"`
	Phase Phase     `json:"phase"`
	At    time.Time `json:"at"`
	Err   string    `json:"error,omitempty"`
}

// journal is a bounded ring of the most recent entries. Not safe for concurrent use.
type journal struct {
	entries []JournalEntry
	next    int
	full    bool
}

func newJournal(size int) *journal {
	return &journal{entries: make([]JournalEntry, size)}
}

func (j *journal) record(kind string, phase Phase, at time.Time, err error) {
	if len(j.entries) == 0 {
		return
	}
	id, idErr := schema.NewEventID()
	if idErr != nil {
		id = ""
	}
	e := JournalEntry{ID: id, Kind: kind, Phase: phase, At: at}
	if err != nil {
		e.Err = err.Error()
	}
	j.entries[j.next] = e
	j.next = (j.next + 1) % len(j.entries)
	if j.next == 0 {
		j.full = true
	}
}

// list returns entries oldest first.
func (j *journal) list() []JournalEntry {
	if !j.full {
		return append([]JournalEntry(nil), j.entries[:j.next]...)
	}
	out := make([]JournalEntry, 0, len(j.entries))
	out = append(out, j.entries[j.next:]...)
	return append(out, j.entries[:j.next]...)
}
