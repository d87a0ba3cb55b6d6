package history

import (
	"errors"

	"github.com/adwski/watchparty/client/model"
	"github.com/samber/lo"
)

var ErrOutOfRange = errors.New("history index out of range")

// Grouping describes where an entry sits in a run of messages from the
// same sender.
type Grouping struct {
	IsContinuation bool
	IsGroupEnd     bool
}

// Log is an append-only list of entries in arrival order.
// Sequence indexes keep growing across Reset and are never reused.
type Log struct {
	entries []model.HistoryEntry
	next    uint64
}

func NewLog() *Log {
	return &Log{}
}

// Append stamps the entry with the next sequence index and stores it.
func (l *Log) Append(entry model.HistoryEntry) model.HistoryEntry {
	entry.SequenceIndex = l.next
	l.next++
	l.entries = append(l.entries, entry)
	return entry
}

func (l *Log) Len() int {
	return len(l.entries)
}

func (l *Log) At(index int) (model.HistoryEntry, error) {
	if index < 0 || index >= len(l.entries) {
		return model.HistoryEntry{}, ErrOutOfRange
	}
	return l.entries[index], nil
}

// Entries returns a copy of the log.
func (l *Log) Entries() []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// GroupingFor derives grouping flags from the neighbours of the entry at
// index. Nothing is cached, so appends never leave stale flags behind.
func (l *Log) GroupingFor(index int) (Grouping, error) {
	if index < 0 || index >= len(l.entries) {
		return Grouping{}, ErrOutOfRange
	}
	sender := l.entries[index].SenderID
	g := Grouping{IsGroupEnd: true}
	if index > 0 {
		g.IsContinuation = l.entries[index-1].SenderID == sender
	}
	if index+1 < len(l.entries) {
		g.IsGroupEnd = l.entries[index+1].SenderID != sender
	}
	return g, nil
}

// IsOwn classifies an entry against the identity that is current now,
// not the one active when it was appended. After a reconnect this can
// reclassify older entries.
func IsOwn(entry model.HistoryEntry, selfID string) bool {
	return selfID != "" && entry.SenderID == selfID
}

// Render produces the view of every entry for the given identity.
func (l *Log) Render(selfID string) []model.RenderedEntry {
	return lo.Map(l.entries, func(entry model.HistoryEntry, i int) model.RenderedEntry {
		g, _ := l.GroupingFor(i)
		return model.RenderedEntry{
			HistoryEntry:   entry,
			Index:          entry.SequenceIndex,
			IsContinuation: g.IsContinuation,
			IsGroupEnd:     g.IsGroupEnd,
			IsOwn:          IsOwn(entry, selfID),
		}
	})
}

// Reset empties the log for a new room or identity.
func (l *Log) Reset() {
	l.entries = nil
}
