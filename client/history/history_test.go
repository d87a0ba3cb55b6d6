package history

import (
	"testing"

	"github.com/adwski/watchparty/client/model"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func appendAll(l *Log, senders ...string) {
	for _, s := range senders {
		l.Append(model.HistoryEntry{SenderID: s, Username: s, Message: "hi from " + s})
	}
}

func TestLog_Append_SequenceIndexStrictlyIncreasing(t *testing.T) {
	l := NewLog()
	appendAll(l, "A", "B", "A", "A", "C")

	entries := l.Entries()
	require.Len(t, entries, 5)
	for i, e := range entries {
		require.Equal(t, uint64(i), e.SequenceIndex)
	}

	// indexes keep growing after a reset
	l.Reset()
	require.Equal(t, 0, l.Len())
	e := l.Append(model.HistoryEntry{SenderID: "A"})
	require.Equal(t, uint64(5), e.SequenceIndex)
}

func TestLog_Append_PreservesArrivalOrder(t *testing.T) {
	l := NewLog()
	appendAll(l, "A", "B", "C")

	for i, want := range []string{"A", "B", "C"} {
		e, err := l.At(i)
		require.NoError(t, err)
		require.Equal(t, want, e.SenderID)
	}
	_, err := l.At(3)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestLog_GroupingFor_AAB(t *testing.T) {
	l := NewLog()
	appendAll(l, "A", "A", "B")

	want := []Grouping{
		{IsContinuation: false, IsGroupEnd: false},
		{IsContinuation: true, IsGroupEnd: true},
		{IsContinuation: false, IsGroupEnd: true},
	}
	for i, w := range want {
		g, err := l.GroupingFor(i)
		require.NoError(t, err)
		require.Equal(t, w, g, "entry %d", i)
	}
}

func TestLog_GroupingFor_Consistency(t *testing.T) {
	l := NewLog()
	appendAll(l, "A", "B", "B", "B", "A", "C", "C", "A")
	entries := l.Entries()

	for i := range entries {
		g, err := l.GroupingFor(i)
		require.NoError(t, err)
		if g.IsContinuation {
			require.Equal(t, entries[i-1].SenderID, entries[i].SenderID, spew.Sdump(entries))
		}
		if g.IsGroupEnd && i+1 < len(entries) {
			require.NotEqual(t, entries[i+1].SenderID, entries[i].SenderID, spew.Sdump(entries))
		}
	}

	last, err := l.GroupingFor(len(entries) - 1)
	require.NoError(t, err)
	require.True(t, last.IsGroupEnd)

	_, err = l.GroupingFor(-1)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestLog_GroupingFor_FollowsAppends(t *testing.T) {
	l := NewLog()
	appendAll(l, "A")

	g, err := l.GroupingFor(0)
	require.NoError(t, err)
	require.True(t, g.IsGroupEnd)

	appendAll(l, "A")
	g, err = l.GroupingFor(0)
	require.NoError(t, err)
	require.False(t, g.IsGroupEnd)
}

func TestIsOwn_UsesCurrentIdentity(t *testing.T) {
	l := NewLog()
	l.Append(model.HistoryEntry{SenderID: "sid-1", Message: "mine"})
	l.Append(model.HistoryEntry{SenderID: "sid-2", Message: "theirs"})

	rendered := l.Render("sid-1")
	require.True(t, rendered[0].IsOwn)
	require.False(t, rendered[1].IsOwn)

	// the same entries rendered for another identity are reclassified
	rendered = l.Render("sid-2")
	require.False(t, rendered[0].IsOwn)
	require.True(t, rendered[1].IsOwn)

	require.False(t, IsOwn(model.HistoryEntry{}, ""))
}

func TestLog_Render(t *testing.T) {
	l := NewLog()
	appendAll(l, "A", "A", "B")

	rendered := l.Render("B")
	require.Len(t, rendered, 3)
	require.Equal(t, uint64(1), rendered[1].Index)
	require.True(t, rendered[1].IsContinuation)
	require.True(t, rendered[1].IsGroupEnd)
	require.True(t, rendered[2].IsOwn)
}
