package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/actionflow/internal/event"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenAt(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func outcome(id, actionID string, finished time.Time, success bool) event.Outcome {
	o := event.Outcome{
		ID:         id,
		ActionID:   actionID,
		Trigger:    event.TriggerImmediate,
		Success:    success,
		Attempts:   1,
		StartedAt:  finished.Add(-20 * time.Millisecond),
		FinishedAt: finished,
		DurationMs: 20,
	}
	if !success {
		o.Error = "boom"
		o.Attempts = 3
	}
	return o
}

func TestRecordAndListRecent(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	require.NoError(t, s.Record(ctx, outcome("o1", "a", base, true)))
	require.NoError(t, s.Record(ctx, outcome("o2", "b", base.Add(time.Second), false)))
	require.NoError(t, s.Record(ctx, outcome("o3", "a", base.Add(2*time.Second), true)))
	require.NoError(t, s.Record(ctx, outcome("o3", "a", base.Add(2*time.Second), true)), "duplicate ids are ignored")

	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"o3", "o2", "o1"}, []string{got[0].ID, got[1].ID, got[2].ID})

	failed := got[1]
	assert.False(t, failed.Success)
	assert.Equal(t, "boom", failed.Error)
	assert.Equal(t, 3, failed.Attempts)
	assert.Equal(t, event.TriggerImmediate, failed.Trigger)
	assert.True(t, failed.FinishedAt.Equal(base.Add(time.Second)))

	limited, err := s.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "o3", limited[0].ID)
}

func TestListByAction(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	base := time.Now()
	for i, id := range []string{"x1", "x2", "x3"} {
		require.NoError(t, s.Record(ctx, outcome(id, "x", base.Add(time.Duration(i)*time.Millisecond), true)))
	}
	require.NoError(t, s.Record(ctx, outcome("y1", "y", base, true)))

	got, err := s.ListByAction(ctx, "x", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "x3", got[0].ID)
	assert.Equal(t, "x2", got[1].ID)

	none, err := s.ListByAction(ctx, "z", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindTicket(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	o := outcome("b1", "audit", time.Now(), true)
	o.Ticket = "ticket-123"
	o.Trigger = event.TriggerBatch
	require.NoError(t, s.Record(ctx, o))

	got, err := s.FindTicket(ctx, "ticket-123")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, event.TriggerBatch, got.Trigger)

	_, err = s.FindTicket(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestDeleteOlderThan(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, s.Record(ctx, outcome("old", "a", now.Add(-48*time.Hour), true)))
	require.NoError(t, s.Record(ctx, outcome("new", "a", now, true)))

	n, err := s.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}

func TestSinkRecordsUntilClosed(t *testing.T) {
	s := tempStore(t)
	ch := make(chan event.Outcome, 2)
	ch <- outcome("s1", "a", time.Now(), true)
	ch <- outcome("s2", "a", time.Now(), false)
	close(ch)

	s.Sink(context.Background(), ch, nil)

	got, err := s.ListByAction(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := OpenAt(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), outcome("keep", "a", time.Now(), true)))
	require.NoError(t, s.Close())

	s, err = OpenAt(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.ListRecent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ID)
}
