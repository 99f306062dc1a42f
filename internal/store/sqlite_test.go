package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/droidpilot/internal/actions"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestSQLite(t *testing.T) (*SQLiteStore, *clock) {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := &clock{t: fixedNow}
	s.now = c.now
	return s, c
}

func TestSQLite_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSQLite(t)

	sess, err := s.CreateSession(ctx, Session{Task: "search for headphones", Device: "emu"})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	launch := actions.Action{Kind: actions.KindLaunch, Params: actions.Params{Value: "Taobao"}, Thinking: "open the shop"}
	click := actions.Action{Kind: actions.KindClick, Params: actions.Params{Point: &actions.Point{X: 500, Y: 80}}}

	c.t = fixedNow.Add(time.Second)
	require.NoError(t, s.RecordStep(ctx, StepRecord{SessionID: sess.ID, Step: 1, Action: launch, Outcome: actions.Outcome{Success: true}, SubGoalID: 1}))
	c.t = fixedNow.Add(2 * time.Second)
	require.NoError(t, s.RecordStep(ctx, StepRecord{
		SessionID:   sess.ID,
		Step:        2,
		Action:      click,
		Outcome:     actions.Outcome{Success: false, ErrorCode: actions.ErrCodeDeviceCommand, Message: "adb gone"},
		LoopWarning: "repeated tap",
	}))

	got, steps, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "search for headphones", got.Task)
	assert.Equal(t, fixedNow.Add(2*time.Second), got.UpdatedAt, "recording a step touches the session")
	require.Len(t, steps, 2)

	if diff := cmp.Diff(launch, steps[0].Action); diff != "" {
		t.Errorf("step 1 action mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(click, steps[1].Action); diff != "" {
		t.Errorf("step 2 action mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, actions.ErrCodeDeviceCommand, steps[1].Outcome.ErrorCode)
	assert.Equal(t, "repeated tap", steps[1].LoopWarning)
	assert.Equal(t, 1, steps[0].SubGoalID)
}

func TestSQLite_RecordStepUnknownSession(t *testing.T) {
	s, _ := newTestSQLite(t)
	err := s.RecordStep(context.Background(), StepRecord{SessionID: "ghost", Step: 1, Action: actions.Action{Kind: actions.KindHome}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.GetSession(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSQLite(t)

	a, err := s.CreateSession(ctx, Session{ID: "a", Task: "first", Device: "emu"})
	require.NoError(t, err)
	c.t = fixedNow.Add(time.Minute)
	_, err = s.CreateSession(ctx, Session{ID: "b", Task: "second", Device: "pixel"})
	require.NoError(t, err)
	c.t = fixedNow.Add(2 * time.Minute)
	require.NoError(t, s.UpdateStatus(ctx, a.ID, StatusUpdate{Status: StatusPaused, StepCount: 3, PendingQuestion: "Which size?"}))

	all, err := s.ListSessions(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID, "most recently updated first")
	assert.Equal(t, StatusPaused, all[0].Status)
	assert.Equal(t, "Which size?", all[0].PendingQuestion)
	assert.Equal(t, 3, all[0].StepCount)

	pixel, err := s.ListSessions(ctx, Filter{Device: "pixel"})
	require.NoError(t, err)
	require.Len(t, pixel, 1)
	assert.Equal(t, "b", pixel[0].ID)

	limited, err := s.ListSessions(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	paused, err := s.ListSessions(ctx, Filter{Status: StatusPaused})
	require.NoError(t, err)
	assert.Len(t, paused, 1)

	assert.ErrorIs(t, s.UpdateStatus(ctx, "ghost", StatusUpdate{Status: StatusAborted}), ErrNotFound)
}

func TestSQLite_DeleteAndPrune(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSQLite(t)

	for _, id := range []string{"old-done", "old-running", "fresh-done"} {
		_, err := s.CreateSession(ctx, Session{ID: id, Task: id})
		require.NoError(t, err)
		require.NoError(t, s.RecordStep(ctx, StepRecord{SessionID: id, Step: 1, Action: actions.Action{Kind: actions.KindHome}}))
	}
	require.NoError(t, s.UpdateStatus(ctx, "old-done", StatusUpdate{Status: StatusCompleted, StepCount: 1}))
	c.t = fixedNow.Add(48 * time.Hour)
	require.NoError(t, s.UpdateStatus(ctx, "fresh-done", StatusUpdate{Status: StatusAborted, StepCount: 1}))

	removed, err := s.PruneSessions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only finished sessions past the cutoff are pruned")

	_, _, err = s.GetSession(ctx, "old-done")
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.GetSession(ctx, "old-running")
	assert.NoError(t, err, "running sessions are never pruned")

	deleted, err := s.DeleteSession(ctx, "fresh-done")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteSession(ctx, "fresh-done")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	rec, err := Open(ctx, config.StoreConfig{Type: "none"}, logger)
	require.NoError(t, err)
	assert.Nil(t, rec)

	_, err = Open(ctx, config.StoreConfig{Type: "mongo"}, logger)
	assert.ErrorContains(t, err, "unsupported store type")

	cfg := config.StoreConfig{Type: "sqlite"}
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "nested", "sessions.db")
	rec, err = Open(ctx, cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.NoError(t, rec.Close())
	assert.FileExists(t, cfg.SQLite.Path)
}
