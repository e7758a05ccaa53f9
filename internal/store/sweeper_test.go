package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratuscode/stratuscode/pkg/types"
)

func TestSweepOnceRecoversOnlyStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = s.PrepareTurn(ctx, stale.ID, "", "msg", "")
	require.NoError(t, err)

	fresh, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = s.PrepareTurn(ctx, fresh.ID, "", "msg", "")
	require.NoError(t, err)

	backdate(t, s, stale.ID, time.Now().UnixMilli()-10*time.Minute.Milliseconds())

	w := NewSweeper(s, 0, 0)
	recovered, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	got, err := s.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, got.Status)
	assert.Equal(t, RecoveredNote, got.ErrorNote)

	got, err = s.GetSession(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRunning, got.Status)
}

func TestSweepOnceIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = s.PrepareTurn(ctx, sess.ID, "", "msg", "")
	require.NoError(t, err)
	backdate(t, s, sess.ID, time.Now().UnixMilli()-10*time.Minute.Milliseconds())

	w := NewSweeper(s, 0, 0)

	recovered, err := w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// The session is idle now, so a second sweep finds nothing.
	recovered, err = w.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, recovered)
}

func TestSweepCommutesWithFinish(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = s.PrepareTurn(ctx, sess.ID, "", "msg", "")
	require.NoError(t, err)
	backdate(t, s, sess.ID, time.Now().UnixMilli()-10*time.Minute.Milliseconds())

	w := NewSweeper(s, 0, 0)
	_, err = w.SweepOnce(ctx)
	require.NoError(t, err)

	// A slow driver finalizing after recovery must not corrupt state.
	require.NoError(t, s.Finish(ctx, sess.ID))

	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, got.Status)

	state, err := s.GetStreamingState(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, state.IsStreaming)
}

func TestSweeperDefaults(t *testing.T) {
	w := NewSweeper(nil, 0, 0)
	assert.Equal(t, DefaultSweepInterval, w.interval)
	assert.Equal(t, DefaultStaleThreshold, w.threshold)

	w = NewSweeper(nil, time.Second, time.Minute)
	assert.Equal(t, time.Second, w.interval)
	assert.Equal(t, time.Minute, w.threshold)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	s := newTestStore(t)
	w := NewSweeper(s, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
