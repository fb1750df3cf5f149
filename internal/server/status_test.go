package server

import (
	"context"
	"testing"
	"time"

	"github.com/TheGojiOG/gameserver-lifecycle/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetStatusIsCachedUntilInvalidated(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	first, err := h.lm.GetStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, first.State)

	h.procs.set("alpha", 42)
	h.mux.addSession("gs-alpha")

	second, err := h.lm.GetStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	h.lm.status.Invalidate("alpha")
	third, err := h.lm.GetStatus("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, third.State)
	require.NotNil(t, third.PID)
	assert.Equal(t, 42, *third.PID)
	assert.Equal(t, "gs-alpha", third.TmuxSession)
}

func TestStatusCacheExpires(t *testing.T) {
	cache := NewStatusCache(5 * time.Second)
	now := time.Unix(1000, 0)
	cache.now = func() time.Time { return now }

	cache.Set("alpha", ServerStatus{Name: "alpha", State: StateRunning})

	now = now.Add(4 * time.Second)
	got, ok := cache.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, StateRunning, got.State)

	now = now.Add(time.Second)
	_, ok = cache.Get("alpha")
	assert.False(t, ok)
}

func TestStatusCacheReturnsCopies(t *testing.T) {
	cache := NewStatusCache(time.Minute)
	pid := 7
	cache.Set("alpha", ServerStatus{Name: "alpha", PID: &pid})

	got, ok := cache.Get("alpha")
	require.True(t, ok)
	*got.PID = 99

	again, _ := cache.Get("alpha")
	assert.Equal(t, 7, *again.PID)
}

func TestActiveJobOverridesProbes(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	h.procs.set("alpha", 42)

	stop := jobs.New(jobs.OperationStop, "alpha", time.Now())
	require.NoError(t, h.store.Create(stop))

	status := h.lm.status.Detect("alpha", "")
	assert.Equal(t, StateStopping, status.State)
	require.NotNil(t, status.PID)
	assert.Empty(t, status.Uptime, "uptime is only resolved for running servers")

	// excluding the job itself falls back to the probes
	status = h.lm.status.Detect("alpha", stop.ID)
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, "1m30s", status.Uptime)
}

func TestDetectExcludingFindsOtherActiveJob(t *testing.T) {
	h := newHarness(t, nil, "alpha")

	older := jobs.New(jobs.OperationStop, "alpha", time.Now().Add(-time.Minute))
	newer := jobs.New(jobs.OperationStart, "alpha", time.Now())
	require.NoError(t, h.store.Create(older))
	require.NoError(t, h.store.Create(newer))

	assert.Equal(t, StateStarting, h.lm.status.Detect("alpha", older.ID).State)
	assert.Equal(t, StateStopping, h.lm.status.Detect("alpha", newer.ID).State)
}

func TestGetAllStatusesKeepsConfigOrder(t *testing.T) {
	h := newHarness(t, nil, "charlie", "alpha", "bravo")
	h.procs.set("alpha", 1)

	statuses, err := h.lm.GetAllStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "charlie", statuses[0].Name)
	assert.Equal(t, "alpha", statuses[1].Name)
	assert.Equal(t, "bravo", statuses[2].Name)
	assert.Equal(t, StateRunning, statuses[1].State)
	assert.Equal(t, StateStopped, statuses[2].State)
}

func TestGetAllStatusesHonoursCancelledContext(t *testing.T) {
	h := newHarness(t, nil, "alpha")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.lm.GetAllStatuses(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
