package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSyncer struct {
	mu    sync.Mutex
	since []time.Time
	err   error
}

func (r *recordingSyncer) SyncMeetings(_ context.Context, since time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.since = append(r.since, since)
	return r.err
}

func TestReconcileMeetingsAdvancesWindow(t *testing.T) {
	syncer := &recordingSyncer{}
	sweeper := NewAbandonSweeper(nil, nil, syncer)

	require.NoError(t, sweeper.ReconcileMeetings(context.Background()))
	require.NoError(t, sweeper.ReconcileMeetings(context.Background()))

	require.Len(t, syncer.since, 2)
	// The first pass reaches a day back to cover downtime; the second picks
	// up where the first one started.
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), syncer.since[0], time.Minute)
	assert.WithinDuration(t, time.Now(), syncer.since[1], time.Minute)
}

func TestReconcileMeetingsKeepsWindowOnFailure(t *testing.T) {
	syncer := &recordingSyncer{err: fmt.Errorf("graph unavailable")}
	sweeper := NewAbandonSweeper(nil, nil, syncer)

	require.Error(t, sweeper.ReconcileMeetings(context.Background()))

	syncer.mu.Lock()
	syncer.err = nil
	syncer.mu.Unlock()
	require.NoError(t, sweeper.ReconcileMeetings(context.Background()))

	require.Len(t, syncer.since, 2)
	// The failed pass did not advance the window; the retry covers the same
	// range again.
	assert.WithinDuration(t, syncer.since[0], syncer.since[1], time.Minute)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), syncer.since[1], time.Minute)
}
