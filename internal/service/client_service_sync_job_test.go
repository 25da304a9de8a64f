// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bilzee/dms-sync/internal/logger"
	"github.com/bilzee/dms-sync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spySyncService counts FullSync calls.
type spySyncService struct {
	calls atomic.Int64
	err   error
}

func (s *spySyncService) FullSync(_ context.Context) (models.SyncReport, error) {
	s.calls.Add(1)
	return models.SyncReport{}, s.err
}

func (s *spySyncService) PushPending(_ context.Context) (models.PushReport, error) {
	return models.PushReport{}, nil
}

func (s *spySyncService) PullChanges(_ context.Context) (models.PullReport, error) {
	return models.PullReport{}, nil
}

func (s *spySyncService) Resolve(_ context.Context, _ ...models.Resolution) ([]models.ResolutionResult, error) {
	return nil, nil
}

func newTestJob(spy ClientSyncService) ClientSyncJob {
	return NewClientSyncJob(spy, logger.Nop())
}

// ── NewClientSyncJob ─────────────────────────────────────────────────────────

func TestNewClientSyncJob_ReturnsInterface(t *testing.T) {
	job := newTestJob(&spySyncService{})
	require.NotNil(t, job)
}

// ── Start / Stop ─────────────────────────────────────────────────────────────

func TestClientSyncJob_Start_CallsFullSync(t *testing.T) {
	spy := &spySyncService{}
	job := newTestJob(spy)

	// 10ms interval gives ~5 ticks in 55ms
	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	got := spy.calls.Load()
	assert.GreaterOrEqual(t, got, int64(3), "FullSync called %d times", got)
}

func TestClientSyncJob_Stop_StopsGoroutine(t *testing.T) {
	spy := &spySyncService{}
	job := newTestJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	callsAfterStop := spy.calls.Load()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, callsAfterStop, spy.calls.Load(), "no calls after Stop")
}

func TestClientSyncJob_Stop_BeforeStart_NoPanic(t *testing.T) {
	job := newTestJob(&spySyncService{})
	assert.NotPanics(t, func() { job.Stop() })
}

func TestClientSyncJob_DoubleStop_NoPanic(t *testing.T) {
	job := newTestJob(&spySyncService{})

	job.Start(context.Background(), 10*time.Millisecond)
	job.Stop()

	assert.NotPanics(t, func() { job.Stop() })
}

func TestClientSyncJob_Start_DefaultInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		spy := &spySyncService{}
		job := newTestJob(spy)
		ctx, cancel := context.WithCancel(context.Background())

		job.Start(ctx, interval)
		time.Sleep(20 * time.Millisecond)
		cancel()
		job.Stop()

		assert.Equal(t, int64(0), spy.calls.Load(), "interval %v falls back to 5m", interval)
	}
}

func TestClientSyncJob_Restart_StopsPrevious(t *testing.T) {
	spy := &spySyncService{}
	job := newTestJob(spy)
	ctx := context.Background()

	job.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	callsBefore := spy.calls.Load()
	assert.Greater(t, callsBefore, int64(0))

	job.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	job.Stop()

	assert.Greater(t, spy.calls.Load(), callsBefore, "second Start keeps syncing")
}

func TestClientSyncJob_ContextCancel_StopsJob(t *testing.T) {
	job := newTestJob(&spySyncService{})
	ctx, cancel := context.WithCancel(context.Background())

	job.Start(ctx, 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		job.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop hung after context cancel")
	}
}

func TestClientSyncJob_FullSyncError_DoesNotStopJob(t *testing.T) {
	spy := &spySyncService{err: assert.AnError}
	job := newTestJob(spy)

	job.Start(context.Background(), 10*time.Millisecond)
	time.Sleep(55 * time.Millisecond)
	job.Stop()

	got := spy.calls.Load()
	assert.GreaterOrEqual(t, got, int64(3), "FullSync keeps being called despite errors: %d", got)
}
