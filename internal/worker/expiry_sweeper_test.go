package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSweeper struct {
	mu       sync.Mutex
	sweeps   int
	batch    int
	evicts   int
	idle     time.Duration
	sweepErr error
}

func (f *fakeSweeper) SweepExpired(_ context.Context, batchSize int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	f.batch = batchSize
	return 2, f.sweepErr
}

func (f *fakeSweeper) EvictIdleSessions(idle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicts++
	f.idle = idle
	return 1
}

func (f *fakeSweeper) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweeps, f.evicts
}

func TestRunOnce(t *testing.T) {
	f := &fakeSweeper{}
	w := NewExpirySweeper(f, time.Second, 50, 4*time.Hour, zerolog.Nop())
	w.RunOnce(context.Background())

	if f.sweeps != 1 || f.batch != 50 {
		t.Errorf("sweeps=%d batch=%d", f.sweeps, f.batch)
	}
	if f.evicts != 1 || f.idle != 4*time.Hour {
		t.Errorf("evicts=%d idle=%v", f.evicts, f.idle)
	}
}

func TestRunOnceSurvivesSweepError(t *testing.T) {
	f := &fakeSweeper{sweepErr: errors.New("db down")}
	w := NewExpirySweeper(f, time.Second, 0, 0, zerolog.Nop())
	w.RunOnce(context.Background())

	if f.batch != 200 {
		t.Errorf("default batch = %d, want 200", f.batch)
	}
	if f.evicts != 0 {
		t.Error("eviction is disabled when idle is zero")
	}
}

func TestStartTicksUntilCancelled(t *testing.T) {
	f := &fakeSweeper{}
	w := NewExpirySweeper(f, 5*time.Millisecond, 10, time.Minute, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if sweeps, _ := f.counts(); sweeps >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not tick")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
