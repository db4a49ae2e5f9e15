package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextTickAlignsToLocalMidnight(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	s := New(Options{Interval: 24 * time.Hour, AlignToStart: true, Location: jst}, zerolog.Nop())

	now := time.Date(2024, 6, 30, 15, 4, 0, 0, jst)
	next := s.nextTick(now)

	want := time.Date(2024, 7, 1, 0, 0, 0, 0, jst)
	if !next.Equal(want) {
		t.Fatalf("next tick = %s, want %s", next, want)
	}
	if got := s.tickStart(next.Add(3 * time.Second)); !got.Equal(want) {
		t.Fatalf("tick start = %s, want %s", got, want)
	}
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())
	now := time.Date(2024, 6, 30, 15, 4, 0, 0, time.UTC)
	if next := s.nextTick(now); !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("unaligned next tick should be now+interval, got %s", next)
	}
}

func TestRunImmediatelyThenStopsOnCancel(t *testing.T) {
	s := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(context.Context, time.Time) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return errors.New("tick errors are logged, not fatal")
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run should stop with context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one immediate tick, got %d", calls)
	}
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero interval")
		}
	}()
	New(Options{}, zerolog.Nop())
}
