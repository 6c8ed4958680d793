package gateway

import (
	"context"
	"testing"
	"time"
)

func TestBreakerTripsAfterMaxErrors(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(clock, BreakerConfig{MaxErrors: 10, Cooldown: 60 * time.Second, IdleWindow: 5 * time.Minute})

	tripped := false
	for i := 0; i < 10; i++ {
		tripped = b.RecordFailure()
		clock.advance(time.Second)
	}
	if !tripped {
		t.Fatalf("expected breaker to trip after 10 consecutive errors")
	}

	// 下一次准入必须阻塞整个冷却期，然后清零计数。
	if err := b.Admit(context.Background()); err != nil {
		t.Fatalf("admit: %v", err)
	}
	sleeps := clock.recorded()
	if len(sleeps) != 1 || sleeps[0] != 60*time.Second {
		t.Fatalf("expected one 60s cooldown sleep, got %v", sleeps)
	}
	if b.ErrorCount() != 0 {
		t.Fatalf("expected error count reset, got %d", b.ErrorCount())
	}
}

func TestBreakerIdleWindowResetsCount(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(clock, BreakerConfig{MaxErrors: 10, Cooldown: 60 * time.Second, IdleWindow: 5 * time.Minute})

	for i := 0; i < 9; i++ {
		b.RecordFailure()
	}
	clock.advance(6 * time.Minute)
	if b.RecordFailure() {
		t.Fatalf("errors after an idle gap must start a fresh sequence")
	}
	if b.ErrorCount() != 1 {
		t.Fatalf("expected count 1 after idle reset, got %d", b.ErrorCount())
	}
}

func TestBreakerSuccessBreaksSequence(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(clock, BreakerConfig{MaxErrors: 3, Cooldown: time.Second, IdleWindow: time.Minute})
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	if b.ErrorCount() != 0 {
		t.Fatalf("success must reset consecutive errors, got %d", b.ErrorCount())
	}
}

func TestBreakerAdmitPassThroughWhenHealthy(t *testing.T) {
	clock := newFakeClock()
	b := NewBreaker(clock, BreakerConfig{MaxErrors: 3, Cooldown: time.Second, IdleWindow: time.Minute})
	if err := b.Admit(context.Background()); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if len(clock.recorded()) != 0 {
		t.Fatalf("healthy breaker must not sleep")
	}
}
