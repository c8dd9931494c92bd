package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestGovernorAcquireRelease(t *testing.T) {
	g := New(100, 5, 2, time.Second)

	release, err := g.Acquire(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release()
}

func TestGovernorGlobalCapBlocks(t *testing.T) {
	g := New(1000, 10, 1, 50*time.Millisecond)

	release, err := g.Acquire(context.Background(), "a.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer release()

	_, err = g.Acquire(context.Background(), "b.example.com")
	if err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestGovernorPerHostBucketExhausted(t *testing.T) {
	g := New(1, 1, 10, 30*time.Millisecond)

	release1, err := g.Acquire(context.Background(), "shop.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	release1()

	_, err = g.Acquire(context.Background(), "shop.example.com")
	if err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited on exhausted bucket, got %v", err)
	}
}

func TestGovernorConfigurePerHost(t *testing.T) {
	g := New(1, 1, 10, time.Second)
	g.Configure("fast.example.com", HostLimits{RequestsPerSecond: 1000, Burst: 10})

	for i := 0; i < 5; i++ {
		release, err := g.Acquire(context.Background(), "fast.example.com")
		if err != nil {
			t.Fatalf("iteration %d: unexpected error: %v", i, err)
		}
		release()
	}
}
