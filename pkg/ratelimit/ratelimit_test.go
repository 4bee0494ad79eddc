package ratelimit

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryEleventhCallDenied(t *testing.T) {
	m := NewMemory(10, time.Minute)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		res, err := m.Allow(ctx, "client-a")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("call %d denied", i)
		}
		if res.Remaining != 10-i {
			t.Errorf("call %d: expected %d remaining, got %d", i, 10-i, res.Remaining)
		}
	}

	res, _ := m.Allow(ctx, "client-a")
	if res.Allowed {
		t.Fatal("11th call allowed")
	}
	if res.ResetAfter <= 0 {
		t.Errorf("expected positive reset, got %s", res.ResetAfter)
	}

	if res, _ := m.Allow(ctx, "client-b"); !res.Allowed {
		t.Error("other client affected by client-a's limit")
	}
}

func TestMemorySlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewMemory(2, time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	m.Allow(ctx, "k")
	now = now.Add(30 * time.Second)
	m.Allow(ctx, "k")

	res, _ := m.Allow(ctx, "k")
	if res.Allowed {
		t.Fatal("third call inside window allowed")
	}
	if res.ResetAfter != 30*time.Second {
		t.Errorf("expected reset when first hit expires (30s), got %s", res.ResetAfter)
	}

	now = now.Add(31 * time.Second)
	res, _ = m.Allow(ctx, "k")
	if !res.Allowed || res.Remaining != 0 {
		t.Errorf("expected allowed with 0 remaining after first hit expired, got %+v", res)
	}
}

func TestMemoryForgetsIdleClients(t *testing.T) {
	now := time.Unix(5000, 0)
	m := NewMemory(10, time.Minute)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		m.Allow(ctx, fmt.Sprintf("client-%d", i))
	}
	if m.Len() != 5000 {
		t.Fatalf("expected 5000 keys, got %d", m.Len())
	}

	now = now.Add(time.Hour)
	if res, _ := m.Allow(ctx, "late"); !res.Allowed {
		t.Fatal("late call denied")
	}
	if n := m.Len(); n != 1 {
		t.Errorf("expected only the late client tracked, got %d keys", n)
	}
}

func TestMemoryPrune(t *testing.T) {
	now := time.Unix(0, 0)
	m := NewMemory(5, time.Second)
	m.now = func() time.Time { return now }

	m.Allow(context.Background(), "a")
	m.Allow(context.Background(), "b")
	now = now.Add(2 * time.Second)

	if n := m.Prune(); n != 2 {
		t.Errorf("expected 2 pruned keys, got %d", n)
	}
}

func TestRedisEleventhCallDenied(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	r, err := NewRedis(url, 10, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx := context.Background()
	if err := r.Ping(ctx); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	key := "test-" + uuid.NewString()
	for i := 0; i < 10; i++ {
		res, err := r.Allow(ctx, key)
		if err != nil {
			t.Fatal(err)
		}
		if !res.Allowed {
			t.Fatalf("call %d denied", i+1)
		}
	}
	res, err := r.Allow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Allowed || res.ResetAfter <= 0 {
		t.Errorf("expected denial with positive reset, got %+v", res)
	}
}
