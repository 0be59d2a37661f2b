package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memCounterStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
	now     time.Time
	err     error
}

func newMemCounterStore() *memCounterStore {
	return &memCounterStore{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
		now:     time.Now(),
	}
}

func (s *memCounterStore) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *memCounterStore) IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if dl, ok := s.expires[key]; ok && s.now.After(dl) {
		delete(s.counts, key)
		delete(s.expires, key)
	}
	s.counts[key]++
	if s.counts[key] == 1 {
		s.expires[key] = s.now.Add(window)
	}
	return s.counts[key], nil
}

func (s *memCounterStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	dl, ok := s.expires[key]
	if !ok || s.now.After(dl) {
		return 0, nil
	}
	return dl.Sub(s.now), nil
}

func TestLimiter_WindowLimit(t *testing.T) {
	store := newMemCounterStore()
	l := New(store)
	ctx := context.Background()

	// Five allowed, the sixth denied with retry-after.
	for i := 1; i <= 5; i++ {
		res := l.Check(ctx, "login", "/v1/auth/login", "1.2.3.4", 5, time.Minute)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 5-i {
			t.Errorf("request %d: Remaining = %d, want %d", i, res.Remaining, 5-i)
		}
	}
	res := l.Check(ctx, "login", "/v1/auth/login", "1.2.3.4", 5, time.Minute)
	if res.Allowed {
		t.Fatal("6th request in window should be denied")
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Errorf("RetryAfter = %v, want within (0, 1m]", res.RetryAfter)
	}

	// After the window elapses the counter restarts at 1.
	store.advance(2 * time.Minute)
	res = l.Check(ctx, "login", "/v1/auth/login", "1.2.3.4", 5, time.Minute)
	if !res.Allowed {
		t.Fatal("request after window should be allowed")
	}
	if res.Remaining != 4 {
		t.Errorf("Remaining after restart = %d, want 4", res.Remaining)
	}
}

func TestLimiter_KeysAreIsolated(t *testing.T) {
	store := newMemCounterStore()
	l := New(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		l.Check(ctx, "login", "/v1/auth/login", "1.2.3.4", 3, time.Minute)
	}
	if res := l.Check(ctx, "login", "/v1/auth/login", "1.2.3.4", 3, time.Minute); res.Allowed {
		t.Error("client 1.2.3.4 should be over limit")
	}
	if res := l.Check(ctx, "login", "/v1/auth/login", "5.6.7.8", 3, time.Minute); !res.Allowed {
		t.Error("a different client must not share the counter")
	}
	if res := l.Check(ctx, "register", "/v1/auth/register", "1.2.3.4", 3, time.Minute); !res.Allowed {
		t.Error("a different route must not share the counter")
	}
}

func TestLimiter_FailsOpenOnStoreError(t *testing.T) {
	store := newMemCounterStore()
	store.err = errors.New("connection refused")
	l := New(store)

	res := l.Check(context.Background(), "login", "/v1/auth/login", "1.2.3.4", 5, time.Minute)
	if !res.Allowed {
		t.Error("store outage should fail open")
	}
}

func TestParseRate(t *testing.T) {
	testCases := []struct {
		rate   string
		count  int
		window time.Duration
		err    bool
	}{
		{"5/minute", 5, time.Minute, false},
		{"100/hour", 100, time.Hour, false},
		{"1/second", 1, time.Second, false},
		{"10/day", 10, 24 * time.Hour, false},
		{"3/Minute", 3, time.Minute, false},
		{"nope", 0, 0, true},
		{"x/minute", 0, 0, true},
		{"0/minute", 0, 0, true},
		{"5/fortnight", 0, 0, true},
	}
	for _, tc := range testCases {
		count, window, err := ParseRate(tc.rate)
		if tc.err {
			if err == nil {
				t.Errorf("ParseRate(%q): expected error", tc.rate)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseRate(%q): %v", tc.rate, err)
			continue
		}
		if count != tc.count || window != tc.window {
			t.Errorf("ParseRate(%q) = (%d, %v), want (%d, %v)", tc.rate, count, window, tc.count, tc.window)
		}
	}
}
