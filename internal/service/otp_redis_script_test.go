package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"accounts-service/internal/apperr"
)

func newMiniredisOTP(t *testing.T, ttl time.Duration) (*RedisOTPManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisOTPManager(client, ttl), mr
}

func TestRedisOTPManager_ScriptConsumesOnlyMatchingCode(t *testing.T) {
	m, mr := newMiniredisOTP(t, 10*time.Minute)
	ctx := context.Background()

	code, err := m.Issue(ctx, " A@X.com ")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if got, _ := mr.Get("otp:a@x.com"); got != code {
		t.Fatalf("expected stored code %q, got %q", code, got)
	}
	if ttl := mr.TTL("otp:a@x.com"); ttl != 10*time.Minute {
		t.Fatalf("expected ttl 10m, got %v", ttl)
	}

	// 0000 nunca se genera: los codigos van de 1000 a 9999.
	if err := m.Verify(ctx, "a@x.com", "0000"); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected mismatch to fail, got %v", err)
	}
	if !mr.Exists("otp:a@x.com") {
		t.Fatalf("expected mismatch to keep the code")
	}

	if err := m.Verify(ctx, "a@x.com", code); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if mr.Exists("otp:a@x.com") {
		t.Fatalf("expected code to be deleted after use")
	}
	if err := m.Verify(ctx, "a@x.com", code); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
}

func TestRedisOTPManager_ScriptRejectsExpiredCode(t *testing.T) {
	m, mr := newMiniredisOTP(t, time.Minute)
	ctx := context.Background()

	code, err := m.Issue(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if err := m.Verify(ctx, "a@x.com", code); !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected expired code to fail, got %v", err)
	}
}

func TestRedisOTPManager_ScriptIsSingleUseUnderConcurrency(t *testing.T) {
	m, _ := newMiniredisOTP(t, 10*time.Minute)
	ctx := context.Background()

	code, err := m.Issue(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const attempts = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Verify(ctx, "a@x.com", code) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful verify, got %d", wins)
	}
}
