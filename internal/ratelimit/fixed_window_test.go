package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryFixedWindowLimiter(t *testing.T) {
	limiter, err := NewMemoryFixedWindowLimiter(3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !limiter.Allow("ip-1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("request over quota should be denied")
	}

	// Other keys have their own window.
	if !limiter.Allow("ip-2") {
		t.Fatalf("different key should be allowed")
	}
}

func TestMemoryFixedWindowLimiterRejectsBadConfig(t *testing.T) {
	if _, err := NewMemoryFixedWindowLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewMemoryFixedWindowLimiter(1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestRedisFixedWindowLimiter(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	if !limiter.Allow("ip-1") || !limiter.Allow("ip-1") {
		t.Fatalf("requests within quota should be allowed")
	}
	if limiter.Allow("ip-1") {
		t.Fatalf("request over quota should be denied")
	}
}

func TestRedisFixedWindowLimiterFailsClosed(t *testing.T) {
	redisSrv := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redisSrv.Close()

	if limiter.Allow("ip-1") {
		t.Fatalf("expected fail-closed when redis is unavailable")
	}
}

func TestLimiterClose(t *testing.T) {
	memLimiter, err := NewMemoryFixedWindowLimiter(1, time.Minute)
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	if err := memLimiter.Close(); err != nil {
		t.Fatalf("close memory limiter: %v", err)
	}

	redisSrv := miniredis.RunT(t)
	redisLimiter, err := NewRedisFixedWindowLimiter(redisSrv.Addr(), "", "test:ratelimit", 1, time.Minute)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	if err := redisLimiter.Close(); err != nil {
		t.Fatalf("close redis limiter: %v", err)
	}
	if redisLimiter.Allow("ip-1") {
		t.Fatalf("closed limiter should fail closed")
	}
}

func TestRedisFixedWindowLimiterRequiresAddr(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("", "", "p", 1, time.Minute); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
