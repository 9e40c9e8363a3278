package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
)

type fakeCounter struct {
	counts  map[string]int64
	expires map[string]time.Duration
	fail    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(ctx context.Context, key string) *goredis.IntCmd {
	cmd := goredis.NewIntCmd(ctx, "incr", key)
	if f.fail != nil {
		cmd.SetErr(f.fail)
		return cmd
	}
	f.counts[key]++
	cmd.SetVal(f.counts[key])
	return cmd
}

func (f *fakeCounter) Expire(ctx context.Context, key string, d time.Duration) *goredis.BoolCmd {
	f.expires[key] = d
	cmd := goredis.NewBoolCmd(ctx, "expire", key)
	cmd.SetVal(true)
	return cmd
}

func (f *fakeCounter) TTL(ctx context.Context, key string) *goredis.DurationCmd {
	cmd := goredis.NewDurationCmd(ctx, time.Second, "ttl", key)
	cmd.SetVal(f.expires[key])
	return cmd
}

func TestAllow(t *testing.T) {
	fc := newFakeCounter()
	l := New(fc, "chat", 2, 30*time.Second, nil)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, "U1")
		if err != nil || !ok {
			t.Fatalf("hit %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, retry, err := l.Allow(ctx, "U1")
	if err != nil || ok {
		t.Fatalf("third hit: ok=%v err=%v", ok, err)
	}
	if retry != 30*time.Second {
		t.Errorf("retry = %v", retry)
	}
	if fc.expires["chat:U1"] != 30*time.Second {
		t.Errorf("window not set: %v", fc.expires)
	}
	if ok, _, _ := l.Allow(ctx, "U2"); !ok {
		t.Error("other key limited")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var l *Limiter
	if ok, _, err := l.Allow(context.Background(), "x"); !ok || err != nil {
		t.Errorf("nil limiter: ok=%v err=%v", ok, err)
	}
	if New(nil, "chat", 5, time.Minute, nil) != nil {
		t.Error("New without redis should return nil")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fc := newFakeCounter()
	l := New(fc, "chat", 1, time.Minute, nil)
	r := gin.New()
	r.POST("/chat", l.Middleware(func(c *gin.Context) string { return "U1" }), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && w.Header().Get("Retry-After") != "60" {
			t.Errorf("Retry-After = %q", w.Header().Get("Retry-After"))
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	fc.fail = errors.New("connection refused")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
	if w.Code != http.StatusOK {
		t.Errorf("redis down: code = %d, want pass-through", w.Code)
	}
}
