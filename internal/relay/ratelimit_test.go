package relay

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Burst(t *testing.T) {
	rl := NewRateLimiter(0.001, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow(), "request %d", i)
	}
	assert.False(t, rl.Allow())

	stats := rl.Stats()
	assert.Equal(t, int64(4), stats["total_requests"])
	assert.Equal(t, int64(1), stats["rejected"])
	assert.False(t, rl.LastUpdateTime().IsZero())
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(1000, 1)

	assert.True(t, rl.Allow())
	time.Sleep(5 * time.Millisecond)
	assert.True(t, rl.Allow())
}

func TestPerClientRateLimiter(t *testing.T) {
	pcrl := NewPerClientRateLimiter(0.001, 2)

	assert.True(t, pcrl.Allow("a"))
	assert.True(t, pcrl.Allow("a"))
	assert.False(t, pcrl.Allow("a"))
	assert.True(t, pcrl.Allow("b"))

	stats := pcrl.Stats()
	assert.Equal(t, 2, stats["active_clients"])
	assert.Equal(t, int64(4), stats["total_requests"])
	assert.Equal(t, int64(1), stats["total_rejected"])
}

func TestPerClientRateLimiter_CleanupKeepsUnrefilledBuckets(t *testing.T) {
	// 200 per day refills in 24h, longer than the default idle time.
	pcrl := NewPerClientRateLimiter(200.0/(24*time.Hour).Seconds(), 200)
	assert.Equal(t, 24*time.Hour, pcrl.maxIdleTime.Round(time.Hour))

	pcrl.Allow("a")
	pcrl.mu.Lock()
	pcrl.clients["a"].lastUpdate = time.Now().Add(-time.Hour)
	pcrl.cleanupLocked()
	_, kept := pcrl.clients["a"]
	pcrl.mu.Unlock()
	assert.True(t, kept)
}

func TestDefaultRateLimits(t *testing.T) {
	rl := DefaultRateLimits()
	assert.Equal(t, RateLimit{Requests: 10, Per: time.Minute}, rl.Predict)
	assert.Equal(t, []RateLimit{
		{Requests: 50, Per: time.Hour},
		{Requests: 200, Per: 24 * time.Hour},
	}, rl.Global)
	assert.Equal(t, "10 per 1m0s", rl.Predict.String())
}

func TestLimitSet_Middleware(t *testing.T) {
	ls := NewLimitSet(NewPerClientRateLimiter(0.001, 1))
	handler := ls.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, serve("/api/moods", "10.0.0.1:1234").Code)

	rr := serve("/api/moods", "10.0.0.1:5678")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded","message":"Too many requests. Please try again later."}`, rr.Body.String())

	assert.Equal(t, http.StatusOK, serve("/health", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, serve("/api/moods", "10.0.0.2:1234").Code)
}

func TestLimitSet_AllMustPass(t *testing.T) {
	ls := NewLimitSet(NewPerClientRateLimiter(0.001, 3))
	ls.Add(NewPerClientRateLimiter(0.001, 1))

	assert.True(t, ls.Allow("a"))
	assert.False(t, ls.Allow("a"))
	assert.Len(t, ls.Stats(), 2)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4242"
	assert.Equal(t, "192.168.1.5", clientKey(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", clientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", clientKey(req))
}

// fakeRedis is a minimal in-memory INCR/PEXPIRE server shared by fakeConns.
type fakeRedis struct {
	err     error
	counts  map[string]int64
	expires map[string]int64
	mu      sync.Mutex
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{counts: map[string]int64{}, expires: map[string]int64{}}
}

func (f *fakeRedis) pool() *redis.Pool {
	return &redis.Pool{
		MaxIdle: 1,
		Dial: func() (redis.Conn, error) {
			return &fakeConn{srv: f}, nil
		},
	}
}

type fakeConn struct {
	srv *fakeRedis
}

func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Err() error   { return nil }

func (c *fakeConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	f := c.srv
	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd {
	case "":
		return nil, nil
	case "INCR":
		if f.err != nil {
			return nil, f.err
		}
		key := args[0].(string)
		f.counts[key]++
		return f.counts[key], nil
	case "PEXPIRE":
		f.expires[args[0].(string)] = args[1].(int64)
		return int64(1), nil
	}
	return nil, fmt.Errorf("unsupported command %s", cmd)
}

func (c *fakeConn) Send(string, ...interface{}) error { return errors.New("not supported") }
func (c *fakeConn) Flush() error                      { return nil }
func (c *fakeConn) Receive() (interface{}, error)     { return nil, errors.New("not supported") }

func TestRedisLimiter_FixedWindow(t *testing.T) {
	srv := newFakeRedis()
	limit := RateLimit{Requests: 2, Per: time.Minute}
	l := NewRedisLimiter(srv.pool(), "hearme:ratelimit:predict", limit, nil)

	now := time.Unix(60*1000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	key := "hearme:ratelimit:predict:a:1000"
	srv.mu.Lock()
	assert.Equal(t, int64(3), srv.counts[key])
	assert.Equal(t, int64(60000), srv.expires[key])
	srv.mu.Unlock()

	now = now.Add(time.Minute)
	assert.True(t, l.Allow("a"))
}

func TestRedisLimiter_FallsBackOnError(t *testing.T) {
	srv := newFakeRedis()
	srv.err = errors.New("connection refused")
	fallback := NewPerClientRateLimiter(0.001, 1)
	l := NewRedisLimiter(srv.pool(), "p", RateLimit{Requests: 100, Per: time.Minute}, fallback)

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestRedisLimiter_DialFailure(t *testing.T) {
	pool := &redis.Pool{
		Dial: func() (redis.Conn, error) { return nil, errors.New("dial tcp: refused") },
	}

	l := NewRedisLimiter(pool, "p", RateLimit{Requests: 1, Per: time.Minute}, nil)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
}

func TestNewLimits_WithRedis(t *testing.T) {
	srv := newFakeRedis()
	limits := NewLimits(DefaultRateLimits(), srv.pool())

	require.Len(t, limits.Global.limiters, 2)
	for _, l := range append(limits.Global.limiters, limits.Predict.limiters...) {
		_, ok := l.(*RedisLimiter)
		assert.True(t, ok)
	}

	assert.True(t, limits.Global.Allow("a"))
	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.counts, 2)
	for key := range srv.counts {
		assert.True(t,
			strings.HasPrefix(key, "hearme:ratelimit:global:3600:a:") ||
				strings.HasPrefix(key, "hearme:ratelimit:global:86400:a:"),
			key)
	}
}
