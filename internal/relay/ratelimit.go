package relay

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Limiter decides whether a client may make another request.
type Limiter interface {
	Allow(clientKey string) bool
}

// RateLimit is a number of requests allowed per period.
type RateLimit struct {
	Requests int
	Per      time.Duration
}

func (rl RateLimit) String() string {
	return fmt.Sprintf("%d per %s", rl.Requests, rl.Per)
}

// RateLimits configures the relay's limits.
type RateLimits struct {
	// Predict applies to POST /predict only.
	Predict RateLimit

	// Global applies to every route except health checks.
	Global []RateLimit
}

// DefaultRateLimits returns 10/minute on predict and 50/hour plus 200/day globally.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Predict: RateLimit{Requests: 10, Per: time.Minute},
		Global: []RateLimit{
			{Requests: 50, Per: time.Hour},
			{Requests: 200, Per: 24 * time.Hour},
		},
	}
}

// Limits holds the built limiter sets.
type Limits struct {
	Predict *LimitSet
	Global  *LimitSet
}

// NewLimits builds per-client limiters. When pool is non-nil the counters are
// kept in Redis and the in-memory limiters serve as fallback.
func NewLimits(cfg RateLimits, pool *redis.Pool) *Limits {
	build := func(name string, rl RateLimit) Limiter {
		local := NewPerClientRateLimiter(float64(rl.Requests)/rl.Per.Seconds(), rl.Requests)
		if pool == nil {
			return local
		}
		return NewRedisLimiter(pool, "hearme:ratelimit:"+name, rl, local)
	}

	limits := &Limits{
		Predict: NewLimitSet(build("predict", cfg.Predict)),
		Global:  NewLimitSet(),
	}
	for _, rl := range cfg.Global {
		limits.Global.Add(build(fmt.Sprintf("global:%d", int64(rl.Per.Seconds())), rl))
	}
	return limits
}

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	lastUpdate time.Time
	rate       float64
	burst      int
	tokens     float64
	requests   int64
	rejected   int64
	mu         sync.Mutex
}

// LastUpdateTime returns the last update time.
// Thread-safe - acquires the limiter's lock.
func (rl *RateLimiter) LastUpdateTime() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.lastUpdate
}

// NewRateLimiter creates a new rate limiter.
// rate is the number of requests per second to allow.
// burst is the maximum burst of requests to allow.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: time.Now(),
	}
}

// Allow checks if a request should be allowed.
// Returns true if the request is allowed, false if rate limited.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.requests++

	// Calculate tokens added since last update
	now := time.Now()
	elapsed := now.Sub(rl.lastUpdate).Seconds()
	rl.tokens += elapsed * rl.rate
	if rl.tokens > float64(rl.burst) {
		rl.tokens = float64(rl.burst)
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}

	rl.rejected++
	return false
}

// Stats returns rate limiter statistics.
func (rl *RateLimiter) Stats() map[string]any {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]any{
		"rate":           rl.rate,
		"burst":          rl.burst,
		"current_tokens": rl.tokens,
		"total_requests": rl.requests,
		"rejected":       rl.rejected,
		"rejection_rate": float64(rl.rejected) / max(float64(rl.requests), 1),
	}
}

// PerClientRateLimiter implements per-client rate limiting.
type PerClientRateLimiter struct {
	lastCleanup     time.Time
	clients         map[string]*RateLimiter
	rate            float64
	burst           int
	cleanupInterval time.Duration
	maxIdleTime     time.Duration
	mu              sync.Mutex
}

// NewPerClientRateLimiter creates a new per-client rate limiter.
// Idle clients are forgotten only once their bucket would have refilled.
func NewPerClientRateLimiter(rate float64, burst int) *PerClientRateLimiter {
	maxIdle := 10 * time.Minute
	if rate > 0 {
		if refill := time.Duration(float64(burst) / rate * float64(time.Second)); refill > maxIdle {
			maxIdle = refill
		}
	}
	return &PerClientRateLimiter{
		rate:            rate,
		burst:           burst,
		clients:         make(map[string]*RateLimiter),
		cleanupInterval: 5 * time.Minute,
		maxIdleTime:     maxIdle,
		lastCleanup:     time.Now(),
	}
}

// getLimiter returns a rate limiter for the given client key.
func (pcrl *PerClientRateLimiter) getLimiter(key string) *RateLimiter {
	pcrl.mu.Lock()
	defer pcrl.mu.Unlock()

	if time.Since(pcrl.lastCleanup) > pcrl.cleanupInterval {
		pcrl.cleanupLocked()
	}

	limiter, exists := pcrl.clients[key]
	if !exists {
		limiter = NewRateLimiter(pcrl.rate, pcrl.burst)
		pcrl.clients[key] = limiter
	}

	return limiter
}

// cleanupLocked removes idle limiters. Must be called with lock held.
func (pcrl *PerClientRateLimiter) cleanupLocked() {
	now := time.Now()
	for key, limiter := range pcrl.clients {
		limiter.mu.Lock()
		lastUpdate := limiter.lastUpdate
		limiter.mu.Unlock()

		if now.Sub(lastUpdate) > pcrl.maxIdleTime {
			delete(pcrl.clients, key)
		}
	}
	pcrl.lastCleanup = now
}

// Allow checks if a request from the given client should be allowed.
func (pcrl *PerClientRateLimiter) Allow(clientKey string) bool {
	return pcrl.getLimiter(clientKey).Allow()
}

// Stats returns aggregate statistics.
// Uses two-phase approach to avoid nested lock acquisition.
func (pcrl *PerClientRateLimiter) Stats() map[string]any {
	pcrl.mu.Lock()
	rate := pcrl.rate
	burst := pcrl.burst
	activeClients := len(pcrl.clients)
	limiters := make([]*RateLimiter, 0, activeClients)
	for _, limiter := range pcrl.clients {
		limiters = append(limiters, limiter)
	}
	pcrl.mu.Unlock()

	var totalRequests, totalRejected int64
	for _, limiter := range limiters {
		limiter.mu.Lock()
		totalRequests += limiter.requests
		totalRejected += limiter.rejected
		limiter.mu.Unlock()
	}

	return map[string]any{
		"rate":           rate,
		"burst":          burst,
		"active_clients": activeClients,
		"total_requests": totalRequests,
		"total_rejected": totalRejected,
	}
}

// RedisLimiter is a fixed-window counter shared through Redis, so several
// relay processes enforce one limit. Redis errors fall back to a local limiter.
type RedisLimiter struct {
	pool     *redis.Pool
	fallback Limiter
	sampler  zerolog.Sampler
	now      func() time.Time
	prefix   string
	limit    RateLimit
}

// NewRedisLimiter creates a limiter keyed under prefix.
func NewRedisLimiter(pool *redis.Pool, prefix string, limit RateLimit, fallback Limiter) *RedisLimiter {
	return &RedisLimiter{
		pool:     pool,
		fallback: fallback,
		sampler:  &zerolog.BurstSampler{Burst: 1, Period: time.Minute},
		now:      time.Now,
		prefix:   prefix,
		limit:    limit,
	}
}

// Allow increments the client's counter for the current window.
func (l *RedisLimiter) Allow(clientKey string) bool {
	window := l.now().UnixNano() / int64(l.limit.Per)
	key := fmt.Sprintf("%s:%s:%d", l.prefix, clientKey, window)

	conn := l.pool.Get()
	defer conn.Close()

	n, err := redis.Int(conn.Do("INCR", key))
	if err != nil {
		log.Logger.Sample(l.sampler).Warn().Err(err).Msg("Redis rate limiter unavailable, using local limiter")
		if l.fallback == nil {
			return true
		}
		return l.fallback.Allow(clientKey)
	}
	if n == 1 {
		if _, err := conn.Do("PEXPIRE", key, l.limit.Per.Milliseconds()); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to set rate limit expiry")
		}
	}
	return n <= l.limit.Requests
}

// NewRedisPool creates a connection pool for addr.
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(2*time.Second),
				redis.DialReadTimeout(time.Second),
				redis.DialWriteTimeout(time.Second),
			)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// LimitSet applies several limiters; a request must pass all of them.
type LimitSet struct {
	ExemptPaths map[string]bool
	limiters    []Limiter
}

// NewLimitSet creates a set over limiters. Health checks are exempt.
func NewLimitSet(limiters ...Limiter) *LimitSet {
	return &LimitSet{
		ExemptPaths: map[string]bool{"/health": true},
		limiters:    limiters,
	}
}

// Add appends a limiter.
func (ls *LimitSet) Add(l Limiter) {
	ls.limiters = append(ls.limiters, l)
}

// Allow reports whether clientKey passes every limiter.
func (ls *LimitSet) Allow(clientKey string) bool {
	for _, l := range ls.limiters {
		if !l.Allow(clientKey) {
			return false
		}
	}
	return true
}

// Stats returns the statistics of the in-memory limiters.
func (ls *LimitSet) Stats() []map[string]any {
	out := make([]map[string]any, 0, len(ls.limiters))
	for _, l := range ls.limiters {
		switch v := l.(type) {
		case *PerClientRateLimiter:
			out = append(out, v.Stats())
		case *RedisLimiter:
			out = append(out, map[string]any{"backend": "redis", "limit": v.limit.String()})
		}
	}
	return out
}

// Middleware rejects requests over the limit with 429 and a JSON body.
func (ls *LimitSet) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ls.ExemptPaths[r.URL.Path] || ls.Allow(clientKey(r)) {
			next.ServeHTTP(w, r)
			return
		}
		writeJSONStatus(w, http.StatusTooManyRequests, map[string]string{
			"error":   "Rate limit exceeded",
			"message": "Too many requests. Please try again later.",
		})
	})
}

// clientKey identifies the caller by IP (X-Real-IP is set by the RealIP middleware).
func clientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
