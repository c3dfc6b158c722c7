// Package backend provides the client used to reach the HearMe relay backend.
//
// A Resolver probes an ordered list of candidate base URLs, binds to the first
// one whose health check answers 200, and routes every remote call through that
// binding until it is reset or explicitly rebound.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultProbeTimeout caps a single health probe.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultRequestTimeout is the timeout for calls through the bound endpoint.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultLogTimeout is the shorter timeout for best-effort conversation logging.
	DefaultLogTimeout = 5 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// DefaultHeaders are sent with every request.
var DefaultHeaders = map[string]string{
	"Accept-Language":            "ar",
	"ngrok-skip-browser-warning": "true",
}

// Config holds resolver settings. Zero durations fall back to the defaults.
type Config struct {
	HTTPClient *http.Client
	// MeterProvider receives the probe and call counters; nil uses the global provider.
	MeterProvider  metric.MeterProvider
	Headers        map[string]string
	Candidates     []string
	ProbeTimeout   time.Duration
	RequestTimeout time.Duration
	LogTimeout     time.Duration
}

// Endpoint is a bound backend.
type Endpoint struct {
	BoundAt time.Time `json:"bound_at"`
	URL     string    `json:"url"`
	Healthy bool      `json:"healthy"`
}

// Resolver selects a live backend among candidates and calls it.
// It is safe for concurrent use.
type Resolver struct {
	client         *http.Client
	metrics        *resolverMetrics
	current        atomic.Pointer[Endpoint]
	headers        map[string]string
	candidates     []string
	group          singleflight.Group
	probeTimeout   time.Duration
	requestTimeout time.Duration
	logTimeout     time.Duration
	candidatesMu   sync.RWMutex
}

// New creates an unbound resolver.
func New(cfg Config) *Resolver {
	r := &Resolver{
		client:         cfg.HTTPClient,
		headers:        make(map[string]string, len(DefaultHeaders)+len(cfg.Headers)),
		probeTimeout:   cfg.ProbeTimeout,
		requestTimeout: cfg.RequestTimeout,
		logTimeout:     cfg.LogTimeout,
		metrics:        newResolverMetrics(cfg.MeterProvider),
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}
	if r.requestTimeout <= 0 {
		r.requestTimeout = DefaultRequestTimeout
	}
	if r.logTimeout <= 0 {
		r.logTimeout = DefaultLogTimeout
	}
	for k, v := range DefaultHeaders {
		r.headers[k] = v
	}
	for k, v := range cfg.Headers {
		r.headers[k] = v
	}
	r.SetCandidates(cfg.Candidates)
	return r
}

// SetCandidates replaces the candidate list used by lazy resolution.
// The current binding is left alone; call Reset to re-resolve against the new list.
func (r *Resolver) SetCandidates(urls []string) {
	cleaned := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = normalizeURL(u); u != "" {
			cleaned = append(cleaned, u)
		}
	}
	r.candidatesMu.Lock()
	r.candidates = cleaned
	r.candidatesMu.Unlock()
}

// Candidates returns a copy of the candidate list.
func (r *Resolver) Candidates() []string {
	r.candidatesMu.RLock()
	defer r.candidatesMu.RUnlock()
	out := make([]string, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Current returns the bound endpoint, or nil when unbound.
func (r *Resolver) Current() *Endpoint {
	return r.current.Load()
}

// Reset clears the binding so the next call resolves again.
func (r *Resolver) Reset() {
	if old := r.current.Swap(nil); old != nil {
		log.Info().Str("url", old.URL).Msg("Backend binding reset")
	}
}

// Resolve probes candidates in order and binds the first healthy one.
// Probes run one at a time; a candidate that does not answer within the probe
// timeout is abandoned. If none is healthy the binding is cleared.
func (r *Resolver) Resolve(ctx context.Context, candidates []string) (string, error) {
	tried := 0
	for _, raw := range candidates {
		if ctx.Err() != nil {
			break
		}
		url := normalizeURL(raw)
		if url == "" {
			continue
		}
		tried++
		if err := r.probe(ctx, url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("Backend unavailable")
			continue
		}
		r.bind(url)
		log.Info().Str("url", url).Msg("Connected to backend")
		return url, nil
	}

	r.current.Store(nil)
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoBackendAvailable, err)
	}
	return "", fmt.Errorf("%w: %d candidates failed health check", ErrNoBackendAvailable, tried)
}

// Rebind switches to url after it passes a health probe.
// On failure the previous binding is kept.
func (r *Resolver) Rebind(ctx context.Context, url string) error {
	url = normalizeURL(url)
	if url == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidEndpoint)
	}
	if err := r.probe(ctx, url); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidEndpoint, url, err)
	}
	r.bind(url)
	log.Info().Str("url", url).Msg("Switched backend")
	return nil
}

// Call sends op with payload to the bound endpoint and decodes the response into out.
// payload and out may be nil. When unbound, Call resolves first; concurrent callers
// share one resolution.
func (r *Resolver) Call(ctx context.Context, op Operation, payload, out any) error {
	return r.call(ctx, op, payload, out, r.requestTimeout)
}

func (r *Resolver) call(ctx context.Context, op Operation, payload, out any, timeout time.Duration) error {
	ep, err := r.ensureBound(ctx)
	if err != nil {
		r.metrics.call(ctx, op.Name, "not_connected")
		return err
	}
	err = r.do(ctx, ep.URL, op, payload, out, timeout)
	r.metrics.call(ctx, op.Name, outcome(err))
	return err
}

// ensureBound returns the bound endpoint, resolving lazily when there is none.
// The shared resolution is detached from any one caller so that a short caller
// deadline cannot fail the others; probe timeouts bound it instead. Each caller
// still stops waiting when its own context ends.
func (r *Resolver) ensureBound(ctx context.Context) (*Endpoint, error) {
	if ep := r.current.Load(); ep != nil {
		return ep, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan("resolve", func() (any, error) {
		if ep := r.current.Load(); ep != nil {
			return ep, nil
		}
		if _, err := r.Resolve(shared, r.Candidates()); err != nil {
			return nil, err
		}
		return r.current.Load(), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for resolution: %w", ErrNotConnected, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConnected, res.Err)
	}
	ep, _ := res.Val.(*Endpoint)
	if ep == nil {
		return nil, ErrNotConnected
	}
	return ep, nil
}

func (r *Resolver) bind(url string) {
	r.current.Store(&Endpoint{URL: url, Healthy: true, BoundAt: time.Now()})
}

// probe checks GET {url}/health within the probe timeout. Only 200 is healthy.
func (r *Resolver) probe(parent context.Context, url string) error {
	ctx, cancel := context.WithTimeout(parent, r.probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+OpHealth.Path, nil)
	if err != nil {
		return err
	}
	r.setHeaders(req)

	resp, err := r.client.Do(req)
	if err != nil {
		r.metrics.probe(ctx, url, false)
		if perr := parent.Err(); perr != nil {
			if errors.Is(perr, context.DeadlineExceeded) {
				return fmt.Errorf("%w: caller deadline reached during health probe: %w", ErrTimeout, perr)
			}
			return fmt.Errorf("health probe canceled: %w", perr)
		}
		if isTimeout(err) {
			return fmt.Errorf("%w: health probe after %s", ErrTimeout, r.probeTimeout)
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	healthy := resp.StatusCode == http.StatusOK
	r.metrics.probe(ctx, url, healthy)
	if !healthy {
		return fmt.Errorf("health check returned %s", resp.Status)
	}
	return nil
}

// do performs a single request against baseURL.
func (r *Resolver) do(ctx context.Context, baseURL string, op Operation, payload, out any, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op.Name, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, baseURL+op.Path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op.Name, err)
	}
	r.setHeaders(req)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, op.Name, timeout)
		}
		return fmt.Errorf("%s: %w", op.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RemoteError{
			Operation:  op.Name,
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp.Body),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %s after %s", ErrTimeout, op.Name, timeout)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%s: decode response: %w", op.Name, err)
	}
	return nil
}

func (r *Resolver) setHeaders(req *http.Request) {
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
}

// readErrorMessage extracts "error" or "message" from a JSON error body,
// falling back to the raw text.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}

func outcome(err error) string {
	var remote *RemoteError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}
