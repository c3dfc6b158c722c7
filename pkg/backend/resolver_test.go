package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/hearme/pkg/models"
)

// unreachable is a local address nothing listens on.
const unreachable = "http://127.0.0.1:1"

// fakeBackend is a relay stand-in that counts health probes.
type fakeBackend struct {
	*httptest.Server
	predict      http.HandlerFunc
	probes       atomic.Int32
	healthStatus atomic.Int32
	healthDelay  time.Duration
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	fb.healthStatus.Store(http.StatusOK)
	fb.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			fb.probes.Add(1)
			if fb.healthDelay > 0 {
				select {
				case <-time.After(fb.healthDelay):
				case <-r.Context().Done():
					return
				}
			}
			w.WriteHeader(int(fb.healthStatus.Load()))
			_ = json.NewEncoder(w).Encode(models.HealthStatus{Status: "healthy", Model: "lexicon"})
		case "/predict":
			if fb.predict != nil {
				fb.predict(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(models.Prediction{
				Label:         models.LabelNotDepressed,
				Probabilities: map[string]float64{models.LabelNotDepressed: 0.9, models.LabelDepressed: 0.1},
				Symptoms:      map[string]int{},
			})
		case "/log_conversation":
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fb.Close)
	return fb
}

func TestResolve_FirstHealthyInOrder(t *testing.T) {
	broken := newFakeBackend(t)
	broken.healthStatus.Store(http.StatusInternalServerError)
	first := newFakeBackend(t)
	second := newFakeBackend(t)

	r := New(Config{ProbeTimeout: time.Second})
	url, err := r.Resolve(context.Background(), []string{unreachable, broken.URL, first.URL + "/", second.URL})
	require.NoError(t, err)

	assert.Equal(t, first.URL, url)
	require.NotNil(t, r.Current())
	assert.Equal(t, first.URL, r.Current().URL)
	assert.True(t, r.Current().Healthy)
	assert.Equal(t, int32(0), second.probes.Load(), "candidates after the first healthy one are not probed")
}

func TestResolve_NoneHealthy(t *testing.T) {
	broken := newFakeBackend(t)
	broken.healthStatus.Store(http.StatusServiceUnavailable)

	r := New(Config{ProbeTimeout: time.Second})
	url, err := r.Resolve(context.Background(), []string{unreachable, broken.URL})

	assert.Empty(t, url)
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Nil(t, r.Current())
}

func TestResolve_FailureClearsBinding(t *testing.T) {
	good := newFakeBackend(t)
	r := New(Config{ProbeTimeout: time.Second})
	_, err := r.Resolve(context.Background(), []string{good.URL})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), []string{unreachable})
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Nil(t, r.Current())
}

func TestResolve_SlowCandidateAbandoned(t *testing.T) {
	slow := newFakeBackend(t)
	slow.healthDelay = 5 * time.Second
	fast := newFakeBackend(t)

	r := New(Config{ProbeTimeout: 100 * time.Millisecond})
	start := time.Now()
	url, err := r.Resolve(context.Background(), []string{slow.URL, fast.URL})
	require.NoError(t, err)

	assert.Equal(t, fast.URL, url)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCall_LazyResolveOnce(t *testing.T) {
	fb := newFakeBackend(t)
	r := New(Config{Candidates: []string{unreachable, fb.URL}, ProbeTimeout: time.Second})
	assert.Nil(t, r.Current())

	for i := 0; i < 3; i++ {
		pred, err := r.Predict(context.Background(), "مرحبا", "user-1")
		require.NoError(t, err)
		assert.Equal(t, models.LabelNotDepressed, pred.Label)
	}

	assert.Equal(t, int32(1), fb.probes.Load())
	require.NotNil(t, r.Current())
	assert.Equal(t, fb.URL, r.Current().URL)
}

func TestCall_ConcurrentCallsShareResolution(t *testing.T) {
	fb := newFakeBackend(t)
	fb.healthDelay = 100 * time.Millisecond
	r := New(Config{Candidates: []string{fb.URL}, ProbeTimeout: time.Second})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Predict(context.Background(), "text", "user")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), fb.probes.Load())
}

func TestCall_ShortDeadlineDoesNotFailSharedResolution(t *testing.T) {
	fb := newFakeBackend(t)
	fb.healthDelay = 300 * time.Millisecond
	r := New(Config{Candidates: []string{fb.URL}, ProbeTimeout: 2 * time.Second})

	var wg sync.WaitGroup
	var errShort, errUnbounded error
	wg.Add(2)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, errShort = r.Predict(ctx, "text", "user-a")
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		_, errUnbounded = r.Predict(context.Background(), "text", "user-b")
	}()
	wg.Wait()

	assert.ErrorIs(t, errShort, ErrNotConnected)
	assert.ErrorIs(t, errShort, context.DeadlineExceeded)
	assert.NoError(t, errUnbounded)
	require.NotNil(t, r.Current())
	assert.Equal(t, fb.URL, r.Current().URL)
	assert.Equal(t, int32(1), fb.probes.Load())
}

func TestCall_ShortDeadlineAloneStillBinds(t *testing.T) {
	fb := newFakeBackend(t)
	fb.healthDelay = 200 * time.Millisecond
	r := New(Config{Candidates: []string{fb.URL}, ProbeTimeout: 2 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Predict(ctx, "text", "user")
	assert.ErrorIs(t, err, ErrNotConnected)

	require.Eventually(t, func() bool { return r.Current() != nil }, 2*time.Second, 10*time.Millisecond,
		"resolution continues after the caller gives up")
}

func TestHealthCheck_TimeoutWording(t *testing.T) {
	slow := newFakeBackend(t)
	slow.healthDelay = time.Second

	r := New(Config{ProbeTimeout: 2 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Rebind(ctx, slow.URL)
	require.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "caller deadline")
	assert.NotContains(t, err.Error(), "after 2s")

	r = New(Config{ProbeTimeout: 50 * time.Millisecond})
	err = r.Rebind(context.Background(), slow.URL)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "health probe after 50ms")

	canceled, stop := context.WithCancel(context.Background())
	stop()
	err = r.Rebind(canceled, slow.URL)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestCall_NoCandidates(t *testing.T) {
	r := New(Config{})

	_, err := r.Predict(context.Background(), "text", "user")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, err, ErrNoBackendAvailable)
	assert.Nil(t, r.Current())
}

func TestCall_FailedLazyResolveRetriesNextCall(t *testing.T) {
	fb := newFakeBackend(t)
	fb.healthStatus.Store(http.StatusServiceUnavailable)
	r := New(Config{Candidates: []string{fb.URL}, ProbeTimeout: time.Second})

	_, err := r.Predict(context.Background(), "text", "user")
	require.ErrorIs(t, err, ErrNotConnected)

	fb.healthStatus.Store(http.StatusOK)
	_, err = r.Predict(context.Background(), "text", "user")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fb.probes.Load())
}

func TestCall_RemoteError(t *testing.T) {
	fb := newFakeBackend(t)
	fb.predict = func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "No text provided"})
	}
	r := New(Config{Candidates: []string{fb.URL}})

	_, err := r.Predict(context.Background(), "", "user")
	require.Error(t, err)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusBadRequest, remote.StatusCode)
	assert.Equal(t, "No text provided", remote.Message)
	assert.Equal(t, "predict", remote.Operation)
}

func TestCall_Timeout(t *testing.T) {
	fb := newFakeBackend(t)
	fb.predict = func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}
	r := New(Config{Candidates: []string{fb.URL}, RequestTimeout: 100 * time.Millisecond})

	_, err := r.Predict(context.Background(), "text", "user")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotNil(t, r.Current(), "a timed out call keeps the binding")
}

func TestCall_SendsDefaultHeaders(t *testing.T) {
	fb := newFakeBackend(t)
	var got http.Header
	var body models.PredictRequest
	fb.predict = func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(models.Prediction{Label: models.LabelDepressed})
	}
	r := New(Config{Candidates: []string{fb.URL}, Headers: map[string]string{"X-Client": "companion"}})

	pred, err := r.Predict(context.Background(), "حزين", "user-9")
	require.NoError(t, err)

	assert.True(t, pred.IsDepressed())
	assert.Equal(t, "ar", got.Get("Accept-Language"))
	assert.Equal(t, "true", got.Get("ngrok-skip-browser-warning"))
	assert.Equal(t, "companion", got.Get("X-Client"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, models.PredictRequest{Text: "حزين", UserID: "user-9"}, body)
}

func TestLogConversation(t *testing.T) {
	fb := newFakeBackend(t)
	r := New(Config{Candidates: []string{fb.URL}})

	err := r.LogConversation(context.Background(), models.ConversationEntry{
		UserID:     "user-1",
		Message:    "hello",
		Prediction: models.LabelNotDepressed,
	})
	assert.NoError(t, err)
}

func TestHealth(t *testing.T) {
	fb := newFakeBackend(t)
	r := New(Config{Candidates: []string{fb.URL}})

	status, err := r.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "lexicon", status.Model)
}

func TestRebind(t *testing.T) {
	first := newFakeBackend(t)
	second := newFakeBackend(t)
	broken := newFakeBackend(t)
	broken.healthStatus.Store(http.StatusInternalServerError)

	r := New(Config{Candidates: []string{first.URL}})
	_, err := r.Resolve(context.Background(), r.Candidates())
	require.NoError(t, err)

	err = r.Rebind(context.Background(), broken.URL)
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
	assert.Equal(t, first.URL, r.Current().URL, "failed rebind keeps the previous binding")

	err = r.Rebind(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidEndpoint)

	require.NoError(t, r.Rebind(context.Background(), second.URL+"/"))
	assert.Equal(t, second.URL, r.Current().URL)
}

func TestReset_ResolvesAgain(t *testing.T) {
	fb := newFakeBackend(t)
	r := New(Config{Candidates: []string{fb.URL}})

	_, err := r.Predict(context.Background(), "text", "user")
	require.NoError(t, err)
	r.Reset()
	assert.Nil(t, r.Current())

	_, err = r.Predict(context.Background(), "text", "user")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fb.probes.Load())
}

func TestSetCandidates(t *testing.T) {
	r := New(Config{Candidates: []string{"http://a/", " ", "http://b"}})
	assert.Equal(t, []string{"http://a", "http://b"}, r.Candidates())

	r.SetCandidates(nil)
	assert.Empty(t, r.Candidates())

	r.SetCandidates([]string{"http://c"})
	cands := r.Candidates()
	cands[0] = "http://mutated"
	assert.Equal(t, []string{"http://c"}, r.Candidates(), "Candidates returns a copy")
}

func TestNew_Defaults(t *testing.T) {
	r := New(Config{})
	assert.Equal(t, DefaultProbeTimeout, r.probeTimeout)
	assert.Equal(t, DefaultRequestTimeout, r.requestTimeout)
	assert.Equal(t, DefaultLogTimeout, r.logTimeout)
	assert.NotNil(t, r.client)
}

func TestRemoteError_Error(t *testing.T) {
	assert.Equal(t, "predict: backend returned status 500", (&RemoteError{Operation: "predict", StatusCode: 500}).Error())
	assert.Equal(t, "predict: backend returned status 400: bad", (&RemoteError{Operation: "predict", StatusCode: 400, Message: "bad"}).Error())
}
