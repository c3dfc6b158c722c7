package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/hearme/internal/catalog"
	"github.com/thebtf/hearme/internal/db"
	hearmedb "github.com/thebtf/hearme/internal/db/gorm"
	"github.com/thebtf/hearme/internal/symptoms"
	"github.com/thebtf/hearme/pkg/models"
)

// fakeGenerator returns a canned reply and records its inputs.
type fakeGenerator struct {
	err        error
	reply      string
	prediction string
	calls      int
	mu         sync.Mutex
}

func (f *fakeGenerator) Generate(_ context.Context, _, _, prediction string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prediction = prediction
	return f.reply, f.err
}

// failingPredictor always errors.
type failingPredictor struct{ err error }

func (f failingPredictor) Predict(context.Context, string) (*models.Prediction, error) {
	return nil, f.err
}

func (f failingPredictor) ModelName() string { return "failing" }

// fakeConversations is an in-memory conversation log.
type fakeConversations struct {
	pingErr   error
	appendErr error
	entries   []models.ConversationEntry
	mu        sync.Mutex
}

func (f *fakeConversations) Append(_ context.Context, e *models.ConversationEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.entries = append(f.entries, *e)
	return int64(len(f.entries)), nil
}

func (f *fakeConversations) CountByPrediction(context.Context) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[string]int{}
	for _, e := range f.entries {
		counts[e.Prediction]++
	}
	return counts, nil
}

func (f *fakeConversations) Ping(context.Context) error { return f.pingErr }

func (f *fakeConversations) all() []models.ConversationEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ConversationEntry(nil), f.entries...)
}

// fakeMoods is an in-memory mood store validating names against the catalog.
type fakeMoods struct {
	entries []*models.MoodEntry
	seq     int
	mu      sync.Mutex
}

func (f *fakeMoods) RecordMood(_ context.Context, patientID, moodName string, activities []string) (*models.MoodEntry, error) {
	mood, ok := catalog.Default().MoodByName(moodName)
	if !ok {
		return nil, fmt.Errorf("%w: unknown mood %q", hearmedb.ErrInvalidValue, moodName)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	e := &models.MoodEntry{
		ID:        fmt.Sprintf("entry-%d", f.seq),
		PatientID: patientID,
		MoodName:  mood.Name,
		Scale:     mood.Scale,
		CreatedAt: time.Unix(int64(f.seq), 0),
	}
	for i, a := range activities {
		e.Activities = append(e.Activities, models.ActivityTag{ID: fmt.Sprintf("%s-%d", e.ID, i), MoodEntryID: e.ID, ActivityName: a})
	}
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeMoods) MoodHistory(_ context.Context, patientID string, limit int) ([]*models.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.MoodEntry
	for _, e := range f.entries {
		if e.PatientID == patientID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMoods) LastMoodEntry(ctx context.Context, patientID string) (*models.MoodEntry, error) {
	h, _ := f.MoodHistory(ctx, patientID, 1)
	if len(h) == 0 {
		return nil, nil
	}
	return h[0], nil
}

func (f *fakeMoods) ListRecent(_ context.Context, limit int) ([]*models.MoodEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*models.MoodEntry(nil), f.entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMoods) DeleteMoodEntry(_ context.Context, patientID, entryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == entryID && e.PatientID == patientID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return hearmedb.ErrNotFound
}

// fakeFeedback is an in-memory feedback store.
type fakeFeedback struct {
	items []*models.Feedback
	mu    sync.Mutex
}

func (f *fakeFeedback) SubmitFeedback(_ context.Context, patientID string, rating int, message string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", hearmedb.ErrInvalidValue)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	fb := &models.Feedback{
		ID:        fmt.Sprintf("fb-%d", len(f.items)+1),
		PatientID: patientID,
		Username:  models.UnknownUsername,
		Message:   message,
		Rating:    rating,
	}
	f.items = append(f.items, fb)
	return fb, nil
}

func (f *fakeFeedback) ListFeedback(_ context.Context, limit int) ([]*models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]*models.Feedback(nil), f.items...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeFeedback) DeleteFeedback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, fb := range f.items {
		if fb.ID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return hearmedb.ErrNotFound
}

// fakePatients is an in-memory patient store.
type fakePatients struct {
	byID map[string]*models.Patient
	mu   sync.Mutex
}

func (f *fakePatients) UpsertPatient(_ context.Context, id, username, phone string) (*models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.byID == nil {
		f.byID = map[string]*models.Patient{}
	}
	p := &models.Patient{ID: id, Username: username, Phone: phone}
	f.byID[id] = p
	return p, nil
}

func (f *fakePatients) GetPatient(_ context.Context, id string) (*models.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id], nil
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

// lazyDatabase reads the env fields on every call so tests can set them
// after the service is built. A set dbHealth switches it to a reporter.
type lazyDatabase struct{ env *testEnv }

func (d lazyDatabase) Ping(context.Context) error { return d.env.dbPingErr }

func (d lazyDatabase) HealthCheck(context.Context) *db.HealthInfo {
	if d.env.dbHealth != nil {
		return d.env.dbHealth
	}
	status, msg := models.StatusHealthy, ""
	if d.env.dbPingErr != nil {
		status, msg = models.StatusUnhealthy, d.env.dbPingErr.Error()
	}
	return &db.HealthInfo{Status: status, Error: msg}
}

// testEnv bundles a ready service with its fakes.
type testEnv struct {
	svc       *Service
	gen       *fakeGenerator
	conv      *fakeConversations
	moods     *fakeMoods
	feedback  *fakeFeedback
	patients  *fakePatients
	dbPingErr error
	dbHealth  *db.HealthInfo
}

// newTestEnv builds a service over fakes. Mood, feedback and patient stores
// are attached unless withStores is false. A nil limits never rejects.
func newTestEnv(t *testing.T, withStores bool, limits *Limits) *testEnv {
	t.Helper()
	if limits == nil {
		limits = noLimits()
	}
	env := &testEnv{
		gen:      &fakeGenerator{reply: "كيف تشعر اليوم؟"},
		conv:     &fakeConversations{},
		moods:    &fakeMoods{},
		feedback: &fakeFeedback{},
		patients: &fakePatients{},
	}
	deps := Dependencies{
		Predictor:     symptoms.NewPredictor(nil, nil),
		Generator:     env.gen,
		Conversations: env.conv,
		Limits:        limits,
	}
	if withStores {
		deps.Moods = env.moods
		deps.Feedback = env.feedback
		deps.Patients = env.patients
		deps.Database = lazyDatabase{env: env}
	}
	svc, err := New("test", nil, deps)
	require.NoError(t, err)
	env.svc = svc
	return env
}

// do sends a request through the router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.svc.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

var errBoom = errors.New("boom")

// noLimits never rejects.
func noLimits() *Limits {
	return &Limits{Predict: NewLimitSet(), Global: NewLimitSet()}
}
