package interview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel records calls and returns a canned reply.
type fakeModel struct {
	err      error
	reply    string
	messages [][]llms.MessageContent
	opts     []llms.CallOptions
	mu       sync.Mutex
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	f.mu.Lock()
	f.messages = append(f.messages, messages)
	f.opts = append(f.opts, opts)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func humanText(t *testing.T, msgs []llms.MessageContent) string {
	t.Helper()
	require.Len(t, msgs, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, msgs[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[1].Role)
	part, ok := msgs[1].Parts[0].(llms.TextContent)
	require.True(t, ok)
	return part.Text
}

func TestGenerate_CleansReplyAndPassesOptions(t *testing.T) {
	model := &fakeModel{reply: "Hello! كيف حالك اليوم? (123)"}
	g := New(model)

	reply, err := g.Generate(context.Background(), "u1", "أشعر بالتعب", "Depressed")
	require.NoError(t, err)

	assert.Equal(t, "كيف حالك اليوم؟", reply)
	require.Len(t, model.opts, 1)
	assert.Equal(t, MaxTokens, model.opts[0].MaxTokens)
	assert.InDelta(t, Temperature, model.opts[0].Temperature, 0.0001)
	assert.InDelta(t, FrequencyPenalty, model.opts[0].FrequencyPenalty, 0.0001)

	prompt := humanText(t, model.messages[0])
	assert.Contains(t, prompt, Stages[0].Name)
	assert.Contains(t, prompt, "أشعر بالتعب")
	assert.Contains(t, prompt, "Depressed")
}

func TestGenerate_AdvancesStages(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	ctx := context.Background()

	// Stage 0 allows one question, stage 1 three.
	_, err := g.Generate(ctx, "u1", "مرحبا", "Not Depressed")
	require.NoError(t, err)
	st, ok := g.State("u1")
	require.True(t, ok)
	assert.Equal(t, 1, st.Stage)
	assert.Equal(t, 0, st.Step)

	for i := 0; i < 3; i++ {
		_, err = g.Generate(ctx, "u1", "جواب", "Not Depressed")
		require.NoError(t, err)
	}
	st, _ = g.State("u1")
	assert.Equal(t, 2, st.Stage)
	assert.Equal(t, []string{"جواب", "جواب"}, st.Answers, "only the answers shown to the model are kept")
}

func TestGenerate_LastStageIsTerminal(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	ctx := context.Background()

	total := 0
	for _, s := range Stages {
		total += s.MaxQuestions
	}
	for i := 0; i < total+3; i++ {
		_, err := g.Generate(ctx, "u1", "جواب", "Not Depressed")
		require.NoError(t, err)
	}

	st, _ := g.State("u1")
	assert.Equal(t, len(Stages)-1, st.Stage)
}

func TestGenerate_PromptShowsLastTwoAnswers(t *testing.T) {
	model := &fakeModel{reply: "حسنا"}
	g := New(model)
	ctx := context.Background()

	for _, msg := range []string{"الأول", "الثاني", "الثالث", "الرابع"} {
		_, err := g.Generate(ctx, "u1", msg, "Not Depressed")
		require.NoError(t, err)
	}

	last := humanText(t, model.messages[3])
	assert.Contains(t, last, "الثاني | الثالث")
	assert.NotContains(t, last, "الأول")
}

func TestGenerate_KeepsOnlyRecentAnswers(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	ctx := context.Background()

	for _, msg := range []string{"الأول", "الثاني", "الثالث", "الرابع", "الخامس"} {
		_, err := g.Generate(ctx, "u1", msg, "Depressed")
		require.NoError(t, err)
	}

	st, _ := g.State("u1")
	assert.Equal(t, []string{"الرابع", "الخامس"}, st.Answers)
	assert.Len(t, g.states["u1"].Answers, historyInPrompt)
}

func TestGenerate_EvictsIdleUsers(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := g.Generate(ctx, id, "مرحبا", "Depressed")
		require.NoError(t, err)
	}
	require.Equal(t, 3, g.Len())

	// u2 keeps talking; the others go quiet.
	now = now.Add(IdleTTL - time.Hour)
	_, err := g.Generate(ctx, "u2", "ما زلت هنا", "Depressed")
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len(), "nobody is idle past the TTL yet")

	now = now.Add(2 * time.Hour)
	_, err = g.Generate(ctx, "u4", "مرحبا", "Depressed")
	require.NoError(t, err)

	assert.Equal(t, 2, g.Len())
	_, ok := g.State("u1")
	assert.False(t, ok)
	st, ok := g.State("u2")
	require.True(t, ok)
	assert.Equal(t, now.Add(-2*time.Hour), st.LastSeen)
	_, ok = g.State("u4")
	assert.True(t, ok)
}

func TestGenerate_SweepIsThrottled(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	g.idleTTL = time.Second
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	_, err := g.Generate(ctx, "u1", "مرحبا", "Depressed")
	require.NoError(t, err)

	// Idle past the TTL, but the last sweep was too recent.
	now = now.Add(30 * time.Second)
	_, err = g.Generate(ctx, "u2", "مرحبا", "Depressed")
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())

	now = now.Add(sweepInterval)
	_, err = g.Generate(ctx, "u3", "مرحبا", "Depressed")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
}

func TestGenerate_FailureReturnsFallbackAndKeepsState(t *testing.T) {
	boom := errors.New("upstream down")
	g := New(&fakeModel{err: boom})

	reply, err := g.Generate(context.Background(), "u1", "مرحبا", "Depressed")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, FallbackReply, reply)

	st, ok := g.State("u1")
	require.True(t, ok)
	assert.Equal(t, 0, st.Stage)
	assert.Equal(t, 0, st.Step)
	assert.Empty(t, st.Answers)
}

func TestGenerate_EmptyAfterCleaning(t *testing.T) {
	reply, err := New(&fakeModel{reply: "Sorry English only 123"}).Generate(context.Background(), "u1", "مرحبا", "Depressed")
	assert.Error(t, err)
	assert.Equal(t, FallbackReply, reply)
}

func TestGenerate_NoModel(t *testing.T) {
	reply, err := New(nil).Generate(context.Background(), "u1", "مرحبا", "Depressed")
	assert.ErrorIs(t, err, ErrNoModel)
	assert.Equal(t, FallbackReply, reply)
}

func TestGenerate_UsersAreIndependent(t *testing.T) {
	g := New(&fakeModel{reply: "حسنا"})
	ctx := context.Background()

	_, err := g.Generate(ctx, "u1", "مرحبا", "Depressed")
	require.NoError(t, err)

	_, ok := g.State("u2")
	assert.False(t, ok)

	g.Reset("u1")
	_, ok = g.State("u1")
	assert.False(t, ok)
}

func TestCleanArabic(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{in: "مرحبا, كيف حالك?", want: "مرحبا، كيف حالك؟"},
		{in: "  (نعم); لا  ", want: "نعم؛ لا"},
		{in: "abc 123", want: ""},
		{in: "سلام 😊", want: "سلام"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanArabic(tt.in), tt.in)
	}
}
