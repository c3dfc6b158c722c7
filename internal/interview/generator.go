package interview

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoModel is returned when the generator has no language model configured.
var ErrNoModel = errors.New("no language model configured")

// Generation parameters.
const (
	MaxTokens        = 200
	Temperature      = 0.7
	FrequencyPenalty = 0.2

	// historyInPrompt is how many previous answers are shown to the model.
	// Older answers are not kept.
	historyInPrompt = 2
)

// IdleTTL is how long an interview is kept after the user's last message.
const IdleTTL = 24 * time.Hour

// sweepInterval bounds how often idle interviews are looked for.
const sweepInterval = time.Minute

// State is one user's position in the interview.
// Answers holds only the most recent answers shown to the model.
type State struct {
	LastSeen   time.Time
	Prediction string
	Answers    []string
	Stage      int
	Step       int
}

// Generator produces interview replies and tracks per-user state in memory.
// Interviews idle for longer than IdleTTL are dropped. It is safe for
// concurrent use.
type Generator struct {
	lastSweep time.Time
	model     llms.Model
	states    map[string]*State
	now       func() time.Time
	idleTTL   time.Duration
	mu        sync.Mutex
}

// New creates a generator. A nil model makes every call return the fallback.
func New(model llms.Model) *Generator {
	return &Generator{
		model:   model,
		states:  make(map[string]*State),
		now:     time.Now,
		idleTTL: IdleTTL,
	}
}

// Len reports how many interviews are tracked.
func (g *Generator) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.states)
}

// NewOpenAIModel builds an OpenAI-compatible chat model.
func NewOpenAIModel(baseURL, token, model string) (llms.Model, error) {
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create language model client: %w", err)
	}
	return m, nil
}

// Generate returns a reply for the user's message. On any failure it returns
// FallbackReply together with the error, and the user's state is left as is.
// On success the answer is recorded and the stage advances once its question
// cap is reached.
func (g *Generator) Generate(ctx context.Context, userID, message, prediction string) (string, error) {
	if g.model == nil {
		return FallbackReply, ErrNoModel
	}
	if userID == "" {
		userID = "anonymous"
	}

	prompt := g.prompt(userID, message, prediction)

	resp, err := g.model.GenerateContent(ctx,
		[]llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
			llms.TextParts(llms.ChatMessageTypeHuman, prompt),
		},
		llms.WithMaxTokens(MaxTokens),
		llms.WithTemperature(Temperature),
		llms.WithFrequencyPenalty(FrequencyPenalty),
	)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Interview reply generation failed")
		return FallbackReply, fmt.Errorf("generate reply: %w", err)
	}
	if len(resp.Choices) == 0 {
		return FallbackReply, errors.New("generate reply: no choices returned")
	}

	reply := CleanArabic(resp.Choices[0].Content)
	if reply == "" {
		return FallbackReply, errors.New("generate reply: empty after cleaning")
	}

	g.advance(userID, message)
	return reply, nil
}

// State returns a copy of the user's interview state.
func (g *Generator) State(userID string) (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.states[userID]
	if !ok {
		return State{}, false
	}
	out := *st
	out.Answers = append([]string(nil), st.Answers...)
	return out, true
}

// Reset forgets the user's interview.
func (g *Generator) Reset(userID string) {
	g.mu.Lock()
	delete(g.states, userID)
	g.mu.Unlock()
}

// prompt builds the interview prompt, creating the user's state on first contact.
func (g *Generator) prompt(userID, message, prediction string) string {
	g.mu.Lock()
	now := g.now()
	g.sweepLocked(now)
	st, ok := g.states[userID]
	if !ok {
		st = &State{Prediction: prediction}
		g.states[userID] = st
	}
	st.LastSeen = now
	stage := Stages[st.Stage]
	step := st.Step
	recent := st.Answers
	if len(recent) > historyInPrompt {
		recent = recent[len(recent)-historyInPrompt:]
	}
	recent = append([]string(nil), recent...)
	g.mu.Unlock()

	var b strings.Builder
	b.WriteString("أنت أخصائي نفسي عربي تقوم بمقابلة تشخيصية. اتبع هذه القواعد:\n")
	for _, r := range Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\nالسياق الحالي:\n[بروتوكول مقابلة نفسية عربية]\n")
	fmt.Fprintf(&b, "المرحلة الحالية: %s (%s)\n", stage.Name, stage.Guidance)
	fmt.Fprintf(&b, "تقدم المرحلة: %d/%d\n", step, stage.MaxQuestions)
	fmt.Fprintf(&b, "الإجابات السابقة: %s\n", strings.Join(recent, " | "))
	fmt.Fprintf(&b, "مستوى الاكتئاب: %s\n", prediction)
	fmt.Fprintf(&b, "\nالرسالة الأخيرة من المستخدم:\n%s\n", message)
	b.WriteString("\nقم بالرد باللغة العربية العامية المناسبة مع:\n")
	b.WriteString("1. الحفاظ على هيكل المقابلة التشخيصية\n")
	b.WriteString("2. إظهار التعاطف والتفهم الثقافي العربي\n")
	fmt.Fprintf(&b, "3. استخدام أسئلة من القائمة عند المناسبة: %s\n", strings.Join(ExampleQuestions, " "))
	b.WriteString("4. التقدم الطبيعي بين مراحل المقابلة\n")
	fmt.Fprintf(&b, "5. مراعاة التنبؤ بالاكتئاب: %s\n", prediction)
	return b.String()
}

func (g *Generator) advance(userID, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.states[userID]
	if !ok {
		st = &State{}
		g.states[userID] = st
	}
	st.LastSeen = g.now()
	st.Answers = append(st.Answers, message)
	if len(st.Answers) > historyInPrompt {
		st.Answers = append([]string(nil), st.Answers[len(st.Answers)-historyInPrompt:]...)
	}
	st.Step++
	if st.Step >= Stages[st.Stage].MaxQuestions && st.Stage < len(Stages)-1 {
		st.Stage++
		st.Step = 0
	}
}

// sweepLocked drops interviews idle for longer than the TTL. g.mu must be held.
func (g *Generator) sweepLocked(now time.Time) {
	if g.idleTTL <= 0 || now.Sub(g.lastSweep) < sweepInterval {
		return
	}
	g.lastSweep = now
	for id, st := range g.states {
		if now.Sub(st.LastSeen) > g.idleTTL {
			delete(g.states, id)
		}
	}
}

var nonArabic = regexp.MustCompile(`[^\x{0600}-\x{06FF}\x{0750}-\x{077F}\s,;?()،؛؟]`)

var arabicPunctuation = strings.NewReplacer(",", "،", ";", "؛", "?", "؟", "(", "", ")", "")

// CleanArabic keeps Arabic script, whitespace and punctuation, and converts
// Latin punctuation to its Arabic form.
func CleanArabic(text string) string {
	text = nonArabic.ReplaceAllString(text, "")
	return strings.TrimSpace(arabicPunctuation.Replace(text))
}
