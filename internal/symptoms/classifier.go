package symptoms

import (
	"context"
	"math"

	"github.com/thebtf/hearme/pkg/models"
)

// Classifier labels a message as depressed or not.
// Probabilities are keyed by label and sum to 1.
type Classifier interface {
	Classify(ctx context.Context, text string) (label string, probabilities map[string]float64, err error)
	Name() string
}

// LexiconClassifier scores a message by the symptoms it mentions.
// Core symptoms weigh double; a score of 0.5 or more is labelled depressed.
type LexiconClassifier struct {
	detector *Detector
}

// coreSymptoms carry the diagnostic weight of the two cardinal criteria.
var coreSymptoms = map[string]bool{
	DepressedMood:    true,
	LossOfInterest:   true,
	SuicidalIdeation: true,
}

// NewLexiconClassifier creates a classifier over the detector. Nil uses the default lexicon.
func NewLexiconClassifier(detector *Detector) *LexiconClassifier {
	if detector == nil {
		detector = NewDetector(nil)
	}
	return &LexiconClassifier{detector: detector}
}

// Name identifies the model in health responses.
func (c *LexiconClassifier) Name() string { return "lexicon" }

// Classify implements Classifier.
func (c *LexiconClassifier) Classify(ctx context.Context, text string) (string, map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	units := 0
	for key, present := range c.detector.Detect(text) {
		if present == 0 {
			continue
		}
		units++
		if coreSymptoms[key] {
			units++
		}
	}

	p := math.Min(0.95, 0.1+0.2*float64(units))
	p = math.Round(p*100) / 100
	label := models.LabelNotDepressed
	if p >= 0.5 {
		label = models.LabelDepressed
	}
	return label, Probabilities(p), nil
}

// Probabilities builds the label map for a depressed probability.
func Probabilities(depressed float64) map[string]float64 {
	return map[string]float64{
		models.LabelNotDepressed: math.Round((1-depressed)*100) / 100,
		models.LabelDepressed:    depressed,
	}
}
