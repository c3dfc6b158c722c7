package symptoms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/hearme/pkg/models"
)

// ErrEmptyText is returned when there is nothing to classify.
var ErrEmptyText = errors.New("empty input text")

// SymptomOverride is the symptom count at which a message is labelled
// depressed whatever the classifier said.
const SymptomOverride = 3

// Predictor combines the classifier, symptom detection and the rule-based reply.
type Predictor struct {
	classifier Classifier
	detector   *Detector
}

// NewPredictor creates a predictor. Nil arguments use the lexicon defaults.
func NewPredictor(classifier Classifier, detector *Detector) *Predictor {
	if detector == nil {
		detector = NewDetector(nil)
	}
	if classifier == nil {
		classifier = NewLexiconClassifier(detector)
	}
	return &Predictor{classifier: classifier, detector: detector}
}

// ModelName returns the classifier's name.
func (p *Predictor) ModelName() string {
	return p.classifier.Name()
}

// Predict classifies text and attaches symptoms and the structured reply.
// A reassuring phrase forces "Not Depressed"; SymptomOverride or more symptoms
// then force "Depressed".
func (p *Predictor) Predict(ctx context.Context, text string) (*models.Prediction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	label, probs, err := p.classifier.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	if p.detector.HasPositivePhrase(text) {
		label = models.LabelNotDepressed
		probs = Probabilities(0.1)
	}

	found := p.detector.Detect(text)
	if Count(found) >= SymptomOverride {
		label = models.LabelDepressed
		probs = Probabilities(0.8)
	}

	return &models.Prediction{
		Label:         label,
		Probabilities: probs,
		Symptoms:      found,
		Reply:         &models.Reply{Structured: Reply(label, found)},
	}, nil
}
