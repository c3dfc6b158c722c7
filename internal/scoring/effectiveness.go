// Package scoring provides mood/activity effectiveness analysis over mood history.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/thebtf/hearme/pkg/models"
)

// HistorySource supplies mood history newest first, each entry with its activity tags.
type HistorySource interface {
	MoodHistory(ctx context.Context, patientID string, limit int) ([]*models.MoodEntry, error)
}

// AnalyzerConfig holds the analysis window and ranking filters.
type AnalyzerConfig struct {
	// Window is the number of most recent entries considered.
	Window int `json:"window"`

	// MinSamples is the minimum number of occurrences before an activity is ranked.
	MinSamples int `json:"min_samples"`

	// MinScore is the score an activity must exceed to be ranked.
	MinScore float64 `json:"min_score"`
}

// DefaultAnalyzerConfig returns the default analysis configuration.
func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		Window:     30,
		MinSamples: 3,
		MinScore:   30,
	}
}

// Analyzer ranks activities by how often the next recorded mood improved.
// It holds no mutable state and is safe for concurrent use.
type Analyzer struct {
	config *AnalyzerConfig
	source HistorySource
}

// NewAnalyzer creates a new analyzer.
// If config is nil, uses the default configuration. source may be nil when only
// in-memory analysis is needed.
func NewAnalyzer(config *AnalyzerConfig, source HistorySource) *Analyzer {
	if config == nil {
		config = DefaultAnalyzerConfig()
	}
	return &Analyzer{config: config, source: source}
}

// GetConfig returns the analyzer configuration.
func (a *Analyzer) GetConfig() *AnalyzerConfig {
	return a.config
}

// tally is the running count for one activity.
type tally struct {
	name     string
	positive int
	total    int
}

// Effectiveness computes the ranked effectiveness records for a history.
//
// entries must be newest first. For each adjacent pair (entries[i], entries[i+1]),
// entries[i+1] is the earlier entry and its activities are credited with the outcome
//
//	delta = entries[i].Scale - entries[i+1].Scale
//
// Each credited activity gets one occurrence, and one positive impact when delta > 0.
// The oldest entry in the window is never an outcome. Pairs with a scale outside the
// vocabulary are skipped. The result is sorted by score descending, ties keeping the
// order in which activities were first credited.
func (a *Analyzer) Effectiveness(entries []*models.MoodEntry) []models.EffectivenessRecord {
	entries = a.window(entries)
	if len(entries) < 2 {
		return []models.EffectivenessRecord{}
	}

	index := make(map[string]int)
	var tallies []*tally

	for i := 0; i < len(entries)-1; i++ {
		outcome, source := entries[i], entries[i+1]
		if outcome == nil || source == nil || !outcome.ValidScale() || !source.ValidScale() {
			continue
		}
		improved := outcome.Scale-source.Scale > 0

		seen := make(map[string]bool, len(source.Activities))
		for _, tag := range source.Activities {
			name := tag.ActivityName
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true

			idx, ok := index[name]
			if !ok {
				idx = len(tallies)
				index[name] = idx
				tallies = append(tallies, &tally{name: name})
			}
			tallies[idx].total++
			if improved {
				tallies[idx].positive++
			}
		}
	}

	records := make([]models.EffectivenessRecord, 0, len(tallies))
	for _, t := range tallies {
		if t.total < a.config.MinSamples {
			continue
		}
		score := roundScore(float64(t.positive) / float64(t.total) * 100)
		if score <= a.config.MinScore {
			continue
		}
		records = append(records, models.EffectivenessRecord{
			ActivityName:        t.name,
			PositiveImpactCount: t.positive,
			TotalOccurrences:    t.total,
			EffectivenessScore:  score,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EffectivenessScore > records[j].EffectivenessScore
	})
	return records
}

// AnalyzePatient loads the patient's recent history and ranks their activities.
func (a *Analyzer) AnalyzePatient(ctx context.Context, patientID string) ([]models.EffectivenessRecord, error) {
	entries, err := a.history(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return a.Effectiveness(entries), nil
}

// PatientStats loads the patient's recent history and summarizes it.
func (a *Analyzer) PatientStats(ctx context.Context, patientID string) (*models.MoodStats, error) {
	entries, err := a.history(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return a.Stats(entries), nil
}

func (a *Analyzer) history(ctx context.Context, patientID string) ([]*models.MoodEntry, error) {
	if a.source == nil {
		return nil, fmt.Errorf("analyzer has no history source")
	}
	entries, err := a.source.MoodHistory(ctx, patientID, a.config.Window)
	if err != nil {
		return nil, fmt.Errorf("load mood history: %w", err)
	}
	return entries, nil
}

func (a *Analyzer) window(entries []*models.MoodEntry) []*models.MoodEntry {
	if a.config.Window > 0 && len(entries) > a.config.Window {
		return entries[:a.config.Window]
	}
	return entries
}

// roundScore rounds a percentage to two decimals.
func roundScore(v float64) float64 {
	return math.Round(v*100) / 100
}
