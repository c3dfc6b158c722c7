package scoring

import "github.com/thebtf/hearme/pkg/models"

// Stats summarizes the analysis window: the average scale and, per activity, how
// many entries carried it and their average scale.
// Entries with an out-of-range scale are left out of every average.
func (a *Analyzer) Stats(entries []*models.MoodEntry) *models.MoodStats {
	entries = a.window(entries)
	stats := &models.MoodStats{
		ActivityImpact: make(map[string]models.ActivityImpact),
	}

	sum := 0
	for _, e := range entries {
		if e == nil || !e.ValidScale() {
			continue
		}
		stats.TotalEntries++
		sum += e.Scale

		for _, tag := range e.Activities {
			impact := stats.ActivityImpact[tag.ActivityName]
			impact.Count++
			impact.TotalScale += e.Scale
			stats.ActivityImpact[tag.ActivityName] = impact
		}
	}

	if stats.TotalEntries > 0 {
		stats.AverageMoodScale = float64(sum) / float64(stats.TotalEntries)
	}
	for name, impact := range stats.ActivityImpact {
		impact.AvgScale = float64(impact.TotalScale) / float64(impact.Count)
		stats.ActivityImpact[name] = impact
	}
	return stats
}
