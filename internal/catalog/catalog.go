// Package catalog provides the fixed mood vocabulary and activity catalog.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/thebtf/hearme/pkg/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Mood is one entry of the mood vocabulary.
type Mood struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
	ID    int    `yaml:"id" json:"id"`
	Scale int    `yaml:"scale" json:"scale"`
}

// Activity is a daily activity a patient can tag a mood entry with.
type Activity struct {
	Name              string `yaml:"name" json:"name"`
	Icon              string `yaml:"icon" json:"icon"`
	Color             string `yaml:"color" json:"color"`
	RecommendedScales []int  `yaml:"recommended_scales" json:"recommended_scales"`
	ID                int    `yaml:"id" json:"id"`
}

// Catalog holds the mood vocabulary ordered from best to worst and the activities.
type Catalog struct {
	DefaultMood string     `yaml:"default_mood"`
	Moods       []Mood     `yaml:"moods"`
	Activities  []Activity `yaml:"activities"`
}

var (
	defaultCatalog *Catalog
	defaultOnce    sync.Once
)

// Default returns the embedded catalog.
// It panics if the embedded document is invalid, which is a build defect.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(defaultCatalogYAML)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded catalog invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	if len(c.Moods) == 0 {
		return fmt.Errorf("catalog has no moods")
	}
	seen := make(map[int]bool, len(c.Moods))
	for _, m := range c.Moods {
		if !models.ValidScale(m.Scale) {
			return fmt.Errorf("mood %q has scale %d outside %d..%d", m.Name, m.Scale, models.MinMoodScale, models.MaxMoodScale)
		}
		if seen[m.Scale] {
			return fmt.Errorf("mood scale %d used twice", m.Scale)
		}
		seen[m.Scale] = true
	}
	if _, ok := c.MoodByName(c.DefaultMood); !ok {
		return fmt.Errorf("default mood %q not in vocabulary", c.DefaultMood)
	}
	for _, a := range c.Activities {
		for _, s := range a.RecommendedScales {
			if !models.ValidScale(s) {
				return fmt.Errorf("activity %q recommends scale %d", a.Name, s)
			}
		}
	}
	return nil
}

// MoodByName looks a mood up by name, case-insensitively.
func (c *Catalog) MoodByName(name string) (Mood, bool) {
	for _, m := range c.Moods {
		if strings.EqualFold(m.Name, strings.TrimSpace(name)) {
			return m, true
		}
	}
	return Mood{}, false
}

// MoodByScale looks a mood up by its scale value.
func (c *Catalog) MoodByScale(scale int) (Mood, bool) {
	for _, m := range c.Moods {
		if m.Scale == scale {
			return m, true
		}
	}
	return Mood{}, false
}

// ScaleOf returns the scale for a stored mood name.
// Names missing from the vocabulary fall back to the default mood.
func (c *Catalog) ScaleOf(name string) int {
	if m, ok := c.MoodByName(name); ok {
		return m.Scale
	}
	m, _ := c.MoodByName(c.DefaultMood)
	return m.Scale
}

// Activity looks an activity up by name, case-insensitively.
func (c *Catalog) Activity(name string) (Activity, bool) {
	for _, a := range c.Activities {
		if strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			return a, true
		}
	}
	return Activity{}, false
}

// Recommended returns the activities suggested for a mood scale, in catalog order.
func (c *Catalog) Recommended(scale int) []Activity {
	out := make([]Activity, 0, len(c.Activities))
	for _, a := range c.Activities {
		if slices.Contains(a.RecommendedScales, scale) {
			out = append(out, a)
		}
	}
	return out
}

// IsRecommended reports whether the named activity is suggested for the scale.
// Unknown activities are never recommended.
func (c *Catalog) IsRecommended(activity string, scale int) bool {
	a, ok := c.Activity(activity)
	if !ok {
		return false
	}
	return slices.Contains(a.RecommendedScales, scale)
}
