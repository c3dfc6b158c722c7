package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/thebtf/hearme/pkg/models"
)

func (a *app) predict(ctx context.Context, args []string) error {
	fs := a.newFlagSet("predict")
	user := fs.String("user", "companion", "user id sent with the message")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(a.out, "predict: TEXT is required")
		return errUsage
	}

	pred, err := a.resolver.Predict(ctx, text, *user)
	if err != nil {
		return err
	}
	return a.printJSON(pred)
}

func (a *app) health(ctx context.Context, deep bool) error {
	var (
		status *models.HealthStatus
		err    error
	)
	if deep {
		status, err = a.resolver.DeepHealth(ctx)
	} else {
		status, err = a.resolver.Health(ctx)
	}
	if err != nil {
		return err
	}
	if ep := a.resolver.Current(); ep != nil {
		fmt.Fprintln(a.out, "backend:", ep.URL)
	}
	if err := a.printJSON(status); err != nil {
		return err
	}
	return a.printCounters(ctx)
}

// printCounters lists the probes and calls this process made.
func (a *app) printCounters(ctx context.Context) error {
	if a.metrics == nil {
		return nil
	}
	counters, err := a.metrics.Counters(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "client counters:")
	for _, c := range counters {
		fmt.Fprintf(a.out, "  %s %d\n", c.Series, c.Value)
	}
	return nil
}

func (a *app) switchBackend(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "switch: exactly one URL is required")
		return errUsage
	}
	if err := a.resolver.Rebind(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "bound to", a.resolver.Current().URL)
	return nil
}

func (a *app) recordMood(ctx context.Context, args []string) error {
	fs := a.newFlagSet("mood")
	patient := fs.String("patient", "", "patient id")
	mood := fs.String("mood", "", "mood name, e.g. Good")
	activities := fs.String("activities", "", "comma-separated activity names")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *patient == "" || *mood == "" {
		fmt.Fprintln(a.out, "mood: -patient and -mood are required")
		return errUsage
	}

	var names []string
	for _, n := range strings.Split(*activities, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	entry, err := a.resolver.RecordMood(ctx, *patient, *mood, names)
	if err != nil {
		return err
	}
	return a.printJSON(entry)
}

func (a *app) insights(ctx context.Context, args []string) error {
	fs := a.newFlagSet("insights")
	patient := fs.String("patient", "", "patient id")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *patient == "" {
		fmt.Fprintln(a.out, "insights: -patient is required")
		return errUsage
	}

	insights, err := a.resolver.MoodInsights(ctx, *patient)
	if err != nil {
		return err
	}
	if len(insights.Effective) == 0 {
		fmt.Fprintf(a.out, "Not enough history yet (last %d entries analysed).\n", insights.Window)
	}
	for i, rec := range insights.Effective {
		fmt.Fprintf(a.out, "%d. %s: %.2f%% (%d/%d)\n",
			i+1, rec.ActivityName, rec.EffectivenessScore, rec.PositiveImpactCount, rec.TotalOccurrences)
	}
	if insights.Latest != nil && len(insights.Recommended) > 0 {
		fmt.Fprintf(a.out, "Suggested for %s: %s\n", insights.Latest.MoodName, strings.Join(insights.Recommended, ", "))
	}
	return nil
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := a.newFlagSet("stats")
	patient := fs.String("patient", "", "patient id; relay statistics when empty")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *patient == "" {
		stats, err := a.resolver.RelayStats(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(stats)
	}
	stats, err := a.resolver.MoodStats(ctx, *patient)
	if err != nil {
		return err
	}
	return a.printJSON(stats)
}

func (a *app) recommend(ctx context.Context, args []string) error {
	fs := a.newFlagSet("recommend")
	scale := fs.Int("scale", 0, "mood scale 1 (worst) to 5 (best)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !models.ValidScale(*scale) {
		fmt.Fprintln(a.out, "recommend: -scale must be between 1 and 5")
		return errUsage
	}

	names, err := a.resolver.RecommendedActivities(ctx, *scale)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return errors.New("no activities recommended")
	}
	for _, n := range names {
		fmt.Fprintln(a.out, n)
	}
	return nil
}
