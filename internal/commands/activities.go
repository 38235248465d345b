package commands

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/strideworks/stridesync/internal/activity"
	"github.com/strideworks/stridesync/internal/app"
	"github.com/strideworks/stridesync/internal/ulid"
	"github.com/strideworks/stridesync/internal/utils"
)

// ActivitiesCommand returns the CLI command for inspecting local activities
func ActivitiesCommand() *cli.Command {
	return &cli.Command{
		Name:    "activities",
		Aliases: []string{"act"},
		Usage:   "Inspect locally recorded activities",
		Subcommands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List recorded activities, newest first",
				Action: listActivitiesAction,
			},
			{
				Name:        "add",
				Usage:       "Record an activity manually",
				Description: "Adds an activity without sample data, for sessions recorded outside the app.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "type",
						Usage: "running, walking, cycling, hiking or other",
						Value: "running",
					},
					&cli.Float64Flag{
						Name:     "distance",
						Usage:    "Distance in miles",
						Required: true,
					},
					&cli.DurationFlag{
						Name:     "duration",
						Usage:    "Session duration (e.g. 45m30s)",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "calories",
						Usage: "Energy burned in kilocalories",
					},
					&cli.TimestampFlag{
						Name:   "start",
						Usage:  "Start time (RFC3339); defaults to duration ago",
						Layout: time.RFC3339,
					},
				},
				Action: addActivityAction,
			},
		},
	}
}

func listActivitiesAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	activities, err := application.Activities.FetchAll(c.Context)
	if err != nil {
		return fmt.Errorf("listing activities: %w", err)
	}

	if len(activities) == 0 {
		utils.PrintInfo("No activities recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(activities))
	for _, a := range activities {
		rows = append(rows, []string{
			a.ID,
			string(a.Type),
			a.LocalDate(),
			utils.FormatMiles(a.DistanceMiles),
			utils.FormatDuration(a.TotalDuration()),
			fmt.Sprintf("%.0f kcal", a.Calories),
		})
	}

	utils.PrintTable("Activities",
		[]string{"ID", "Type", "Date", "Distance", "Duration", "Energy"},
		rows)
	return nil
}

func addActivityAction(c *cli.Context) error {
	application, err := app.FromContext(c)
	if err != nil {
		return err
	}

	activityType := activity.Type(c.String("type"))
	switch activityType {
	case activity.TypeRunning, activity.TypeWalking, activity.TypeCycling,
		activity.TypeHiking, activity.TypeOther:
	default:
		return fmt.Errorf("unknown activity type %q", c.String("type"))
	}

	duration := c.Duration("duration")
	if duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	started := time.Now().Add(-duration)
	if ts := c.Timestamp("start"); ts != nil && !ts.IsZero() {
		started = *ts
	}

	_, offset := started.Zone()

	a := &activity.Activity{
		ID:             ulid.ActivityID(),
		Type:           activityType,
		StartedAt:      started,
		EndedAt:        started.Add(duration),
		TimezoneOffset: offset / 60,
		DistanceMiles:  c.Float64("distance"),
		Calories:       c.Float64("calories"),
	}

	if err := application.Activities.Create(c.Context, a); err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}

	utils.PrintSuccess(fmt.Sprintf("Recorded %s activity %s (%s, %s)",
		a.Type, a.ID, utils.FormatMiles(a.DistanceMiles), utils.FormatDuration(a.TotalDuration())))
	return nil
}
