// Package care turns garden state into watering recommendations.
//
// Everything here is a pure function of its inputs: no I/O, no clock reads.
// Callers pass "now" explicitly, which keeps the rules deterministic in tests.
package care

import (
	"slices"
	"strings"
	"time"

	"github.com/sakif/garden-companion/internal/model"
)

const (
	day = 24 * time.Hour

	// newPlantWindowDays is how long a never-watered plant counts as "new".
	newPlantWindowDays = 3
	// nudgeAfterDays is the minimum dryness before a never-watered plant that
	// is past the new-plant window gets a reminder.
	nudgeAfterDays = 5

	overdueBelow = 0.3
	dueBelow     = 0.5
)

// WateringInterval classifies a provider watering category into the number of
// days a plant can go between waterings. Matching is case-insensitive and by
// substring, checked in the order frequent, average, minimum.
func WateringInterval(category string) int {
	c := strings.ToLower(category)
	switch {
	case strings.Contains(c, "frequent"):
		return 2
	case strings.Contains(c, "average"):
		return 7
	case strings.Contains(c, "minimum"):
		return 14
	default:
		return 7
	}
}

// Progress is 1.0 right after watering and falls to 0.0 once the plant has
// gone a full interval (or longer) without water.
func Progress(daysSinceWatering, interval int) float64 {
	if interval <= 0 {
		return 0
	}
	p := 1 - float64(daysSinceWatering)/float64(interval)
	return min(max(p, 0), 1)
}

// Derive computes the task list for a garden. At most one watering task is
// produced per entry; the result is ordered by ascending priority and keeps
// input order among equal priorities.
func Derive(entries []model.GardenEntry, now time.Time) []model.Task {
	tasks := make([]model.Task, 0, len(entries))
	for _, e := range entries {
		if t, ok := wateringTask(e, now); ok {
			tasks = append(tasks, t)
		}
	}

	slices.SortStableFunc(tasks, func(a, b model.Task) int {
		return a.Priority - b.Priority
	})
	return tasks
}

// Top returns at most n tasks without reordering. n <= 0 means all.
func Top(tasks []model.Task, n int) []model.Task {
	if n <= 0 || n >= len(tasks) {
		return tasks
	}
	return tasks[:n]
}

func wateringTask(e model.GardenEntry, now time.Time) (model.Task, bool) {
	up := e.UserPlant
	interval := WateringInterval(e.Plant.Watering)
	daysInGarden := wholeDays(now.Sub(up.DateAdded))
	neverWatered := up.LastWatered == nil

	task := model.Task{
		AssociationID: up.ID,
		Name:          up.DisplayName(&e.Plant),
	}

	if neverWatered && daysInGarden <= newPlantWindowDays {
		task.Kind = model.TaskWaterFirst
		task.Priority = 1
		task.Due = "Needs first watering"
		return task, true
	}

	since := up.PlantingDate
	if up.LastWatered != nil {
		since = *up.LastWatered
	} else if since.IsZero() {
		since = up.DateAdded
	}
	daysSinceWatering := wholeDays(now.Sub(since))
	progress := Progress(daysSinceWatering, interval)

	switch {
	case progress < overdueBelow:
		task.Kind = model.TaskWaterOverdue
		task.Priority = 1
		task.Due = "Overdue"
	case progress < dueBelow:
		task.Kind = model.TaskWaterDue
		task.Priority = 2
		task.Due = "Due today"
	case daysSinceWatering > nudgeAfterDays && neverWatered && daysInGarden > newPlantWindowDays:
		task.Kind = model.TaskWaterNudge
		task.Priority = 3
		task.Due = "Not watered yet"
	default:
		return model.Task{}, false
	}
	return task, true
}

// wholeDays floors a duration to full days; negative durations (clock skew,
// future dates) count as zero.
func wholeDays(d time.Duration) int {
	if d < 0 {
		return 0
	}
	return int(d / day)
}
