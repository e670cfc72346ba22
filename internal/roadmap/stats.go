package roadmap

import "math"

// Statistics are derived from the stored plan on every read; nothing here is
// persisted or cached.
type Statistics struct {
	TotalTasks           int     `json:"total_tasks"`
	CompletedTasks       int     `json:"completed_tasks"`
	CompletionPercentage float64 `json:"completion_percentage"`
	CurrentStreak        int     `json:"current_streak"`
}

func computeStatistics(plan Roadmap) Statistics {
	stats := Statistics{}
	for _, day := range plan.DailyTasks {
		for _, task := range day.Tasks {
			stats.TotalTasks++
			if task.Completed {
				stats.CompletedTasks++
			}
		}
	}
	if stats.TotalTasks > 0 {
		ratio := float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100
		stats.CompletionPercentage = math.Round(ratio*10) / 10
	}
	stats.CurrentStreak = computeStreak(plan.DailyTasks)
	return stats
}

// computeStreak counts consecutive fully-completed days walking backwards
// from the most recent day with any completed task. Trailing untouched days
// (the future part of the plan) and days without tasks are skipped; a day
// that is only partially completed ends the streak.
func computeStreak(days []Day) int {
	streak := 0
	counting := false
	for dayIndex := len(days) - 1; dayIndex >= 0; dayIndex-- {
		day := days[dayIndex]
		if len(day.Tasks) == 0 {
			continue
		}
		completed := 0
		for _, task := range day.Tasks {
			if task.Completed {
				completed++
			}
		}
		if !counting {
			if completed == 0 {
				continue
			}
			counting = true
		}
		if completed != len(day.Tasks) {
			break
		}
		streak++
	}
	return streak
}
