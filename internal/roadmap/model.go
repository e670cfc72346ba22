package roadmap

import (
	"fmt"
	"time"
)

// Priority values accepted on tasks. The model is asked for exactly these
// three; the store does not reject others.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Task is a single actionable item within one day of the plan. ID and
// Completed are never taken from the caller: both are assigned at save time.
type Task struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
	Priority    string `json:"priority"`
	ID          string `json:"id,omitempty"`
	Completed   bool   `json:"completed"`
}

// Day groups the tasks scheduled for one calendar date (ISO date string).
type Day struct {
	Date    string `json:"date"`
	DayName string `json:"day_name"`
	Tasks   []Task `json:"tasks"`
}

// Project is a recommended portfolio project with an optional deadline.
type Project struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Deadline    string `json:"deadline,omitempty"`
}

// Roadmap is the 180-day plan produced by the model.
type Roadmap struct {
	StartDate           string    `json:"start_date"`
	DailyTasks          []Day     `json:"daily_tasks"`
	SkillsToLearn       []string  `json:"skills_to_learn,omitempty"`
	RecommendedProjects []Project `json:"recommended_projects,omitempty"`
}

// Document is the persisted roadmap row, one per normalized user name. The
// plan itself lives in a JSON text column; relational columns carry only
// identity and bookkeeping.
type Document struct {
	NameKey     string    `gorm:"column:name_key;primaryKey;size:190;not null"`
	RoadmapID   string    `gorm:"column:roadmap_id;size:64;not null"`
	UserID      string    `gorm:"column:user_id;size:64;not null;index"`
	UserName    string    `gorm:"column:user_name;size:190;not null"`
	RoadmapJSON string    `gorm:"column:roadmap_json;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "roadmaps"
}

// AssignTaskIDs stamps every task with its derived identifier and clears any
// completion state supplied by the caller. The id is positional within the
// day, so it stays stable across reads until the day's task list is re-saved
// with a different shape.
func AssignTaskIDs(plan *Roadmap) {
	for dayIndex := range plan.DailyTasks {
		day := &plan.DailyTasks[dayIndex]
		for taskIndex := range day.Tasks {
			day.Tasks[taskIndex].ID = fmt.Sprintf("%s_task_%d", day.Date, taskIndex)
			day.Tasks[taskIndex].Completed = false
		}
	}
}
