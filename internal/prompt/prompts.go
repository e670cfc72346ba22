// Package prompt builds the textual prompts sent to the completion model.
// Everything here is pure string assembly; the schemas promised to the model
// are enforced nowhere else, so wording changes are contract changes.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

// PlanWindowDays is the length of the generated daily calendar.
const PlanWindowDays = 180

// Exchange is one answered question from the intake flow.
type Exchange struct {
	Question string
	Answer   string
}

// FormatHistory renders the Q&A history one exchange per line, in order.
// The output is for model consumption only and performs no escaping.
func FormatHistory(history []Exchange) string {
	lines := make([]string, 0, len(history))
	for _, exchange := range history {
		lines = append(lines, fmt.Sprintf("Q: %s | A: %s", exchange.Question, exchange.Answer))
	}
	return strings.Join(lines, "\n")
}

const nextQuestionTemplate = `Context: A user is building a career roadmap.
History: %s
User's last choice: %s

Task: Generate the NEXT logical question and 4 multiple-choice options.
If we have enough info (at question 10), signal 'FINISH'.

Output ONLY valid JSON:
{
  "question": "The next logical question",
  "options": ["Option A", "Option B", "Option C", "Option D"],
  "status": "CONTINUE or FINISH"
}`

// NextQuestion builds the prompt asking the model for the next intake
// question. The ten-question cutoff is advisory to the model; nothing here
// counts questions.
func NextQuestion(history []Exchange, lastAnswer string) string {
	return fmt.Sprintf(nextQuestionTemplate, FormatHistory(history), lastAnswer)
}

const roadmapTemplate = `Based on this user profile: %s

Generate a comprehensive 6-month career roadmap as a DAILY CALENDAR with specific tasks for each date.

Start Date: %s
End Date: %s

IMPORTANT: Return ONLY valid JSON matching this exact structure:

{
  "start_date": "%s",
  "daily_tasks": [
    {
      "date": "%s",
      "day_name": "%s",
      "tasks": [
        {
          "title": "Set up development environment",
          "description": "Install necessary tools and configure workspace",
          "duration": "2 hours",
          "priority": "high"
        }
      ]
    }
  ],
  "skills_to_learn": ["Skill 1", "Skill 2", "Skill 3", "Skill 4", "Skill 5", "Skill 6"],
  "recommended_projects": [
    {
      "title": "Project 1",
      "description": "Build this project by Week 4",
      "deadline": "%s"
    }
  ]
}

Requirements:
- Generate tasks for EVERY DAY for 6 months (approximately 180 days)
- Each day should have 1-3 specific, actionable tasks
- Tasks should progress logically from basics to advanced
- Include rest/review days (weekends can have lighter tasks or be review days)
- Each task must have: title, description, duration estimate, and priority (high/medium/low)
- List 6-10 skills_to_learn and 3-5 recommended_projects
- Make tasks specific to the user's career path and experience level
- Distribute learning across the timeline progressively
- Include practical exercises, not just theory
- Weekend tasks should be lighter (practice, review, or optional challenges)

Task Distribution Guidelines:
- Week 1-2: Setup and fundamentals
- Week 3-4: Core concepts and first small projects
- Month 2: Intermediate skills with hands-on practice
- Month 3-4: Real projects and specialization
- Month 5: Advanced topics and portfolio building
- Month 6: Interview prep, networking, job applications

Output ONLY the JSON, no other text.`

// Roadmap builds the final generation prompt. The plan window starts at now
// and spans PlanWindowDays; the clock is supplied by the caller so tests can
// pin the dates.
func Roadmap(history []Exchange, now time.Time) string {
	startDate := now.Format("2006-01-02")
	endDate := now.AddDate(0, 0, PlanWindowDays).Format("2006-01-02")
	firstProjectDeadline := now.AddDate(0, 0, 28).Format("2006-01-02")
	return fmt.Sprintf(roadmapTemplate,
		FormatHistory(history),
		startDate,
		endDate,
		startDate,
		startDate,
		now.Weekday().String(),
		firstProjectDeadline,
	)
}
