package types

import "time"

// Staff is a staff member as persisted, the raw input to feature extraction.
type Staff struct {
	ID                   string             `json:"id"`
	Name                 string             `json:"name"`
	Role                 string             `json:"role"`
	Active               bool               `json:"active"`
	TechnicalSkills      []float64          `json:"technical_skills"`
	SoftSkills           []float64          `json:"soft_skills"`
	DomainKnowledge      []float64          `json:"domain_knowledge"`
	ProblemSolvingSkills []float64          `json:"problem_solving_skills"`
	Personality          map[string]float64 `json:"personality,omitempty"` // five-factor, [0,1]
	StressTolerance      float64            `json:"stress_tolerance"`
	Multitasking         float64            `json:"multitasking"`
	CreatedAt            time.Time          `json:"created_at"`
}

// SOP is a standard operating procedure document as persisted.
type SOP struct {
	ID                string    `json:"id"`
	TitleEN           string    `json:"title_en"`
	TitleZH           string    `json:"title_zh,omitempty"`
	Category          string    `json:"category"`
	DifficultyLevel   string    `json:"difficulty_level"`
	EstimatedDuration int       `json:"estimated_duration_minutes"`
	Tags              []string  `json:"tags"`
	RequirementVector []float64 `json:"requirement_vector"`
	CreatedAt         time.Time `json:"created_at"`
}

// CompletionRecord is one staff attempt at a procedure. The analytics side
// treats these as an append-only, time-ordered log; nothing here mutates them.
type CompletionRecord struct {
	ID               string    `json:"id"`
	StaffID          string    `json:"staff_id"`
	SOPID            string    `json:"sop_id"`
	PercentComplete  float64   `json:"percent_complete"` // [0,100]
	TimeSpentMinutes float64   `json:"time_spent_minutes"`
	CompletedAt      time.Time `json:"completed_at"`
}
