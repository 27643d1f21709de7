package features

// StaffProfile is a read-only scoring snapshot for one staff member,
// rebuilt from persisted records on every scoring request. Scalars within
// a group share a scale: everything here is normalized to [0,1].
type StaffProfile struct {
	StaffID string `json:"staff_id"`
	Role    string `json:"role"`

	TechnicalSkills      []float64 `json:"technical_skills"`
	SoftSkills           []float64 `json:"soft_skills"`
	DomainKnowledge      []float64 `json:"domain_knowledge"`
	ProblemSolvingSkills []float64 `json:"problem_solving_skills"`

	ExperienceLevel       float64 `json:"experience_level"`
	HistoricalPerformance float64 `json:"historical_performance"`
	CompletionRate        float64 `json:"completion_rate"`

	LearningVelocity float64 `json:"learning_velocity"`
	RetentionRate    float64 `json:"retention_rate"`
	ProgressionRate  float64 `json:"progression_rate"`

	CompletionSpeedPercentile float64 `json:"completion_speed_percentile"`
	QualityConsistency        float64 `json:"quality_consistency"`
	ErrorRecovery             float64 `json:"error_recovery"`

	Personality map[string]float64 `json:"personality,omitempty"`

	StressTolerance float64 `json:"stress_tolerance"`
	Multitasking    float64 `json:"multitasking"`

	SampleSize int `json:"sample_size"`
}

// SkillVector concatenates the four skill groups into one vector for
// similarity scoring.
func (p *StaffProfile) SkillVector() []float64 {
	out := make([]float64, 0,
		len(p.TechnicalSkills)+len(p.SoftSkills)+len(p.DomainKnowledge)+len(p.ProblemSolvingSkills))
	out = append(out, p.TechnicalSkills...)
	out = append(out, p.SoftSkills...)
	out = append(out, p.DomainKnowledge...)
	out = append(out, p.ProblemSolvingSkills...)
	return out
}

// AverageProficiency is the mean over all skill dimensions, 0 when the
// profile carries no skill data.
func (p *StaffProfile) AverageProficiency() float64 {
	v := p.SkillVector()
	if len(v) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

// ProcedureRequirements is the scoring snapshot for one SOP.
type ProcedureRequirements struct {
	SOPID   string `json:"sop_id"`
	TitleEN string `json:"title_en"`
	TitleZH string `json:"title_zh,omitempty"`

	RequirementVector []float64 `json:"requirement_vector"`

	ComplexityScore      float64 `json:"complexity_score"`
	CognitiveLoad        float64 `json:"cognitive_load"`
	ProceduralComplexity float64 `json:"procedural_complexity"`
	DecisionPoints       float64 `json:"decision_points"`
	TimeSensitivity      float64 `json:"time_sensitivity"`

	DifficultySpike float64 `json:"difficulty_spike"`
	MasteryWeeks    float64 `json:"mastery_weeks"`

	EstimatedDuration float64 `json:"estimated_duration_minutes"`
	BaseSuccessRate   float64 `json:"base_success_rate"`
	SampleSize        int     `json:"sample_size"`
}
