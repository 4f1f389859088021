package server

// HTTPError is the JSON error body returned by the unified error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type EmployeeRequest struct {
	Name       string                 `json:"name"`
	Email      string                 `json:"email"`
	Role       string                 `json:"role"`
	Department string                 `json:"department"`
	Profile    map[string]interface{} `json:"profile"`
}

type GenerateRequest struct {
	EmployeeID   string `json:"employee_id"`
	FocusSkill   string `json:"focus_skill"`
	IncludeMedia bool   `json:"include_media"`
}

type RunAccepted struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type SkillRequest struct {
	Name              string   `json:"name"`
	Category          string   `json:"category"`
	Description       string   `json:"description"`
	ProficiencyLevels []string `json:"proficiency_levels"`
}

type ScheduleRequest struct {
	RefreshCron string `json:"refresh_cron"`
}

type NarrateRequest struct {
	PlanID       string `json:"plan_id"`
	ModuleNumber int    `json:"module_number"`
}
