package core

import (
	"context"
	"time"
)

// EmployeeProfile is the learner a course is generated for.
type EmployeeProfile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Role        string            `json:"role"`
	Department  string            `json:"department"`
	SkillLevels map[string]string `json:"skill_levels,omitempty"`
	Interests   []string          `json:"interests,omitempty"`
}

// SkillGap describes a skill the employee should improve.
type SkillGap struct {
	Skill        string `json:"skill"`
	CurrentLevel string `json:"current_level"`
	TargetLevel  string `json:"target_level"`
	Priority     int    `json:"priority"`
}

// CourseModule is one unit of a course plan.
type CourseModule struct {
	Number           int      `json:"number"`
	Title            string   `json:"title"`
	Objectives       []string `json:"objectives"`
	TargetSkills     []string `json:"target_skills"`
	Difficulty       string   `json:"difficulty"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	ResearchQueries  []string `json:"research_queries,omitempty"`
}

// CoursePlan is the planner's output: an ordered set of modules plus the
// research strategy that produced them.
type CoursePlan struct {
	ID         string         `json:"id"`
	EmployeeID string         `json:"employee_id"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary"`
	Modules    []CourseModule `json:"modules"`
	SkillGaps  []SkillGap     `json:"skill_gaps,omitempty"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
}

// ResearchSource is a web source backing a finding.
type ResearchSource struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Snippet     string  `json:"snippet,omitempty"`
	Credibility float64 `json:"credibility"`
}

// ResearchFinding is a synthesized insight with its sources.
type ResearchFinding struct {
	Topic   string           `json:"topic"`
	Summary string           `json:"summary"`
	Sources []ResearchSource `json:"sources,omitempty"`
}

// ResearchSession captures one module's research pass.
type ResearchSession struct {
	ID           string            `json:"id"`
	PlanID       string            `json:"plan_id"`
	ModuleNumber int               `json:"module_number"`
	Queries      []string          `json:"queries"`
	Findings     []ResearchFinding `json:"findings"`
	Status       string            `json:"status"`
}

// ContentSection is a rendered section of module content.
type ContentSection struct {
	Heading   string   `json:"heading"`
	Body      string   `json:"body"`
	Examples  []string `json:"examples,omitempty"`
	Exercises []string `json:"exercises,omitempty"`
}

// ModuleContent is the content agent's output for a single module.
type ModuleContent struct {
	ID           string           `json:"id"`
	PlanID       string           `json:"plan_id"`
	ModuleNumber int              `json:"module_number"`
	Title        string           `json:"title"`
	Sections     []ContentSection `json:"sections"`
	WordCount    int              `json:"word_count"`
	Status       string           `json:"status"`
}

// QualityScores holds the per-criterion rubric scores (0-10).
type QualityScores struct {
	Accuracy     float64 `json:"accuracy"`
	Clarity      float64 `json:"clarity"`
	Relevance    float64 `json:"relevance"`
	Completeness float64 `json:"completeness"`
	Engagement   float64 `json:"engagement"`
}

// Overall computes the weighted rubric score. Accuracy and relevance weigh
// heavier than presentation criteria.
func (q QualityScores) Overall() float64 {
	return q.Accuracy*0.3 + q.Relevance*0.25 + q.Completeness*0.2 + q.Clarity*0.15 + q.Engagement*0.1
}

// QualityAssessment is the assessor's verdict on one module's content.
type QualityAssessment struct {
	ID         string        `json:"id"`
	ContentID  string        `json:"content_id"`
	Scores     QualityScores `json:"scores"`
	Overall    float64       `json:"overall"`
	Passed     bool          `json:"passed"`
	Feedback   string        `json:"feedback"`
	AssessedAt time.Time     `json:"assessed_at,omitempty"`
}

// GenerationRequest asks the orchestrator for a full course.
type GenerationRequest struct {
	RunID        string `json:"run_id"`
	EmployeeID   string `json:"employee_id"`
	FocusSkill   string `json:"focus_skill,omitempty"`
	IncludeMedia bool   `json:"include_media"`
}

// GenerationResult summarizes a completed (or failed) run.
type GenerationResult struct {
	RunID            string        `json:"run_id"`
	PlanID           string        `json:"plan_id"`
	Status           string        `json:"status"`
	ModulesCompleted int           `json:"modules_completed"`
	TotalTokens      int64         `json:"total_tokens"`
	TotalCost        float64       `json:"total_cost"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
}

// Run statuses used across the orchestrator, store and API.
const (
	RunStatusPending   = "pending"
	RunStatusPlanning  = "planning"
	RunStatusResearch  = "researching"
	RunStatusContent   = "writing"
	RunStatusAssessing = "assessing"
	RunStatusMedia     = "narrating"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ChatMessage is one entry in a chat-completions conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is the model's request to invoke a local function.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is the schema advertised to the model.
type ToolDefinition struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes one callable function.
type FunctionSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ChatResponse is the provider's reply to a tool-enabled chat call.
type ChatResponse struct {
	Content          string
	ToolCalls        []ToolCall
	PromptTokens     int64
	CompletionTokens int64
}

// ModelInfo describes a configured model.
type ModelInfo struct {
	Name            string
	APIName         string
	MaxTokens       int
	Temperature     float64
	CostPer1K       float64
	CostPer1KOutput float64
}

// LLMProvider abstracts the chat/speech backend.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, model string) (string, error)
	GenerateWithTokens(ctx context.Context, systemPrompt, userPrompt, model string) (string, int64, int64, error)
	ChatWithTools(ctx context.Context, model string, messages []ChatMessage, tools []ToolDefinition) (ChatResponse, error)
	Speak(ctx context.Context, input, voice, model string) ([]byte, error)
	GetModelInfo(model string) (ModelInfo, error)
	CalculateCost(model string, promptTokens, completionTokens int64) float64
}
