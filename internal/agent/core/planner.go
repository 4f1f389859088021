package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/skillsmith/coursegen/internal/store"
)

const plannerInstructions = `You are a corporate learning planner. You design personalized training
courses for employees based on their role, profile and skill gaps.

Work in this order:
1. Call get_employee to load the profile.
2. Call search_skills to map the employee's weak areas to taxonomy skills.
3. Design a course of 3-6 modules that closes the most important gaps.
   Order modules from foundational to advanced. Give every module concrete
   learning objectives, target skills, a difficulty level, an estimated
   completion time in minutes and 2-4 web research queries.
4. Call save_course_plan exactly once with the finished plan.

After the plan is saved, reply with a short confirmation and stop.`

// PlanningAgent designs a course plan for an employee.
type PlanningAgent struct {
	runner   *Runner
	toolset  *Toolset
	model    string
	maxTurns int
	logger   *log.Logger
}

func NewPlanningAgent(runner *Runner, toolset *Toolset, model string, maxTurns int) *PlanningAgent {
	return &PlanningAgent{
		runner:   runner,
		toolset:  toolset,
		model:    model,
		maxTurns: maxTurns,
		logger:   log.New(log.Writer(), "[PLANNER] ", log.LstdFlags),
	}
}

// Plan runs the planning loop and returns the persisted plan ID.
func (a *PlanningAgent) Plan(ctx context.Context, employee store.EmployeeRecord, focusSkill string) (string, RunResult, error) {
	var saved Capture
	agent := Agent{
		Name:         "planner",
		Instructions: plannerInstructions,
		Model:        a.model,
		Tools:        a.toolset.PlannerTools(employee.ID, &saved),
		MaxTurns:     a.maxTurns,
	}

	var input strings.Builder
	fmt.Fprintf(&input, "Plan a course for %s (%s, %s).\n", employee.Name, employee.Role, employee.Department)
	if len(employee.Profile) > 0 {
		fmt.Fprintf(&input, "Profile: %s\n", string(employee.Profile))
	}
	if focusSkill != "" {
		fmt.Fprintf(&input, "The course must focus on: %s\n", focusSkill)
	}

	result, err := a.runner.Run(ctx, agent, input.String())
	if err != nil {
		return "", result, err
	}
	if saved.ID() == "" {
		return "", result, fmt.Errorf("planner finished without saving a plan")
	}
	a.logger.Printf("plan %s saved for employee %s (%d turns)", saved.ID(), employee.ID, result.Turns)
	return saved.ID(), result, nil
}

// LoadPlan materializes a stored plan record into the domain type.
func LoadPlan(rec store.CoursePlanRecord) (CoursePlan, error) {
	plan := CoursePlan{
		ID:         rec.ID,
		EmployeeID: rec.EmployeeID,
		Title:      rec.Title,
		Summary:    rec.Summary,
		Status:     rec.Status,
		CreatedAt:  rec.CreatedAt,
	}
	if len(rec.Plan) > 0 {
		if err := json.Unmarshal(rec.Plan, &plan.Modules); err != nil {
			return CoursePlan{}, fmt.Errorf("decode plan modules: %w", err)
		}
	}
	if len(rec.SkillGaps) > 0 {
		if err := json.Unmarshal(rec.SkillGaps, &plan.SkillGaps); err != nil {
			return CoursePlan{}, fmt.Errorf("decode skill gaps: %w", err)
		}
	}
	return plan, nil
}
