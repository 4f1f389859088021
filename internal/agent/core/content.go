package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const contentInstructions = `You are a corporate training writer. You turn researched material into
engaging, practical course content for one module.

Work in this order:
1. Call get_research to load the findings for this module.
2. Write 3-5 sections in markdown. Ground every claim in the research;
   do not invent facts. Each section needs a clear heading, a body an
   adult professional can follow, and where it helps, worked examples
   and practice exercises.
3. Call save_module_content exactly once with the finished sections.

After the content is saved, reply with a short confirmation and stop.`

// ContentAgent writes the instructional content for one module.
type ContentAgent struct {
	runner   *Runner
	toolset  *Toolset
	model    string
	maxTurns int
	logger   *log.Logger
}

func NewContentAgent(runner *Runner, toolset *Toolset, model string, maxTurns int) *ContentAgent {
	return &ContentAgent{
		runner:   runner,
		toolset:  toolset,
		model:    model,
		maxTurns: maxTurns,
		logger:   log.New(log.Writer(), "[CONTENT] ", log.LstdFlags),
	}
}

// Write produces module content. A non-empty feedback string turns this into
// an enhancement pass: the writer revises against the assessor's notes.
func (a *ContentAgent) Write(ctx context.Context, plan CoursePlan, module CourseModule, feedback string) (string, RunResult, error) {
	var saved Capture
	agent := Agent{
		Name:         "writer",
		Instructions: contentInstructions,
		Model:        a.model,
		Tools:        a.toolset.ContentTools(plan.ID, module.Number, &saved),
		MaxTurns:     a.maxTurns,
	}

	var input strings.Builder
	fmt.Fprintf(&input, "Course: %s\nModule %d: %s (%s, ~%d minutes)\n",
		plan.Title, module.Number, module.Title, module.Difficulty, module.EstimatedMinutes)
	if len(module.Objectives) > 0 {
		fmt.Fprintf(&input, "Objectives:\n- %s\n", strings.Join(module.Objectives, "\n- "))
	}
	if len(module.TargetSkills) > 0 {
		fmt.Fprintf(&input, "Target skills: %s\n", strings.Join(module.TargetSkills, ", "))
	}
	if feedback != "" {
		fmt.Fprintf(&input, "\nA quality review rejected the previous draft. Rewrite the content addressing this feedback:\n%s\n", feedback)
	}

	result, err := a.runner.Run(ctx, agent, input.String())
	if err != nil {
		return "", result, err
	}
	if saved.ID() == "" {
		return "", result, fmt.Errorf("writer finished without saving content")
	}
	a.logger.Printf("content %s saved for plan %s module %d (%d turns)", saved.ID(), plan.ID, module.Number, result.Turns)
	return saved.ID(), result, nil
}
