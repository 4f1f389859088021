package core

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const researchInstructions = `You are a training-content researcher. You gather accurate, current
material for one module of a corporate course.

Work in this order:
1. Run web_search for each suggested query (rephrase if a query returns
   nothing useful). Add follow-up searches where the results point to
   better angles.
2. Use fetch_page on the most promising results to read the full text.
   Prefer primary documentation, vendor guides and reputable publications.
3. Synthesize 3-6 findings. Each finding needs a topic, a concise summary
   in your own words, and its backing sources with a 0-1 credibility score
   (official docs ~0.9, established publications ~0.7, forums ~0.4).
4. Call save_research exactly once with the queries you ran and the findings.

After the research is saved, reply with a short confirmation and stop.`

// ResearchAgent gathers source material for one course module.
type ResearchAgent struct {
	runner   *Runner
	toolset  *Toolset
	model    string
	maxTurns int
	logger   *log.Logger
}

func NewResearchAgent(runner *Runner, toolset *Toolset, model string, maxTurns int) *ResearchAgent {
	return &ResearchAgent{
		runner:   runner,
		toolset:  toolset,
		model:    model,
		maxTurns: maxTurns,
		logger:   log.New(log.Writer(), "[RESEARCH] ", log.LstdFlags),
	}
}

// Research runs the research loop for one module and returns the persisted
// session ID.
func (a *ResearchAgent) Research(ctx context.Context, plan CoursePlan, module CourseModule) (string, RunResult, error) {
	var saved Capture
	agent := Agent{
		Name:         "researcher",
		Instructions: researchInstructions,
		Model:        a.model,
		Tools:        a.toolset.ResearchTools(plan.ID, module.Number, &saved),
		MaxTurns:     a.maxTurns,
	}

	var input strings.Builder
	fmt.Fprintf(&input, "Course: %s\nModule %d: %s (%s)\n", plan.Title, module.Number, module.Title, module.Difficulty)
	if len(module.Objectives) > 0 {
		fmt.Fprintf(&input, "Objectives:\n- %s\n", strings.Join(module.Objectives, "\n- "))
	}
	if len(module.ResearchQueries) > 0 {
		fmt.Fprintf(&input, "Suggested queries:\n- %s\n", strings.Join(module.ResearchQueries, "\n- "))
	}

	result, err := a.runner.Run(ctx, agent, input.String())
	if err != nil {
		return "", result, err
	}
	if saved.ID() == "" {
		return "", result, fmt.Errorf("researcher finished without saving findings")
	}
	a.logger.Printf("research %s saved for plan %s module %d (%d turns)", saved.ID(), plan.ID, module.Number, result.Turns)
	return saved.ID(), result, nil
}
