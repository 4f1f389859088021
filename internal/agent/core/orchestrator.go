package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/skillsmith/coursegen/config"
	"github.com/skillsmith/coursegen/internal/agent/telemetry"
	"github.com/skillsmith/coursegen/internal/store"
)

// Narrator produces narrated audio for finished module content. Implemented
// by the media package; nil disables the media phase.
type Narrator interface {
	NarrateModule(ctx context.Context, content ModuleContent) (sessionID string, err error)
}

// RunStatus is the in-memory view of a generation run's progress.
type RunStatus struct {
	RunID        string    `json:"run_id"`
	Stage        string    `json:"stage"`
	PlanID       string    `json:"plan_id,omitempty"`
	ModulesDone  int       `json:"modules_done"`
	ModulesTotal int       `json:"modules_total"`
	Error        string    `json:"error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Orchestrator drives the planning → research → writing → assessment →
// media pipeline for generation runs.
type Orchestrator struct {
	cfg       *config.Config
	provider  LLMProvider
	store     *store.Store
	telemetry *telemetry.Telemetry

	planner    *PlanningAgent
	researcher *ResearchAgent
	writer     *ContentAgent
	assessor   *QualityAgent
	narrator   Narrator

	sem    chan struct{}
	tracer trace.Tracer
	logger *log.Logger

	mu       sync.RWMutex
	statuses map[string]*RunStatus
}

// NewOrchestrator wires the pipeline agents around a shared toolset.
func NewOrchestrator(cfg *config.Config, provider LLMProvider, st *store.Store, toolset *Toolset, tel *telemetry.Telemetry, narrator Narrator) *Orchestrator {
	runner := NewRunner(provider, tel, cfg.Agents.MaxRepeatedCalls)
	routing := cfg.LLM.Routing
	return &Orchestrator{
		cfg:        cfg,
		provider:   provider,
		store:      st,
		telemetry:  tel,
		planner:    NewPlanningAgent(runner, toolset, routing.Planning, cfg.Agents.MaxTurns),
		researcher: NewResearchAgent(runner, toolset, routing.Research, cfg.Agents.MaxTurns),
		writer:     NewContentAgent(runner, toolset, routing.Content, cfg.Agents.MaxTurns),
		assessor:   NewQualityAgent(provider, routing.Assessment, cfg.Quality.PassThreshold),
		narrator:   narrator,
		sem:        make(chan struct{}, cfg.Agents.MaxConcurrentAgents),
		tracer:     otel.Tracer("coursegen/orchestrator"),
		logger:     log.New(log.Writer(), "[ORCHESTRATOR] ", log.LstdFlags),
		statuses:   map[string]*RunStatus{},
	}
}

// GetStatus returns the in-memory progress of a run, if tracked.
func (o *Orchestrator) GetStatus(runID string) (RunStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	st, ok := o.statuses[runID]
	if !ok {
		return RunStatus{}, false
	}
	return *st, true
}

// Finished runs linger in the status map for statusRetention so late GET
// /runs/:id polls still see them, then get evicted; maxTrackedRuns bounds
// the map regardless of age.
const (
	statusRetention = time.Hour
	maxTrackedRuns  = 1000
)

func (o *Orchestrator) setStatus(runID string, update func(*RunStatus)) {
	o.mu.Lock()
	st, ok := o.statuses[runID]
	if !ok {
		st = &RunStatus{RunID: runID}
		o.statuses[runID] = st
	}
	update(st)
	st.UpdatedAt = time.Now()
	o.pruneStatusesLocked()
	o.mu.Unlock()
}

// pruneStatusesLocked evicts finished runs that have aged past retention,
// then the oldest finished runs while the map exceeds the cap. Callers hold
// o.mu. In-flight runs are never evicted.
func (o *Orchestrator) pruneStatusesLocked() {
	cutoff := time.Now().Add(-statusRetention)
	for id, st := range o.statuses {
		if statusFinished(st.Stage) && st.UpdatedAt.Before(cutoff) {
			delete(o.statuses, id)
		}
	}
	if len(o.statuses) <= maxTrackedRuns {
		return
	}
	type agedRun struct {
		id string
		at time.Time
	}
	var finished []agedRun
	for id, st := range o.statuses {
		if statusFinished(st.Stage) {
			finished = append(finished, agedRun{id, st.UpdatedAt})
		}
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].at.Before(finished[j].at) })
	for _, run := range finished {
		if len(o.statuses) <= maxTrackedRuns {
			return
		}
		delete(o.statuses, run.id)
	}
}

func statusFinished(stage string) bool {
	return stage == RunStatusCompleted || stage == RunStatusFailed
}

// GenerateCourse runs the full pipeline for one request. The generation_runs
// row must already exist.
func (o *Orchestrator) GenerateCourse(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "orchestrator.generate_course",
		trace.WithAttributes(
			attribute.String("run.id", req.RunID),
			attribute.String("employee.id", req.EmployeeID),
		))
	defer span.End()

	if o.cfg.General.MaxProcessingTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.General.MaxProcessingTime)
		defer cancel()
	}

	result := GenerationResult{RunID: req.RunID, Status: RunStatusFailed}
	fail := func(stage string, err error) (GenerationResult, error) {
		o.logger.Printf("run %s failed at %s: %v", req.RunID, stage, err)
		result.Error = err.Error()
		result.Duration = time.Since(started)
		o.setStatus(req.RunID, func(st *RunStatus) { st.Stage = RunStatusFailed; st.Error = err.Error() })
		if result.PlanID != "" {
			_ = o.store.SetCoursePlanStatus(ctx, result.PlanID, RunStatusFailed)
		}
		_ = o.store.FinishGenerationRun(ctx, req.RunID, result.PlanID, RunStatusFailed, result.Error, result.TotalTokens, result.TotalCost)
		o.telemetry.RecordRun(RunStatusFailed)
		return result, err
	}

	// Planning
	o.setStatus(req.RunID, func(st *RunStatus) { st.Stage = RunStatusPlanning })
	_ = o.store.SetGenerationRunStatus(ctx, req.RunID, RunStatusPlanning)

	employee, ok, err := o.store.GetEmployee(ctx, req.EmployeeID)
	if err != nil {
		return fail("planning", fmt.Errorf("load employee: %w", err))
	}
	if !ok {
		return fail("planning", fmt.Errorf("employee %s not found", req.EmployeeID))
	}

	planID, planRun, err := o.runPlanner(ctx, employee, req.FocusSkill)
	o.accumulate(&result, planRun)
	if err != nil {
		return fail("planning", err)
	}
	result.PlanID = planID
	o.setStatus(req.RunID, func(st *RunStatus) { st.PlanID = planID })
	o.recordHandoff(ctx, req.RunID, "planner", "researcher", map[string]interface{}{"plan_id": planID})

	planRec, ok, err := o.store.GetCoursePlan(ctx, planID)
	if err != nil || !ok {
		return fail("planning", fmt.Errorf("reload plan %s: %w", planID, err))
	}
	plan, err := LoadPlan(planRec)
	if err != nil {
		return fail("planning", err)
	}
	o.setStatus(req.RunID, func(st *RunStatus) { st.ModulesTotal = len(plan.Modules) })

	// Research, writing and assessment fan out per module, bounded by the
	// agent semaphore.
	o.setStatus(req.RunID, func(st *RunStatus) { st.Stage = RunStatusResearch })
	_ = o.store.SetGenerationRunStatus(ctx, req.RunID, RunStatusResearch)

	outcomes := make([]moduleOutcome, len(plan.Modules))
	var wg sync.WaitGroup
	for i, module := range plan.Modules {
		wg.Add(1)
		go func(i int, module CourseModule) {
			defer wg.Done()
			outcomes[i] = o.processModule(ctx, req.RunID, plan, module)
		}(i, module)
	}
	wg.Wait()

	var firstErr error
	for _, out := range outcomes {
		for _, r := range out.runs {
			o.accumulate(&result, r)
		}
		result.TotalTokens += out.tokens
		result.TotalCost += out.cost
		if out.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("module %d: %w", out.module.Number, out.err)
			}
			continue
		}
		result.ModulesCompleted++
		o.setStatus(req.RunID, func(st *RunStatus) { st.ModulesDone++ })
	}
	if firstErr != nil {
		return fail("content", firstErr)
	}

	// Media
	if req.IncludeMedia && o.narrator != nil {
		o.setStatus(req.RunID, func(st *RunStatus) { st.Stage = RunStatusMedia })
		_ = o.store.SetGenerationRunStatus(ctx, req.RunID, RunStatusMedia)
		o.recordHandoff(ctx, req.RunID, "assessor", "narrator", map[string]interface{}{"plan_id": planID})
		if err := o.narratePlan(ctx, planID); err != nil {
			// Narration failure degrades the run but does not void the course.
			o.logger.Printf("run %s: narration incomplete: %v", req.RunID, err)
		}
	}

	if err := o.store.SetCoursePlanStatus(ctx, planID, RunStatusCompleted); err != nil {
		return fail("finalize", fmt.Errorf("mark plan completed: %w", err))
	}

	result.Status = RunStatusCompleted
	result.Duration = time.Since(started)
	o.setStatus(req.RunID, func(st *RunStatus) { st.Stage = RunStatusCompleted })
	_ = o.store.FinishGenerationRun(ctx, req.RunID, planID, RunStatusCompleted, "", result.TotalTokens, result.TotalCost)
	o.telemetry.RecordRun(RunStatusCompleted)
	o.logger.Printf("run %s completed: plan=%s modules=%d tokens=%d cost=$%.4f in %s",
		req.RunID, planID, result.ModulesCompleted, result.TotalTokens, result.TotalCost, result.Duration.Round(time.Second))
	return result, nil
}

func (o *Orchestrator) runPlanner(ctx context.Context, employee store.EmployeeRecord, focusSkill string) (string, RunResult, error) {
	o.sem <- struct{}{}
	defer func() { <-o.sem }()
	ctx, span := o.tracer.Start(ctx, "orchestrator.plan")
	defer span.End()
	return o.planner.Plan(ctx, employee, focusSkill)
}

type moduleOutcome struct {
	module    CourseModule
	contentID string
	runs      []RunResult
	tokens    int64
	cost      float64
	err       error
}

func (o *Orchestrator) processModule(ctx context.Context, runID string, plan CoursePlan, module CourseModule) (out moduleOutcome) {
	out.module = module
	ctx, span := o.tracer.Start(ctx, "orchestrator.module",
		trace.WithAttributes(attribute.Int("module.number", module.Number)))
	defer span.End()

	acquire := func() func() {
		o.sem <- struct{}{}
		return func() { <-o.sem }
	}

	// Research
	release := acquire()
	sessionID, researchRun, err := o.researcher.Research(ctx, plan, module)
	release()
	out.runs = append(out.runs, researchRun)
	if err != nil {
		out.err = fmt.Errorf("research: %w", err)
		return out
	}
	o.recordHandoff(ctx, runID, "researcher", "writer", map[string]interface{}{
		"plan_id": plan.ID, "module": module.Number, "session_id": sessionID,
	})

	// Writing, with up to MaxEnhancements revision passes driven by the
	// assessor's feedback.
	feedback := ""
	var assessment QualityAssessment
	for attempt := 0; ; attempt++ {
		release = acquire()
		contentID, writeRun, err := o.writer.Write(ctx, plan, module, feedback)
		release()
		out.runs = append(out.runs, writeRun)
		if err != nil {
			out.err = fmt.Errorf("write: %w", err)
			return out
		}
		out.contentID = contentID
		o.recordHandoff(ctx, runID, "writer", "assessor", map[string]interface{}{
			"plan_id": plan.ID, "module": module.Number, "content_id": contentID,
		})

		contentRec, ok, err := o.store.GetModuleContent(ctx, plan.ID, module.Number)
		if err != nil || !ok {
			out.err = fmt.Errorf("reload content: %w", err)
			return out
		}
		content := ModuleContent{
			ID:           contentRec.ID,
			PlanID:       contentRec.PlanID,
			ModuleNumber: contentRec.ModuleNumber,
			Title:        contentRec.Title,
			WordCount:    contentRec.WordCount,
			Status:       contentRec.Status,
		}
		if err := json.Unmarshal(contentRec.Sections, &content.Sections); err != nil {
			out.err = fmt.Errorf("decode sections: %w", err)
			return out
		}

		var promptTokens, completionTokens int64
		assessment, promptTokens, completionTokens, err = o.assessor.Assess(ctx, module, content)
		out.tokens += promptTokens + completionTokens
		out.cost += o.provider.CalculateCost(o.cfg.LLM.Routing.Assessment, promptTokens, completionTokens)
		if err != nil {
			out.err = fmt.Errorf("assess: %w", err)
			return out
		}

		criteria, _ := json.Marshal(assessment.Scores)
		if _, err := o.store.SaveQualityAssessment(ctx, store.QualityAssessmentRecord{
			ContentID: content.ID,
			Overall:   assessment.Overall,
			Passed:    assessment.Passed,
			Criteria:  criteria,
			Feedback:  assessment.Feedback,
		}); err != nil {
			out.err = fmt.Errorf("save assessment: %w", err)
			return out
		}

		if assessment.Passed {
			if _, err := o.store.SaveModuleContent(ctx, store.ModuleContentRecord{
				PlanID:       plan.ID,
				ModuleNumber: module.Number,
				Title:        contentRec.Title,
				Sections:     contentRec.Sections,
				WordCount:    contentRec.WordCount,
				Status:       "approved",
			}); err != nil {
				out.err = fmt.Errorf("approve content: %w", err)
				return out
			}
			return out
		}
		if attempt >= o.cfg.Quality.MaxEnhancements {
			out.err = fmt.Errorf("content scored %.2f after %d enhancement passes (threshold %.2f)",
				assessment.Overall, attempt, o.assessor.Threshold())
			return out
		}
		feedback = assessment.Feedback
	}
}

// narratePlan runs the media phase for every approved module of a plan.
func (o *Orchestrator) narratePlan(ctx context.Context, planID string) error {
	contents, err := o.store.ListModuleContent(ctx, planID)
	if err != nil {
		return fmt.Errorf("list content: %w", err)
	}
	var firstErr error
	for _, rec := range contents {
		content := ModuleContent{
			ID:           rec.ID,
			PlanID:       rec.PlanID,
			ModuleNumber: rec.ModuleNumber,
			Title:        rec.Title,
			WordCount:    rec.WordCount,
			Status:       rec.Status,
		}
		if err := json.Unmarshal(rec.Sections, &content.Sections); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if _, err := o.narrator.NarrateModule(ctx, content); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (o *Orchestrator) accumulate(result *GenerationResult, run RunResult) {
	result.TotalTokens += run.PromptTokens + run.CompletionTokens
	result.TotalCost += run.Cost
}

func (o *Orchestrator) recordHandoff(ctx context.Context, runID, from, to string, payload map[string]interface{}) {
	b, _ := json.Marshal(payload)
	if err := o.store.RecordHandoff(ctx, store.HandoffRecord{
		RunID:     runID,
		FromAgent: from,
		ToAgent:   to,
		Payload:   b,
	}); err != nil {
		o.logger.Printf("record handoff %s->%s: %v", from, to, err)
	}
}
