package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CoursePlanRecord is a stored course plan. Plan holds the ordered module
// outline; SkillGaps holds the gap analysis that produced it.
type CoursePlanRecord struct {
	ID          string
	EmployeeID  string
	Title       string
	Summary     string
	Status      string
	Plan        json.RawMessage
	SkillGaps   json.RawMessage
	RefreshCron string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (s *Store) SaveCoursePlan(ctx context.Context, rec CoursePlanRecord) (string, error) {
	if strings.TrimSpace(rec.EmployeeID) == "" {
		return "", fmt.Errorf("employee_id required")
	}
	if strings.TrimSpace(rec.Title) == "" {
		return "", fmt.Errorf("plan title required")
	}
	plan := rec.Plan
	if len(plan) == 0 {
		plan = json.RawMessage(`[]`)
	}
	gaps := rec.SkillGaps
	if len(gaps) == 0 {
		gaps = json.RawMessage(`[]`)
	}
	var id string
	if rec.ID == "" {
		err := s.DB.QueryRowContext(ctx, `
INSERT INTO course_plans (employee_id, title, summary, status, plan, skill_gaps, refresh_cron)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			rec.EmployeeID, rec.Title, rec.Summary, rec.Status, []byte(plan), []byte(gaps), rec.RefreshCron).Scan(&id)
		return id, err
	}
	_, err := s.DB.ExecContext(ctx, `
UPDATE course_plans SET title=$2, summary=$3, status=$4, plan=$5, skill_gaps=$6, refresh_cron=$7, updated_at=NOW()
WHERE id=$1`,
		rec.ID, rec.Title, rec.Summary, rec.Status, []byte(plan), []byte(gaps), rec.RefreshCron)
	return rec.ID, err
}

func (s *Store) GetCoursePlan(ctx context.Context, id string) (CoursePlanRecord, bool, error) {
	var rec CoursePlanRecord
	var plan, gaps []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, employee_id::text, title, summary, status, plan, skill_gaps, refresh_cron, created_at, updated_at
FROM course_plans WHERE id=$1`, id).
		Scan(&rec.ID, &rec.EmployeeID, &rec.Title, &rec.Summary, &rec.Status, &plan, &gaps, &rec.RefreshCron, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return CoursePlanRecord{}, false, nil
	}
	if err != nil {
		return CoursePlanRecord{}, false, err
	}
	rec.Plan = plan
	rec.SkillGaps = gaps
	return rec, true, nil
}

func (s *Store) ListCoursePlans(ctx context.Context, employeeID string) ([]CoursePlanRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, employee_id::text, title, summary, status, plan, skill_gaps, refresh_cron, created_at, updated_at
FROM course_plans WHERE employee_id=$1 ORDER BY created_at DESC`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CoursePlanRecord
	for rows.Next() {
		var rec CoursePlanRecord
		var plan, gaps []byte
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.Title, &rec.Summary, &rec.Status, &plan, &gaps, &rec.RefreshCron, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Plan = plan
		rec.SkillGaps = gaps
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetCoursePlanStatus(ctx context.Context, id, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE course_plans SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}

// MarkCoursePlanRefreshed advances the plan's updated_at so the scheduler's
// due check does not fire it again until the next cron window.
func (s *Store) MarkCoursePlanRefreshed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE course_plans SET updated_at=NOW() WHERE id=$1`, id)
	return err
}

// ListRefreshablePlans returns plans carrying a refresh schedule.
func (s *Store) ListRefreshablePlans(ctx context.Context) ([]CoursePlanRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, employee_id::text, title, summary, status, plan, skill_gaps, refresh_cron, created_at, updated_at
FROM course_plans WHERE refresh_cron <> '' AND status = 'completed'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CoursePlanRecord
	for rows.Next() {
		var rec CoursePlanRecord
		var plan, gaps []byte
		if err := rows.Scan(&rec.ID, &rec.EmployeeID, &rec.Title, &rec.Summary, &rec.Status, &plan, &gaps, &rec.RefreshCron, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Plan = plan
		rec.SkillGaps = gaps
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ResearchSessionRecord captures one module's research pass.
type ResearchSessionRecord struct {
	ID           string
	PlanID       string
	ModuleNumber int
	Queries      json.RawMessage
	Findings     json.RawMessage
	Status       string
	CreatedAt    time.Time
}

func (s *Store) SaveResearchSession(ctx context.Context, rec ResearchSessionRecord) (string, error) {
	if strings.TrimSpace(rec.PlanID) == "" {
		return "", fmt.Errorf("plan_id required")
	}
	queries := rec.Queries
	if len(queries) == 0 {
		queries = json.RawMessage(`[]`)
	}
	findings := rec.Findings
	if len(findings) == 0 {
		findings = json.RawMessage(`[]`)
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO research_sessions (plan_id, module_number, queries, findings, status)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (plan_id, module_number) DO UPDATE SET
  queries  = EXCLUDED.queries,
  findings = EXCLUDED.findings,
  status   = EXCLUDED.status
RETURNING id`,
		rec.PlanID, rec.ModuleNumber, []byte(queries), []byte(findings), rec.Status).Scan(&id)
	return id, err
}

func (s *Store) GetResearchSession(ctx context.Context, planID string, moduleNumber int) (ResearchSessionRecord, bool, error) {
	var rec ResearchSessionRecord
	var queries, findings []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, plan_id::text, module_number, queries, findings, status, created_at
FROM research_sessions WHERE plan_id=$1 AND module_number=$2`, planID, moduleNumber).
		Scan(&rec.ID, &rec.PlanID, &rec.ModuleNumber, &queries, &findings, &rec.Status, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return ResearchSessionRecord{}, false, nil
	}
	if err != nil {
		return ResearchSessionRecord{}, false, err
	}
	rec.Queries = queries
	rec.Findings = findings
	return rec, true, nil
}

// ModuleContentRecord stores the rendered content of a course module.
type ModuleContentRecord struct {
	ID           string
	PlanID       string
	ModuleNumber int
	Title        string
	Sections     json.RawMessage
	WordCount    int
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Store) SaveModuleContent(ctx context.Context, rec ModuleContentRecord) (string, error) {
	if strings.TrimSpace(rec.PlanID) == "" {
		return "", fmt.Errorf("plan_id required")
	}
	sections := rec.Sections
	if len(sections) == 0 {
		sections = json.RawMessage(`[]`)
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO module_content (plan_id, module_number, title, sections, word_count, status)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (plan_id, module_number) DO UPDATE SET
  title      = EXCLUDED.title,
  sections   = EXCLUDED.sections,
  word_count = EXCLUDED.word_count,
  status     = EXCLUDED.status,
  updated_at = NOW()
RETURNING id`,
		rec.PlanID, rec.ModuleNumber, rec.Title, []byte(sections), rec.WordCount, rec.Status).Scan(&id)
	return id, err
}

func (s *Store) GetModuleContent(ctx context.Context, planID string, moduleNumber int) (ModuleContentRecord, bool, error) {
	var rec ModuleContentRecord
	var sections []byte
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, plan_id::text, module_number, title, sections, word_count, status, created_at, updated_at
FROM module_content WHERE plan_id=$1 AND module_number=$2`, planID, moduleNumber).
		Scan(&rec.ID, &rec.PlanID, &rec.ModuleNumber, &rec.Title, &sections, &rec.WordCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return ModuleContentRecord{}, false, nil
	}
	if err != nil {
		return ModuleContentRecord{}, false, err
	}
	rec.Sections = sections
	return rec, true, nil
}

func (s *Store) ListModuleContent(ctx context.Context, planID string) ([]ModuleContentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, plan_id::text, module_number, title, sections, word_count, status, created_at, updated_at
FROM module_content WHERE plan_id=$1 ORDER BY module_number`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ModuleContentRecord
	for rows.Next() {
		var rec ModuleContentRecord
		var sections []byte
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.ModuleNumber, &rec.Title, &sections, &rec.WordCount, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Sections = sections
		out = append(out, rec)
	}
	return out, rows.Err()
}

// QualityAssessmentRecord is the assessor's verdict on one content row.
type QualityAssessmentRecord struct {
	ID         string
	ContentID  string
	Overall    float64
	Passed     bool
	Criteria   json.RawMessage
	Feedback   string
	AssessedAt time.Time
}

func (s *Store) SaveQualityAssessment(ctx context.Context, rec QualityAssessmentRecord) (string, error) {
	if strings.TrimSpace(rec.ContentID) == "" {
		return "", fmt.Errorf("content_id required")
	}
	criteria := rec.Criteria
	if len(criteria) == 0 {
		criteria = json.RawMessage(`{}`)
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO quality_assessments (content_id, overall, passed, criteria, feedback)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		rec.ContentID, rec.Overall, rec.Passed, []byte(criteria), rec.Feedback).Scan(&id)
	return id, err
}

func (s *Store) ListAssessmentsForContent(ctx context.Context, contentID string) ([]QualityAssessmentRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id::text, content_id::text, overall, passed, criteria, feedback, assessed_at
FROM quality_assessments WHERE content_id=$1 ORDER BY assessed_at`, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []QualityAssessmentRecord
	for rows.Next() {
		var rec QualityAssessmentRecord
		var criteria []byte
		if err := rows.Scan(&rec.ID, &rec.ContentID, &rec.Overall, &rec.Passed, &criteria, &rec.Feedback, &rec.AssessedAt); err != nil {
			return nil, err
		}
		rec.Criteria = criteria
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HandoffRecord is an audit entry for a phase transition within a run. The
// payload carries IDs only, never content.
type HandoffRecord struct {
	ID        int64
	RunID     string
	FromAgent string
	ToAgent   string
	Payload   json.RawMessage
	CreatedAt time.Time
}

func (s *Store) RecordHandoff(ctx context.Context, rec HandoffRecord) error {
	if strings.TrimSpace(rec.RunID) == "" {
		return fmt.Errorf("run_id required")
	}
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO agent_handoffs (run_id, from_agent, to_agent, payload)
VALUES ($1,$2,$3,$4)`,
		rec.RunID, rec.FromAgent, rec.ToAgent, []byte(payload))
	return err
}

func (s *Store) ListHandoffs(ctx context.Context, runID string) ([]HandoffRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, run_id::text, from_agent, to_agent, payload, created_at
FROM agent_handoffs WHERE run_id=$1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HandoffRecord
	for rows.Next() {
		var rec HandoffRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.FromAgent, &rec.ToAgent, &payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MediaSessionRecord tracks a narration/TTS artifact for a content row.
type MediaSessionRecord struct {
	ID        string
	ContentID string
	Script    string
	AudioURI  string
	Voice     string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *Store) SaveMediaSession(ctx context.Context, rec MediaSessionRecord) (string, error) {
	if strings.TrimSpace(rec.ContentID) == "" {
		return "", fmt.Errorf("content_id required")
	}
	var id string
	if rec.ID == "" {
		err := s.DB.QueryRowContext(ctx, `
INSERT INTO media_sessions (content_id, script, audio_uri, voice, status)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			rec.ContentID, rec.Script, rec.AudioURI, rec.Voice, rec.Status).Scan(&id)
		return id, err
	}
	_, err := s.DB.ExecContext(ctx, `
UPDATE media_sessions SET script=$2, audio_uri=$3, voice=$4, status=$5, updated_at=NOW() WHERE id=$1`,
		rec.ID, rec.Script, rec.AudioURI, rec.Voice, rec.Status)
	return rec.ID, err
}

func (s *Store) GetMediaSession(ctx context.Context, id string) (MediaSessionRecord, bool, error) {
	var rec MediaSessionRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, content_id::text, script, audio_uri, voice, status, created_at, updated_at
FROM media_sessions WHERE id=$1`, id).
		Scan(&rec.ID, &rec.ContentID, &rec.Script, &rec.AudioURI, &rec.Voice, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return MediaSessionRecord{}, false, nil
	}
	if err != nil {
		return MediaSessionRecord{}, false, err
	}
	return rec, true, nil
}

// GenerationRunRecord tracks one end-to-end pipeline execution.
type GenerationRunRecord struct {
	ID         string
	EmployeeID string
	PlanID     sql.NullString
	Status     string
	Error      string
	Tokens     int64
	Cost       float64
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

func (s *Store) CreateGenerationRun(ctx context.Context, runID, employeeID string) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO generation_runs (id, employee_id, status) VALUES ($1,$2,'pending')`, runID, employeeID)
	return err
}

func (s *Store) SetGenerationRunStatus(ctx context.Context, runID, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE generation_runs SET status=$2 WHERE id=$1`, runID, status)
	return err
}

func (s *Store) FinishGenerationRun(ctx context.Context, runID, planID, status, errMsg string, tokens int64, cost float64) error {
	var plan interface{}
	if strings.TrimSpace(planID) != "" {
		plan = planID
	}
	_, err := s.DB.ExecContext(ctx, `
UPDATE generation_runs SET plan_id=$2, status=$3, error=$4, tokens=$5, cost=$6, finished_at=NOW() WHERE id=$1`,
		runID, plan, status, errMsg, tokens, cost)
	return err
}

func (s *Store) GetGenerationRun(ctx context.Context, runID string) (GenerationRunRecord, bool, error) {
	var rec GenerationRunRecord
	err := s.DB.QueryRowContext(ctx, `
SELECT id::text, employee_id::text, plan_id::text, status, error, tokens, cost, started_at, finished_at
FROM generation_runs WHERE id=$1`, runID).
		Scan(&rec.ID, &rec.EmployeeID, &rec.PlanID, &rec.Status, &rec.Error, &rec.Tokens, &rec.Cost, &rec.StartedAt, &rec.FinishedAt)
	if err == sql.ErrNoRows {
		return GenerationRunRecord{}, false, nil
	}
	if err != nil {
		return GenerationRunRecord{}, false, err
	}
	return rec, true, nil
}
