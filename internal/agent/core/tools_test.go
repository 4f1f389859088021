package core

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/skillsmith/coursegen/internal/store"
	"github.com/skillsmith/coursegen/internal/taxonomy"
	fetchmodels "github.com/skillsmith/coursegen/tools/web_fetch/models"
	searchmodels "github.com/skillsmith/coursegen/tools/web_search/models"
)

type stubSearcher struct {
	results []searchmodels.Result
	err     error
}

func (s stubSearcher) Discover(ctx context.Context, q string, k int, sites []string, recency int) ([]searchmodels.Result, error) {
	return s.results, s.err
}

type stubFetcher struct {
	result fetchmodels.Result
	err    error
}

func (s stubFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	return s.result, s.err
}

func findTool(t *testing.T, tools []Tool, name string) Tool {
	t.Helper()
	for _, tool := range tools {
		if tool.Name == name {
			return tool
		}
	}
	t.Fatalf("tool %s not found", name)
	return Tool{}
}

func newTestToolset(t *testing.T) (*Toolset, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	idx, err := taxonomy.NewInMemory()
	if err != nil {
		t.Fatalf("taxonomy.NewInMemory: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	return &Toolset{
		Store:      &store.Store{DB: db},
		Taxonomy:   idx,
		MaxResults: 8,
	}, mock
}

func TestSaveCoursePlanToolCapturesID(t *testing.T) {
	ts, mock := newTestToolset(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO course_plans")).
		WithArgs("emp-1", "SQL for Analysts", "A short course.", "draft", sqlmock.AnyArg(), sqlmock.AnyArg(), "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("plan-1"))

	var saved Capture
	tool := findTool(t, ts.PlannerTools("emp-1", &saved), "save_course_plan")

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"title":   "SQL for Analysts",
		"summary": "A short course.",
		"modules": []interface{}{
			map[string]interface{}{
				"number":           float64(1),
				"title":            "SQL Basics",
				"objectives":       []interface{}{"write a SELECT"},
				"target_skills":    []interface{}{"sql"},
				"difficulty":       "beginner",
				"research_queries": []interface{}{"sql select tutorial"},
			},
		},
		"skill_gaps": []interface{}{
			map[string]interface{}{"skill": "sql", "current_level": "none", "target_level": "intermediate", "priority": float64(1)},
		},
	})
	if err != nil {
		t.Fatalf("save_course_plan: %v", err)
	}
	if saved.ID() != "plan-1" {
		t.Fatalf("expected captured plan id, got %q", saved.ID())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if resp["plan_id"] != "plan-1" || resp["success"] != true {
		t.Fatalf("unexpected output: %s", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveCoursePlanToolRequiresModules(t *testing.T) {
	ts, _ := newTestToolset(t)
	var saved Capture
	tool := findTool(t, ts.PlannerTools("emp-1", &saved), "save_course_plan")

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"title":   "Empty",
		"modules": []interface{}{},
	})
	if err == nil || !strings.Contains(err.Error(), "at least one module") {
		t.Fatalf("expected module validation error, got %v", err)
	}
	if saved.ID() != "" {
		t.Fatalf("capture must stay empty on failure")
	}
}

func TestSearchSkillsTool(t *testing.T) {
	ts, _ := newTestToolset(t)
	if err := ts.Taxonomy.IndexSkill(store.SkillRecord{
		ID: "skill-1", Name: "Data Visualization", Category: "analytics",
		Description: "Charts, dashboards and visual storytelling.",
	}); err != nil {
		t.Fatalf("IndexSkill: %v", err)
	}

	var saved Capture
	tool := findTool(t, ts.PlannerTools("emp-1", &saved), "search_skills")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "visualization"})
	if err != nil {
		t.Fatalf("search_skills: %v", err)
	}
	var resp struct {
		Skills []taxonomy.Hit `json:"skills"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(resp.Skills) != 1 || resp.Skills[0].ID != "skill-1" {
		t.Fatalf("unexpected hits: %+v", resp.Skills)
	}
}

func TestWebSearchToolMergesAndDeduplicates(t *testing.T) {
	ts, _ := newTestToolset(t)
	ts.Searchers = append(ts.Searchers,
		stubSearcher{results: []searchmodels.Result{
			{Title: "A", URL: "https://example.com/a", Snippet: "first"},
			{Title: "B", URL: "https://example.com/b", Snippet: "second"},
		}},
		stubSearcher{results: []searchmodels.Result{
			// same page, tracking params stripped by the fingerprint
			{Title: "A again", URL: "https://example.com/a?utm_source=x", Snippet: "dup"},
			{Title: "C", URL: "https://example.com/c", Snippet: "third"},
		}},
	)

	var saved Capture
	tool := findTool(t, ts.ResearchTools("plan-1", 1, &saved), "web_search")

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "go testing"})
	if err != nil {
		t.Fatalf("web_search: %v", err)
	}
	var resp struct {
		Results []searchmodels.Result `json:"results"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 de-duplicated results, got %d: %+v", len(resp.Results), resp.Results)
	}
}

func TestFetchPageToolRejectsEmptyText(t *testing.T) {
	ts, _ := newTestToolset(t)
	ts.Fetcher = stubFetcher{result: fetchmodels.Result{URL: "https://example.com", Status: 200}}

	var saved Capture
	tool := findTool(t, ts.ResearchTools("plan-1", 1, &saved), "fetch_page")

	_, err := tool.Execute(context.Background(), map[string]interface{}{"url": "https://example.com"})
	if err == nil || !strings.Contains(err.Error(), "no readable content") {
		t.Fatalf("expected empty-content error, got %v", err)
	}
}

func TestSaveResearchTool(t *testing.T) {
	ts, mock := newTestToolset(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO research_sessions")).
		WithArgs("plan-1", 2, sqlmock.AnyArg(), sqlmock.AnyArg(), "completed").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))

	var saved Capture
	tool := findTool(t, ts.ResearchTools("plan-1", 2, &saved), "save_research")

	_, err := tool.Execute(context.Background(), map[string]interface{}{
		"queries": []interface{}{"sql joins explained"},
		"findings": []interface{}{
			map[string]interface{}{
				"topic":   "joins",
				"summary": "INNER JOIN keeps matching rows only.",
				"sources": []interface{}{map[string]interface{}{"url": "https://example.com/joins", "credibility": 0.8}},
			},
		},
	})
	if err != nil {
		t.Fatalf("save_research: %v", err)
	}
	if saved.ID() != "sess-1" {
		t.Fatalf("expected captured session id, got %q", saved.ID())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestContentToolsRoundTrip(t *testing.T) {
	ts, mock := newTestToolset(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM research_sessions WHERE plan_id=$1 AND module_number=$2")).
		WithArgs("plan-1", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "plan_id", "module_number", "queries", "findings", "status", "created_at"}).
			AddRow("sess-1", "plan-1", 1, []byte(`["q1"]`), []byte(`[{"topic":"joins","summary":"s"}]`), "completed", time.Now()))

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO module_content")).
		WithArgs("plan-1", 1, "SQL Joins", sqlmock.AnyArg(), 5, "draft").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("content-1"))

	var saved Capture
	tools := ts.ContentTools("plan-1", 1, &saved)

	out, err := findTool(t, tools, "get_research").Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Fatalf("get_research: %v", err)
	}
	if !strings.Contains(out, "joins") {
		t.Fatalf("research payload missing findings: %s", out)
	}

	_, err = findTool(t, tools, "save_module_content").Execute(context.Background(), map[string]interface{}{
		"title": "SQL Joins",
		"sections": []interface{}{
			map[string]interface{}{
				"heading":   "Inner joins",
				"body":      "one two three four five",
				"examples":  []interface{}{"SELECT * FROM a JOIN b"},
				"exercises": []interface{}{"join two tables"},
			},
		},
	})
	if err != nil {
		t.Fatalf("save_module_content: %v", err)
	}
	if saved.ID() != "content-1" {
		t.Fatalf("expected captured content id, got %q", saved.ID())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
