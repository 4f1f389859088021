package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/skillsmith/coursegen/internal/helpers"
	"github.com/skillsmith/coursegen/internal/store"
	"github.com/skillsmith/coursegen/internal/taxonomy"
	"github.com/skillsmith/coursegen/tools/web_fetch"
	"github.com/skillsmith/coursegen/tools/web_search"
	searchmodels "github.com/skillsmith/coursegen/tools/web_search/models"
)

// Toolset wires storage, taxonomy search and the web tools into callable
// agent tools. One Toolset is shared across a run's agents.
type Toolset struct {
	Store      *store.Store
	Taxonomy   *taxonomy.Index
	Searchers  []web_search.WebSearcher
	Fetcher    web_fetch.WebFetcher
	MaxResults int
}

// Capture receives the ID of the record an agent persisted through its save
// tool, so the orchestrator can hand it to the next phase without parsing
// model output.
type Capture struct {
	mu sync.Mutex
	id string
}

func (c *Capture) set(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

// ID returns the captured record ID, empty if the save tool never ran.
func (c *Capture) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func arrayProp(desc string, items map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"type": "array", "description": desc, "items": items}
}

// PlannerTools exposes employee lookup, taxonomy search and plan persistence.
func (ts *Toolset) PlannerTools(employeeID string, saved *Capture) []Tool {
	return []Tool{
		{
			Name:        "get_employee",
			Description: "Fetch the employee profile the course is being planned for.",
			Parameters:  objectSchema(nil, map[string]interface{}{}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				rec, ok, err := ts.Store.GetEmployee(ctx, employeeID)
				if err != nil {
					return "", fmt.Errorf("get employee: %w", err)
				}
				if !ok {
					return "", fmt.Errorf("employee %s not found", employeeID)
				}
				return toJSON(map[string]interface{}{
					"id": rec.ID, "name": rec.Name, "role": rec.Role,
					"department": rec.Department, "profile": json.RawMessage(rec.Profile),
				})
			},
		},
		{
			Name:        "search_skills",
			Description: "Search the skills taxonomy for skills matching a query.",
			Parameters: objectSchema([]string{"query"}, map[string]interface{}{
				"query": prop("string", "Free-text skill query, e.g. 'data visualization'."),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				query, err := argString(args, "query")
				if err != nil {
					return "", err
				}
				hits, err := ts.Taxonomy.Search(query, 10)
				if err != nil {
					return "", err
				}
				return toJSON(map[string]interface{}{"skills": hits})
			},
		},
		{
			Name:        "save_course_plan",
			Description: "Persist the finished course plan. Call exactly once when the plan is complete.",
			Parameters: objectSchema([]string{"title", "modules"}, map[string]interface{}{
				"title":   prop("string", "Course title."),
				"summary": prop("string", "One-paragraph course summary."),
				"modules": arrayProp("Ordered course modules.", objectSchema([]string{"number", "title"}, map[string]interface{}{
					"number":            prop("integer", "1-based module position."),
					"title":             prop("string", "Module title."),
					"objectives":        arrayProp("Learning objectives.", prop("string", "")),
					"target_skills":     arrayProp("Skills this module develops.", prop("string", "")),
					"difficulty":        prop("string", "beginner, intermediate or advanced."),
					"estimated_minutes": prop("integer", "Estimated completion time."),
					"research_queries":  arrayProp("Web queries for researching this module.", prop("string", "")),
				})),
				"skill_gaps": arrayProp("Gap analysis behind the plan.", objectSchema([]string{"skill"}, map[string]interface{}{
					"skill":         prop("string", "Skill name."),
					"current_level": prop("string", "Employee's current level."),
					"target_level":  prop("string", "Level the course targets."),
					"priority":      prop("integer", "1 is highest."),
				})),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				title, err := argString(args, "title")
				if err != nil {
					return "", err
				}
				var modules []CourseModule
				if err := decodeArg(args, "modules", &modules); err != nil {
					return "", err
				}
				if len(modules) == 0 {
					return "", fmt.Errorf("at least one module required")
				}
				var gaps []SkillGap
				_ = decodeArg(args, "skill_gaps", &gaps)

				planJSON, _ := json.Marshal(modules)
				gapsJSON, _ := json.Marshal(gaps)
				summary, _ := args["summary"].(string)
				id, err := ts.Store.SaveCoursePlan(ctx, store.CoursePlanRecord{
					EmployeeID: employeeID,
					Title:      title,
					Summary:    summary,
					Status:     "draft",
					Plan:       planJSON,
					SkillGaps:  gapsJSON,
				})
				if err != nil {
					return "", fmt.Errorf("save course plan: %w", err)
				}
				saved.set(id)
				return toJSON(map[string]interface{}{"success": true, "plan_id": id, "modules": len(modules)})
			},
		},
	}
}

// ResearchTools exposes web search/fetch and research persistence for one
// module of a plan.
func (ts *Toolset) ResearchTools(planID string, moduleNumber int, saved *Capture) []Tool {
	return []Tool{
		{
			Name:        "web_search",
			Description: "Search the web. Results from all configured providers are merged and de-duplicated.",
			Parameters: objectSchema([]string{"query"}, map[string]interface{}{
				"query": prop("string", "Search query."),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				query, err := argString(args, "query")
				if err != nil {
					return "", err
				}
				results := ts.searchAll(ctx, query)
				if len(results) == 0 {
					return "", fmt.Errorf("no results for %q", query)
				}
				return toJSON(map[string]interface{}{"results": results})
			},
		},
		{
			Name:        "fetch_page",
			Description: "Fetch a web page and return its readable text content.",
			Parameters: objectSchema([]string{"url"}, map[string]interface{}{
				"url": prop("string", "Absolute URL to fetch."),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				rawURL, err := argString(args, "url")
				if err != nil {
					return "", err
				}
				res, err := ts.Fetcher.Exec(ctx, rawURL)
				if err != nil {
					return "", fmt.Errorf("fetch %s: %w", rawURL, err)
				}
				if res.Text == "" {
					return "", fmt.Errorf("no readable content at %s (status %d)", rawURL, res.Status)
				}
				return toJSON(map[string]interface{}{
					"url": res.URL, "title": res.Title, "text": res.Text,
				})
			},
		},
		{
			Name:        "save_research",
			Description: "Persist research findings for this module. Call exactly once when research is complete.",
			Parameters: objectSchema([]string{"queries", "findings"}, map[string]interface{}{
				"queries": arrayProp("Queries that were executed.", prop("string", "")),
				"findings": arrayProp("Synthesized findings.", objectSchema([]string{"topic", "summary"}, map[string]interface{}{
					"topic":   prop("string", "What the finding covers."),
					"summary": prop("string", "The insight, in a few sentences."),
					"sources": arrayProp("Backing sources.", objectSchema([]string{"url"}, map[string]interface{}{
						"url":         prop("string", "Source URL."),
						"title":       prop("string", "Source title."),
						"credibility": prop("number", "0-1 credibility estimate."),
					})),
				})),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				var queries []string
				if err := decodeArg(args, "queries", &queries); err != nil {
					return "", err
				}
				var findings []ResearchFinding
				if err := decodeArg(args, "findings", &findings); err != nil {
					return "", err
				}
				if len(findings) == 0 {
					return "", fmt.Errorf("at least one finding required")
				}
				queriesJSON, _ := json.Marshal(queries)
				findingsJSON, _ := json.Marshal(findings)
				id, err := ts.Store.SaveResearchSession(ctx, store.ResearchSessionRecord{
					PlanID:       planID,
					ModuleNumber: moduleNumber,
					Queries:      queriesJSON,
					Findings:     findingsJSON,
					Status:       "completed",
				})
				if err != nil {
					return "", fmt.Errorf("save research: %w", err)
				}
				saved.set(id)
				return toJSON(map[string]interface{}{"success": true, "session_id": id, "findings": len(findings)})
			},
		},
	}
}

// ContentTools exposes research retrieval and content persistence for one
// module of a plan.
func (ts *Toolset) ContentTools(planID string, moduleNumber int, saved *Capture) []Tool {
	return []Tool{
		{
			Name:        "get_research",
			Description: "Fetch the stored research findings for this module.",
			Parameters:  objectSchema(nil, map[string]interface{}{}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				rec, ok, err := ts.Store.GetResearchSession(ctx, planID, moduleNumber)
				if err != nil {
					return "", fmt.Errorf("get research: %w", err)
				}
				if !ok {
					return "", fmt.Errorf("no research recorded for module %d", moduleNumber)
				}
				return toJSON(map[string]interface{}{
					"queries":  json.RawMessage(rec.Queries),
					"findings": json.RawMessage(rec.Findings),
				})
			},
		},
		{
			Name:        "save_module_content",
			Description: "Persist the finished module content. Call exactly once when writing is complete.",
			Parameters: objectSchema([]string{"title", "sections"}, map[string]interface{}{
				"title": prop("string", "Module title."),
				"sections": arrayProp("Content sections in reading order.", objectSchema([]string{"heading", "body"}, map[string]interface{}{
					"heading":   prop("string", "Section heading."),
					"body":      prop("string", "Markdown body text."),
					"examples":  arrayProp("Worked examples.", prop("string", "")),
					"exercises": arrayProp("Practice exercises.", prop("string", "")),
				})),
			}),
			Execute: func(ctx context.Context, args map[string]interface{}) (string, error) {
				title, err := argString(args, "title")
				if err != nil {
					return "", err
				}
				var sections []ContentSection
				if err := decodeArg(args, "sections", &sections); err != nil {
					return "", err
				}
				if len(sections) == 0 {
					return "", fmt.Errorf("at least one section required")
				}
				words := 0
				for _, sec := range sections {
					words += len(strings.Fields(sec.Body))
				}
				sectionsJSON, _ := json.Marshal(sections)
				id, err := ts.Store.SaveModuleContent(ctx, store.ModuleContentRecord{
					PlanID:       planID,
					ModuleNumber: moduleNumber,
					Title:        title,
					Sections:     sectionsJSON,
					WordCount:    words,
					Status:       "draft",
				})
				if err != nil {
					return "", fmt.Errorf("save module content: %w", err)
				}
				saved.set(id)
				return toJSON(map[string]interface{}{"success": true, "content_id": id, "word_count": words})
			},
		},
	}
}

// searchAll fans a query out to every configured searcher and merges the
// results, de-duplicating by canonical URL.
func (ts *Toolset) searchAll(ctx context.Context, query string) []searchmodels.Result {
	k := ts.MaxResults
	if k <= 0 {
		k = 8
	}
	seen := map[string]struct{}{}
	var merged []searchmodels.Result
	for _, searcher := range ts.Searchers {
		results, err := searcher.Discover(ctx, query, k, nil, 0)
		if err != nil {
			continue
		}
		for _, r := range results {
			fp, err := helpers.URLFingerprint(r.URL)
			if err != nil {
				continue
			}
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			merged = append(merged, r)
			if len(merged) >= k {
				return merged
			}
		}
	}
	return merged
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("argument %q required", key)
	}
	return v, nil
}

// decodeArg round-trips a generic argument value into a typed struct.
func decodeArg(args map[string]interface{}, key string, out interface{}) error {
	v, ok := args[key]
	if !ok {
		return fmt.Errorf("argument %q required", key)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("argument %q: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("argument %q: %w", key, err)
	}
	return nil
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
