package server

import (
	"net/http"
	"regexp"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"

	"github.com/skillsmith/coursegen/internal/taxonomy"
)

func newTestTaxonomyHandler(t *testing.T) (*TaxonomyHandler, sqlmock.Sqlmock) {
	t.Helper()
	st, mock := newMockStore(t)
	idx, err := taxonomy.NewInMemory()
	if err != nil {
		t.Fatalf("taxonomy.NewInMemory: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return &TaxonomyHandler{Store: st, Index: idx}, mock
}

func TestUpsertSkillWritesThroughToIndex(t *testing.T) {
	handler, mock := newTestTaxonomyHandler(t)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO skills_taxonomy")).
		WithArgs("Kubernetes", "infrastructure", "Container orchestration.", pq.Array([]string{"beginner", "advanced"})).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("skill-9"))

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/skills",
		`{"name":"Kubernetes","category":"infrastructure","description":"Container orchestration.","proficiency_levels":["beginner","advanced"]}`)
	if err := handler.upsert(e.NewContext(req, rec)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	// the new skill must be findable immediately
	req2, rec2 := jsonRequest(http.MethodGet, "/api/skills/search?q=orchestration", "")
	if err := handler.search(e.NewContext(req2, rec2)); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(rec2.Body.String(), "skill-9") {
		t.Fatalf("expected indexed skill in results: %s", rec2.Body.String())
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	handler, _ := newTestTaxonomyHandler(t)

	e := echo.New()
	req, rec := jsonRequest(http.MethodGet, "/api/skills/search", "")
	err := handler.search(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
}

func TestUpsertSkillRequiresName(t *testing.T) {
	handler, _ := newTestTaxonomyHandler(t)

	e := echo.New()
	req, rec := jsonRequest(http.MethodPost, "/api/skills", `{"category":"misc"}`)
	err := handler.upsert(e.NewContext(req, rec))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %#v", err)
	}
}
