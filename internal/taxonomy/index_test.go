package taxonomy

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/skillsmith/coursegen/internal/store"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := NewInMemory()
	if err != nil {
		t.Fatalf("NewInMemory: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestIndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)

	skills := []store.SkillRecord{
		{ID: "s1", Name: "SQL", Category: "data", Description: "Relational queries and joins."},
		{ID: "s2", Name: "Data Visualization", Category: "analytics", Description: "Charts and dashboards."},
		{ID: "s3", Name: "Public Speaking", Category: "communication", Description: "Presentations to groups."},
	}
	for _, s := range skills {
		if err := idx.IndexSkill(s); err != nil {
			t.Fatalf("IndexSkill %s: %v", s.ID, err)
		}
	}

	hits, err := idx.Search("dashboards", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "s2" {
		t.Fatalf("expected s2 first, got %+v", hits)
	}
	if hits[0].Name != "Data Visualization" || hits[0].Category != "analytics" {
		t.Fatalf("stored fields missing: %+v", hits[0])
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	idx := newTestIndex(t)
	if _, err := idx.Search("   ", 5); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestLoadFromStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM skills_taxonomy ORDER BY category, name")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category", "description", "proficiency_levels", "created_at"}).
			AddRow("s1", "SQL", "data", "Relational queries.", pq.StringArray{"beginner", "advanced"}, time.Now()).
			AddRow("s2", "Go", "engineering", "Backend services.", pq.StringArray{}, time.Now()))

	idx := newTestIndex(t)
	n, err := idx.Load(context.Background(), &store.Store{DB: db})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 indexed skills, got %d", n)
	}

	hits, err := idx.Search("backend", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "s2" {
		t.Fatalf("expected s2, got %+v", hits)
	}
}
