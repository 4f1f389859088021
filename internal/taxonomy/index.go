package taxonomy

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/skillsmith/coursegen/internal/store"
)

// Index is a full-text view over the skills taxonomy. It is rebuilt from
// Postgres at startup and kept in memory.
type Index struct {
	idx    bleve.Index
	logger *log.Logger
}

type skillDoc struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Hit is one taxonomy search result.
type Hit struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Score    float64 `json:"score"`
}

func NewInMemory() (*Index, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create taxonomy index: %w", err)
	}
	return &Index{
		idx:    idx,
		logger: log.New(log.Writer(), "[TAXONOMY] ", log.LstdFlags),
	}, nil
}

// Load reindexes every skill row. Returns the number of indexed skills.
func (i *Index) Load(ctx context.Context, s *store.Store) (int, error) {
	skills, err := s.ListSkills(ctx)
	if err != nil {
		return 0, fmt.Errorf("list skills: %w", err)
	}
	for _, skill := range skills {
		if err := i.IndexSkill(skill); err != nil {
			return 0, err
		}
	}
	i.logger.Printf("indexed %d skills", len(skills))
	return len(skills), nil
}

func (i *Index) IndexSkill(rec store.SkillRecord) error {
	return i.idx.Index(rec.ID, skillDoc{
		Name:        rec.Name,
		Category:    rec.Category,
		Description: rec.Description,
	})
}

// Search matches skills by name, category and description.
func (i *Index) Search(query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query required")
	}
	if limit <= 0 {
		limit = 10
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"name", "category"}
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("taxonomy search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["name"].(string); ok {
			hit.Name = v
		}
		if v, ok := h.Fields["category"].(string); ok {
			hit.Category = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (i *Index) Close() error { return i.idx.Close() }
