package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

const qualitySystemPrompt = `You are a strict reviewer of corporate training content. Score the module
below on five criteria, each 0-10:

- accuracy: claims are correct and consistent with mainstream practice
- clarity: an adult professional can follow it without outside help
- relevance: content serves the stated objectives and target skills
- completeness: objectives are fully covered, no obvious gaps
- engagement: examples and exercises make it practical, not a wall of text

Respond ONLY with valid JSON:
{
  "accuracy": 0.0,
  "clarity": 0.0,
  "relevance": 0.0,
  "completeness": 0.0,
  "engagement": 0.0,
  "feedback": "2-4 sentences: the most important problems to fix, or what makes it good"
}
Do not include any other text or explanation.`

// QualityAgent scores module content against the rubric. It uses a plain
// completion rather than the tool loop.
type QualityAgent struct {
	provider  LLMProvider
	model     string
	threshold float64
	logger    *log.Logger
}

func NewQualityAgent(provider LLMProvider, model string, threshold float64) *QualityAgent {
	return &QualityAgent{
		provider:  provider,
		model:     model,
		threshold: threshold,
		logger:    log.New(log.Writer(), "[QUALITY] ", log.LstdFlags),
	}
}

// Assess scores one module's content. Token usage is returned for run
// accounting.
func (a *QualityAgent) Assess(ctx context.Context, module CourseModule, content ModuleContent) (QualityAssessment, int64, int64, error) {
	var body strings.Builder
	fmt.Fprintf(&body, "Module: %s\n", content.Title)
	if len(module.Objectives) > 0 {
		fmt.Fprintf(&body, "Objectives:\n- %s\n", strings.Join(module.Objectives, "\n- "))
	}
	if len(module.TargetSkills) > 0 {
		fmt.Fprintf(&body, "Target skills: %s\n", strings.Join(module.TargetSkills, ", "))
	}
	body.WriteString("\nContent:\n")
	for _, sec := range content.Sections {
		fmt.Fprintf(&body, "## %s\n%s\n", sec.Heading, sec.Body)
		for _, ex := range sec.Examples {
			fmt.Fprintf(&body, "Example: %s\n", ex)
		}
		for _, ex := range sec.Exercises {
			fmt.Fprintf(&body, "Exercise: %s\n", ex)
		}
	}

	raw, promptTokens, completionTokens, err := a.provider.GenerateWithTokens(ctx, qualitySystemPrompt, body.String(), a.model)
	if err != nil {
		return QualityAssessment{}, promptTokens, completionTokens, fmt.Errorf("assess module %d: %w", content.ModuleNumber, err)
	}

	jsonStr, err := ExtractFirstJSON(raw)
	if err != nil {
		return QualityAssessment{}, promptTokens, completionTokens, fmt.Errorf("assess module %d: %w", content.ModuleNumber, err)
	}

	var parsed struct {
		QualityScores
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return QualityAssessment{}, promptTokens, completionTokens, fmt.Errorf("assess module %d: parse scores: %w", content.ModuleNumber, err)
	}

	overall := parsed.QualityScores.Overall()
	assessment := QualityAssessment{
		ContentID:  content.ID,
		Scores:     parsed.QualityScores,
		Overall:    overall,
		Passed:     overall >= a.threshold,
		Feedback:   parsed.Feedback,
		AssessedAt: time.Now(),
	}
	a.logger.Printf("content %s scored %.2f (pass=%v)", content.ID, overall, assessment.Passed)
	return assessment, promptTokens, completionTokens, nil
}

// Threshold reports the configured pass threshold.
func (a *QualityAgent) Threshold() float64 { return a.threshold }
