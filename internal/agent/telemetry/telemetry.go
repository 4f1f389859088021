package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursegen_llm_requests_total",
		Help: "LLM requests by agent and model.",
	}, []string{"agent", "model"})
	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursegen_llm_tokens_total",
		Help: "LLM tokens by agent and direction.",
	}, []string{"agent", "direction"})
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coursegen_runs_total",
		Help: "Generation runs by final status.",
	}, []string{"status"})
)

// AgentUsage aggregates usage for one agent.
type AgentUsage struct {
	Requests         int64
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Telemetry tracks LLM usage and run outcomes in memory and exports
// prometheus counters.
type Telemetry struct {
	mu      sync.RWMutex
	byAgent map[string]*AgentUsage
	started time.Time
	logger  *log.Logger
}

func New() *Telemetry {
	return &Telemetry{
		byAgent: map[string]*AgentUsage{},
		started: time.Now(),
		logger:  log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
	}
}

// RecordLLMUsage tracks one chat-completions round.
func (t *Telemetry) RecordLLMUsage(agent, model string, promptTokens, completionTokens int64, cost float64) {
	t.mu.Lock()
	u, ok := t.byAgent[agent]
	if !ok {
		u = &AgentUsage{}
		t.byAgent[agent] = u
	}
	u.Requests++
	u.PromptTokens += promptTokens
	u.CompletionTokens += completionTokens
	u.Cost += cost
	t.mu.Unlock()

	llmRequests.WithLabelValues(agent, model).Inc()
	llmTokens.WithLabelValues(agent, "prompt").Add(float64(promptTokens))
	llmTokens.WithLabelValues(agent, "completion").Add(float64(completionTokens))
}

// RecordRun tracks a finished generation run.
func (t *Telemetry) RecordRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// TotalCost returns the accumulated dollar cost across agents.
func (t *Telemetry) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var total float64
	for _, u := range t.byAgent {
		total += u.Cost
	}
	return total
}

// Usage returns a copy of the per-agent usage table.
func (t *Telemetry) Usage() map[string]AgentUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]AgentUsage, len(t.byAgent))
	for name, u := range t.byAgent {
		out[name] = *u
	}
	return out
}

// LogSummary prints accumulated usage, typically at shutdown.
func (t *Telemetry) LogSummary() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for name, u := range t.byAgent {
		t.logger.Printf("agent=%s requests=%d prompt_tokens=%d completion_tokens=%d cost=$%.4f",
			name, u.Requests, u.PromptTokens, u.CompletionTokens, u.Cost)
	}
	t.logger.Printf("uptime=%s total_cost=$%.4f", time.Since(t.started).Round(time.Second), t.TotalCost())
}
