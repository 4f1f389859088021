package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/skillsmith/coursegen/internal/agent/telemetry"
)

// ErrMaxTurns is returned when an agent exhausts its turn budget without
// reaching a final answer. The partial result is still returned.
var ErrMaxTurns = errors.New("agent exceeded max turns")

// Tool is a local function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Agent bundles instructions, a model and a toolset.
type Agent struct {
	Name         string
	Instructions string
	Model        string
	Tools        []Tool
	MaxTurns     int
}

// ToolInvocation records one executed tool call.
type ToolInvocation struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
	Result    string `json:"result"`
	IsError   bool   `json:"is_error"`
}

// RunResult is the outcome of one agent run.
type RunResult struct {
	FinalOutput      string
	Turns            int
	Invocations      []ToolInvocation
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
}

// Runner drives the chat/tool-dispatch loop for an agent.
type Runner struct {
	provider         LLMProvider
	telemetry        *telemetry.Telemetry
	maxRepeatedCalls int
	logger           *log.Logger
}

// NewRunner builds a runner. telemetry may be nil.
func NewRunner(provider LLMProvider, tel *telemetry.Telemetry, maxRepeatedCalls int) *Runner {
	if maxRepeatedCalls <= 0 {
		maxRepeatedCalls = 2
	}
	return &Runner{
		provider:         provider,
		telemetry:        tel,
		maxRepeatedCalls: maxRepeatedCalls,
		logger:           log.New(log.Writer(), "[RUNNER] ", log.LstdFlags),
	}
}

// Run executes the agent loop until the model answers without tool calls or
// the turn budget runs out. Tool failures are surfaced to the model as error
// payloads rather than aborting the run.
func (r *Runner) Run(ctx context.Context, agent Agent, input string) (RunResult, error) {
	maxTurns := agent.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	byName := make(map[string]Tool, len(agent.Tools))
	defs := make([]ToolDefinition, 0, len(agent.Tools))
	for _, t := range agent.Tools {
		byName[t.Name] = t
		defs = append(defs, ToolDefinition{
			Type: "function",
			Function: FunctionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	messages := []ChatMessage{
		{Role: "system", Content: agent.Instructions},
		{Role: "user", Content: input},
	}

	var result RunResult
	seen := map[string]int{}

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		resp, err := r.provider.ChatWithTools(ctx, agent.Model, messages, defs)
		if err != nil {
			return result, fmt.Errorf("agent %s turn %d: %w", agent.Name, turn+1, err)
		}
		result.Turns = turn + 1
		result.PromptTokens += resp.PromptTokens
		result.CompletionTokens += resp.CompletionTokens
		result.Cost += r.provider.CalculateCost(agent.Model, resp.PromptTokens, resp.CompletionTokens)
		if r.telemetry != nil {
			r.telemetry.RecordLLMUsage(agent.Name, agent.Model, resp.PromptTokens, resp.CompletionTokens,
				r.provider.CalculateCost(agent.Model, resp.PromptTokens, resp.CompletionTokens))
		}

		if len(resp.ToolCalls) == 0 {
			result.FinalOutput = resp.Content
			return result, nil
		}

		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			output, isErr := r.executeToolCall(ctx, byName, call, seen)
			result.Invocations = append(result.Invocations, ToolInvocation{
				Tool:      call.Function.Name,
				Arguments: call.Function.Arguments,
				Result:    output,
				IsError:   isErr,
			})
			messages = append(messages, ChatMessage{
				Role:       "tool",
				Content:    output,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
			})
		}
	}

	result.FinalOutput = ""
	return result, fmt.Errorf("agent %s: %w", agent.Name, ErrMaxTurns)
}

func (r *Runner) executeToolCall(ctx context.Context, tools map[string]Tool, call ToolCall, seen map[string]int) (string, bool) {
	tool, ok := tools[call.Function.Name]
	if !ok {
		return toolError(fmt.Sprintf("unknown tool: %s", call.Function.Name)), true
	}

	var args map[string]interface{}
	raw := strings.TrimSpace(call.Function.Arguments)
	if raw == "" {
		raw = "{}"
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return toolError(fmt.Sprintf("arguments must be a JSON object: %v", err)), true
	}

	key := call.Function.Name + "|" + canonicalArgs(args)
	seen[key]++
	if seen[key] > r.maxRepeatedCalls {
		return toolError(fmt.Sprintf("tool %s already called with these arguments; vary the input or finish", call.Function.Name)), true
	}

	out, err := tool.Execute(ctx, args)
	if err != nil {
		r.logger.Printf("tool %s failed: %v", call.Function.Name, err)
		return toolError(err.Error()), true
	}
	return out, false
}

// canonicalArgs renders args deterministically so repeated identical calls
// can be detected (map marshaling sorts keys).
func canonicalArgs(args map[string]interface{}) string {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(b)
}

func toolError(msg string) string {
	b, _ := json.Marshal(map[string]interface{}{"success": false, "error": msg})
	return string(b)
}
