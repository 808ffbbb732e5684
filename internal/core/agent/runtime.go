package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// ToolInvocation is one structured side-effect request from the model.
type ToolInvocation struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Turn is the immutable result of advancing a conversation once. The
// runtime itself never touches persistent state; the orchestrator applies
// the invocations.
type Turn struct {
	AssistantText   string           `json:"assistant_text"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
}

// ToolResult is the outcome of one applied invocation, fed back to the
// model on the next round of the same turn.
type ToolResult struct {
	InvocationID string `json:"invocation_id"`
	Name         string `json:"name"`
	Content      string `json:"content"`
	IsError      bool   `json:"is_error,omitempty"`
}

// Exchange pairs a produced turn with the results of its invocations.
type Exchange struct {
	Turn    Turn
	Results []ToolResult
}

// Runtime wraps the LLM behind the single Advance operation.
type Runtime struct {
	llm    *llm.Service
	window int
}

// NewRuntime creates the agent runtime. window caps the number of
// non-system history messages per prompt.
func NewRuntime(service *llm.Service, window int) *Runtime {
	if window <= 0 {
		window = 10
	}
	return &Runtime{llm: service, window: window}
}

// Advance produces the next turn from the trailing history and the lead
// snapshot. history must be in chronological order; only the most recent
// `window` non-system entries are sent, plus the single system preamble.
// exchanges carries earlier rounds of the same turn (tool calls plus their
// results) so the model can compose its final answer from tool output.
func (r *Runtime) Advance(ctx context.Context, history []models.Message, state LeadState, exchanges []Exchange) (*Turn, error) {
	messages := make([]llm.Message, 0, r.window+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: BuildSystemPrompt(state),
	})

	trimmed := trimHistory(history, r.window)
	for _, m := range trimmed {
		role := llm.RoleUser
		if m.Role == models.RoleAssistant {
			role = llm.RoleAssistant
		}
		content := m.Content
		if m.MessageType != models.MessageText && content == "" {
			content = fmt.Sprintf("[%s message]", m.MessageType)
		}
		messages = append(messages, llm.Message{Role: role, Content: content})
	}

	for _, ex := range exchanges {
		assistant := llm.Message{Role: llm.RoleAssistant, Content: ex.Turn.AssistantText}
		for _, inv := range ex.Turn.ToolInvocations {
			assistant.ToolCalls = append(assistant.ToolCalls, llm.ToolCall{
				ID:        inv.ID,
				Name:      inv.Name,
				Arguments: inv.Arguments,
			})
		}
		messages = append(messages, assistant)
		for _, res := range ex.Results {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				ToolCallID: res.InvocationID,
				Content:    res.Content,
			})
		}
	}

	completion, err := r.llm.Complete(ctx, messages, ToolsForStage(state.Stage))
	if err != nil {
		return nil, fmt.Errorf("agent advance failed: %w", err)
	}

	turn := &Turn{AssistantText: completion.Content}
	for _, tc := range completion.ToolCalls {
		turn.ToolInvocations = append(turn.ToolInvocations, ToolInvocation{
			ID:        tc.ID,
			Name:      tc.Name,
			Arguments: tc.Arguments,
		})
	}
	return turn, nil
}

// trimHistory keeps the most recent `window` non-system messages.
func trimHistory(history []models.Message, window int) []models.Message {
	nonSystem := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleSystem {
			continue
		}
		nonSystem = append(nonSystem, m)
	}
	if len(nonSystem) > window {
		nonSystem = nonSystem[len(nonSystem)-window:]
	}
	return nonSystem
}
