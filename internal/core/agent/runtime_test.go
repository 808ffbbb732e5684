package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// fakeProvider captures the prompt it received and answers with a canned
// completion.
type fakeProvider struct {
	messages   []llm.Message
	tools      []llm.ToolDef
	completion *llm.Completion
	err        error
}

func (f *fakeProvider) Complete(_ context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Completion, error) {
	f.messages = messages
	f.tools = tools
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeProvider) GetProviderName() string { return "fake" }

func userMsg(content string) models.Message {
	return models.Message{Role: models.RoleUser, MessageType: models.MessageText, Content: content}
}

func assistantMsg(content string) models.Message {
	return models.Message{Role: models.RoleAssistant, MessageType: models.MessageText, Content: content}
}

func TestAdvanceBuildsPromptFromHistory(t *testing.T) {
	provider := &fakeProvider{completion: &llm.Completion{Content: "Noted!"}}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 10)

	history := []models.Message{
		userMsg("halo"),
		assistantMsg("Hi! How can I help?"),
		userMsg("I need a mobile app"),
	}
	state := LeadState{Stage: models.StepBant, UserName: "Budi"}

	turn, err := runtime.Advance(context.Background(), history, state, nil)
	require.NoError(t, err)
	assert.Equal(t, "Noted!", turn.AssistantText)
	assert.Empty(t, turn.ToolInvocations)

	require.Len(t, provider.messages, 4)
	assert.Equal(t, llm.RoleSystem, provider.messages[0].Role)
	assert.Contains(t, provider.messages[0].Content, "Budi")
	assert.Equal(t, llm.RoleUser, provider.messages[1].Role)
	assert.Equal(t, "halo", provider.messages[1].Content)
	assert.Equal(t, llm.RoleAssistant, provider.messages[2].Role)
	assert.Equal(t, llm.RoleUser, provider.messages[3].Role)

	// BANT step exposes recording tools only.
	toolNames := make([]string, 0, len(provider.tools))
	for _, def := range provider.tools {
		toolNames = append(toolNames, def.Name)
	}
	assert.Contains(t, toolNames, ToolRecordBant)
	assert.NotContains(t, toolNames, ToolScheduleMeeting)
}

func TestAdvanceTrimsHistoryToWindow(t *testing.T) {
	provider := &fakeProvider{completion: &llm.Completion{Content: "ok"}}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 3)

	history := make([]models.Message, 0, 8)
	for i := 0; i < 8; i++ {
		history = append(history, userMsg(fmt.Sprintf("msg-%d", i)))
	}
	// System rows never count against the window.
	history = append(history, models.Message{Role: models.RoleSystem, Content: "agent disabled"})

	_, err := runtime.Advance(context.Background(), history, LeadState{Stage: models.StepConsent}, nil)
	require.NoError(t, err)

	// System preamble plus the 3 most recent non-system messages.
	require.Len(t, provider.messages, 4)
	assert.Equal(t, "msg-5", provider.messages[1].Content)
	assert.Equal(t, "msg-7", provider.messages[3].Content)
}

func TestAdvanceLabelsMediaMessages(t *testing.T) {
	provider := &fakeProvider{completion: &llm.Completion{Content: "ok"}}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 10)

	history := []models.Message{
		{Role: models.RoleUser, MessageType: "image", Content: ""},
	}
	_, err := runtime.Advance(context.Background(), history, LeadState{Stage: models.StepConsent}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[image message]", provider.messages[1].Content)
}

func TestAdvanceReturnsToolInvocations(t *testing.T) {
	args := json.RawMessage(`{"granted": true}`)
	provider := &fakeProvider{completion: &llm.Completion{
		Content:   "Thanks for agreeing!",
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: ToolRecordConsent, Arguments: args}},
	}}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 10)

	turn, err := runtime.Advance(context.Background(),
		[]models.Message{userMsg("yes, go ahead")},
		LeadState{Stage: models.StepConsent}, nil)
	require.NoError(t, err)

	require.Len(t, turn.ToolInvocations, 1)
	assert.Equal(t, "call_1", turn.ToolInvocations[0].ID)
	assert.Equal(t, ToolRecordConsent, turn.ToolInvocations[0].Name)
	assert.JSONEq(t, string(args), string(turn.ToolInvocations[0].Arguments))
}

func TestAdvanceReplaysExchanges(t *testing.T) {
	provider := &fakeProvider{completion: &llm.Completion{Content: "Here are the slots"}}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 10)

	exchanges := []Exchange{{
		Turn: Turn{
			AssistantText: "",
			ToolInvocations: []ToolInvocation{{
				ID:        "call_slots",
				Name:      ToolGetAvailableSlots,
				Arguments: json.RawMessage(`{"date": "2026-09-07"}`),
			}},
		},
		Results: []ToolResult{{
			InvocationID: "call_slots",
			Name:         ToolGetAvailableSlots,
			Content:      `{"slots": ["09:00", "10:00"]}`,
		}},
	}}

	_, err := runtime.Advance(context.Background(),
		[]models.Message{userMsg("when can we meet?")},
		LeadState{Stage: models.StepMeeting}, exchanges)
	require.NoError(t, err)

	// system, user, assistant-with-tool-call, tool result.
	require.Len(t, provider.messages, 4)

	assistant := provider.messages[2]
	assert.Equal(t, llm.RoleAssistant, assistant.Role)
	require.Len(t, assistant.ToolCalls, 1)
	assert.Equal(t, "call_slots", assistant.ToolCalls[0].ID)

	result := provider.messages[3]
	assert.Equal(t, llm.RoleTool, result.Role)
	assert.Equal(t, "call_slots", result.ToolCallID)
	assert.Contains(t, result.Content, "09:00")
}

func TestAdvancePropagatesProviderError(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("model unavailable")}
	runtime := NewRuntime(llm.NewServiceWithProvider(provider), 10)

	_, err := runtime.Advance(context.Background(),
		[]models.Message{userMsg("halo")},
		LeadState{Stage: models.StepStart}, nil)
	assert.Error(t, err)
}
