package agent

import (
	"encoding/json"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/core/llm"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// Tool names the model may invoke. The runtime never executes them; the
// orchestrator applies each invocation against the store and the calendar.
const (
	ToolRecordConsent      = "record_consent"
	ToolRecordPersonalData = "record_personal_data"
	ToolRecordBant         = "record_bant"
	ToolRecordRequirements = "record_requirements"
	ToolGetAvailableSlots  = "get_available_slots"
	ToolScheduleMeeting    = "schedule_meeting"
	ToolCancelMeeting      = "cancel_meeting"
	ToolEndConversation    = "end_conversation"
)

// Typed argument payloads, decoded by the orchestrator.

type ConsentArgs struct {
	Consent bool `json:"consent"`
}

type PersonalDataArgs struct {
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Company  string `json:"company,omitempty"`
}

type BantArgs struct {
	Budget    string `json:"budget,omitempty"`
	Authority string `json:"authority,omitempty"`
	Need      string `json:"need,omitempty"`
	Timeline  string `json:"timeline,omitempty"`
}

type NamedItem struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type RequirementsArgs struct {
	AppType      string      `json:"app_type,omitempty"`
	Deadline     string      `json:"deadline,omitempty"`
	Features     []NamedItem `json:"features,omitempty"`
	Integrations []NamedItem `json:"integrations,omitempty"`
}

type SlotsArgs struct {
	Date            string `json:"date"` // YYYY-MM-DD
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type ScheduleMeetingArgs struct {
	Start         string `json:"start"` // RFC3339
	End           string `json:"end"`   // RFC3339
	Subject       string `json:"subject,omitempty"`
	AttendeeEmail string `json:"attendee_email,omitempty"`
}

type CancelMeetingArgs struct {
	MeetingID string `json:"meeting_id"`
}

type EndConversationArgs struct {
	Reason string `json:"reason"`
}

var toolCatalog = map[string]llm.ToolDef{
	ToolRecordConsent: {
		Name:        ToolRecordConsent,
		Description: "Record whether the user gave consent to process their data. Call as soon as the user clearly accepts or declines.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"consent": {"type": "boolean", "description": "true if the user accepted"}
			},
			"required": ["consent"]
		}`),
	},
	ToolRecordPersonalData: {
		Name:        ToolRecordPersonalData,
		Description: "Save personal data the user shared: name, email, phone, company. Pass only the fields actually mentioned.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"full_name": {"type": "string"},
				"email": {"type": "string"},
				"phone": {"type": "string"},
				"company": {"type": "string"}
			}
		}`),
	},
	ToolRecordBant: {
		Name:        ToolRecordBant,
		Description: "Save BANT qualification answers (budget, authority, need, timeline). Pass only the fields the user answered.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"budget": {"type": "string"},
				"authority": {"type": "string"},
				"need": {"type": "string"},
				"timeline": {"type": "string"}
			}
		}`),
	},
	ToolRecordRequirements: {
		Name:        ToolRecordRequirements,
		Description: "Save the project requirements: application type, deadline, requested features and integrations.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"app_type": {"type": "string"},
				"deadline": {"type": "string"},
				"features": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"description": {"type": "string"}
						},
						"required": ["name"]
					}
				},
				"integrations": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"name": {"type": "string"},
							"description": {"type": "string"}
						},
						"required": ["name"]
					}
				}
			}
		}`),
	},
	ToolGetAvailableSlots: {
		Name:        ToolGetAvailableSlots,
		Description: "List free meeting slots on a date. Use before proposing times to the user.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "description": "YYYY-MM-DD"},
				"duration_minutes": {"type": "integer", "description": "slot length, default 60"}
			},
			"required": ["date"]
		}`),
	},
	ToolScheduleMeeting: {
		Name:        ToolScheduleMeeting,
		Description: "Schedule the qualification meeting once the user accepted a concrete slot.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"start": {"type": "string", "description": "RFC3339 start time"},
				"end": {"type": "string", "description": "RFC3339 end time"},
				"subject": {"type": "string"},
				"attendee_email": {"type": "string"}
			},
			"required": ["start", "end"]
		}`),
	},
	ToolCancelMeeting: {
		Name:        ToolCancelMeeting,
		Description: "Cancel a previously scheduled meeting.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"meeting_id": {"type": "string"}
			},
			"required": ["meeting_id"]
		}`),
	},
	ToolEndConversation: {
		Name:        ToolEndConversation,
		Description: "End the conversation, e.g. when the user declines to continue.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"reason": {"type": "string", "enum": ["user_declined", "completed", "other"]}
			},
			"required": ["reason"]
		}`),
	},
}

// stageTools gates the catalogue per qualification step: tools that make no
// sense at the current step are not offered to the model at all.
var stageTools = map[string][]string{
	models.StepStart:        {ToolRecordConsent, ToolEndConversation},
	models.StepConsent:      {ToolRecordConsent, ToolEndConversation},
	models.StepPersonalData: {ToolRecordPersonalData, ToolEndConversation},
	models.StepBant:         {ToolRecordBant, ToolEndConversation},
	models.StepRequirements: {ToolRecordRequirements, ToolEndConversation},
	models.StepMeeting:      {ToolGetAvailableSlots, ToolScheduleMeeting, ToolCancelMeeting, ToolEndConversation},
	models.StepCompleted:    {ToolCancelMeeting, ToolScheduleMeeting, ToolGetAvailableSlots, ToolEndConversation},
}

// ToolsForStage returns the gated tool definitions for a qualification step.
func ToolsForStage(stage string) []llm.ToolDef {
	names, ok := stageTools[stage]
	if !ok {
		return nil
	}
	defs := make([]llm.ToolDef, 0, len(names))
	for _, name := range names {
		defs = append(defs, toolCatalog[name])
	}
	return defs
}
