package agent

import (
	"fmt"
	"strings"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// LeadState is the read-only snapshot of the lead the prompt is built from.
type LeadState struct {
	Stage           string
	UserName        string
	Consent         bool
	ConsentRefusals int
	MissingBant     []string
	HasRequirements bool
	Timezone        string
}

// BuildSystemPrompt membuat system prompt untuk satu turn berdasarkan step
// kualifikasi saat ini.
func BuildSystemPrompt(state LeadState) string {
	var sb strings.Builder

	sb.WriteString("You are a virtual assistant qualifying sales leads over chat.\n")
	sb.WriteString("Reply in the user's language, politely and concisely (max 3 short paragraphs).\n")
	sb.WriteString("Never invent data; record information only through the available tools.\n\n")

	if state.UserName != "" {
		sb.WriteString(fmt.Sprintf("The user's name is %s.\n", state.UserName))
	}
	sb.WriteString(fmt.Sprintf("Current qualification step: %s.\n\n", state.Stage))

	switch state.Stage {
	case models.StepStart, models.StepConsent:
		sb.WriteString("Goal: obtain explicit consent to process the user's data before anything else.\n")
		sb.WriteString("Explain briefly why you need it. When they clearly accept or decline, call record_consent.\n")
		if state.ConsentRefusals == 1 {
			sb.WriteString("They declined once already; re-ask one final time, gently.\n")
		}
	case models.StepPersonalData:
		sb.WriteString("Goal: collect full name plus at least one of email or phone (company optional).\n")
		sb.WriteString("Ask for the missing pieces one at a time and save them with record_personal_data.\n")
	case models.StepBant:
		sb.WriteString("Goal: complete the BANT qualification (budget, authority, need, timeline).\n")
		if len(state.MissingBant) > 0 {
			sb.WriteString(fmt.Sprintf("Still missing: %s.\n", strings.Join(state.MissingBant, ", ")))
		}
		sb.WriteString("Ask one question at a time and save answers with record_bant.\n")
	case models.StepRequirements:
		sb.WriteString("Goal: capture what they want built — application type, desired features, integrations, deadline.\n")
		sb.WriteString("Save with record_requirements once the user described at least the app type and one feature.\n")
	case models.StepMeeting:
		sb.WriteString("Goal: schedule a meeting with our team.\n")
		sb.WriteString("Use get_available_slots before proposing times; offer 2-3 options.\n")
		if state.Timezone != "" {
			sb.WriteString(fmt.Sprintf("All times are in the %s timezone; say so when proposing.\n", state.Timezone))
		}
		sb.WriteString("When the user accepts a slot, call schedule_meeting.\n")
	case models.StepCompleted:
		sb.WriteString("Qualification is complete and a meeting is scheduled.\n")
		sb.WriteString("Answer follow-up questions; reschedule or cancel through the tools if asked.\n")
	case models.StepAbandoned:
		sb.WriteString("The conversation was closed. Answer briefly and do not restart qualification.\n")
	}

	return sb.String()
}

// WelcomeMessage is the assistant's opening line on a brand-new conversation.
func WelcomeMessage() string {
	return "Hi! I'm the virtual assistant. I can help you scope your project and set up a meeting with our team. To get started, do you agree that we process the details you share here?"
}

// FallbackApology is sent when the model call fails or times out.
func FallbackApology() string {
	return "Sorry, I'm having a technical problem right now. Please try again in a moment."
}
