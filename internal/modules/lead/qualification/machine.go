// Package qualification holds the deterministic stage graph that decides
// how a lead moves through the funnel. Next is a pure function over a
// read-only snapshot; the orchestrator persists its result.
package qualification

import (
	"time"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// AbandonAfter is the silence window after which a lead is abandoned.
const AbandonAfter = 7 * 24 * time.Hour

// MaxConsentRefusals abandons the lead after this many consecutive
// refusals at the consent step.
const MaxConsentRefusals = 2

// Snapshot is the post-effect state the next stage is computed from.
type Snapshot struct {
	Lead         models.LeadQualification
	User         *models.User
	Bant         *models.BantData
	Requirements *models.Requirements
	// Meeting is the lead's non-cancelled meeting, if any.
	Meeting *models.Meeting
	// HasUserMessage is true once the conversation received its first user turn.
	HasUserMessage bool
	// EndedByUser is set when end_conversation("user_declined") was applied.
	EndedByUser bool
	// LastUserMessageAt is zero when no user message exists.
	LastUserMessageAt time.Time
	Now               time.Time
}

// Next returns the stage the lead should be in. It never regresses, never
// advances on assistant turns alone, and is idempotent: feeding the result
// back with the same snapshot returns the same stage.
func Next(s Snapshot) string {
	step := s.Lead.CurrentStep

	if step == models.StepCompleted || step == models.StepAbandoned {
		return step
	}

	if s.EndedByUser {
		return models.StepAbandoned
	}
	if !s.LastUserMessageAt.IsZero() && !s.Now.IsZero() && s.Now.Sub(s.LastUserMessageAt) > AbandonAfter {
		return models.StepAbandoned
	}
	if (step == models.StepStart || step == models.StepConsent) &&
		!s.Lead.Consent && s.Lead.ConsentRefusals >= MaxConsentRefusals {
		return models.StepAbandoned
	}

	// Forward edges only; a single recompute may cross several of them when
	// the data already satisfies later gates.
	for {
		next := advanceOne(step, s)
		if next == step {
			return step
		}
		step = next
	}
}

func advanceOne(step string, s Snapshot) string {
	switch step {
	case models.StepStart:
		if s.HasUserMessage {
			return models.StepConsent
		}
	case models.StepConsent:
		if s.Lead.Consent {
			return models.StepPersonalData
		}
	case models.StepPersonalData:
		if s.User != nil && s.User.HasContactInfo() {
			return models.StepBant
		}
	case models.StepBant:
		if s.Bant != nil && s.Bant.Complete() {
			return models.StepRequirements
		}
	case models.StepRequirements:
		if s.Requirements != nil &&
			s.Requirements.AppType != nil && *s.Requirements.AppType != "" &&
			len(s.Requirements.Features) > 0 {
			return models.StepMeeting
		}
	case models.StepMeeting:
		if s.Meeting != nil && s.Meeting.Active() {
			return models.StepCompleted
		}
	}
	return step
}

// MissingBant lists the unanswered BANT fields, for prompt building.
func MissingBant(bant *models.BantData) []string {
	var missing []string
	empty := func(v *string) bool { return v == nil || *v == "" }
	if bant == nil {
		return []string{"budget", "authority", "need", "timeline"}
	}
	if empty(bant.Budget) {
		missing = append(missing, "budget")
	}
	if empty(bant.Authority) {
		missing = append(missing, "authority")
	}
	if empty(bant.Need) {
		missing = append(missing, "need")
	}
	if empty(bant.Timeline) {
		missing = append(missing, "timeline")
	}
	return missing
}

// ValidOverride reports whether an operator-supplied stage value is one of
// the known steps.
func ValidOverride(step string) bool {
	if step == models.StepAbandoned {
		return true
	}
	_, ok := models.StepRank[step]
	return ok
}
