package qualification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

func strPtr(s string) *string { return &s }

func baseSnapshot(step string) Snapshot {
	now := time.Now()
	return Snapshot{
		Lead:              models.LeadQualification{CurrentStep: step},
		HasUserMessage:    true,
		LastUserMessageAt: now.Add(-time.Hour),
		Now:               now,
	}
}

func TestNextForwardEdges(t *testing.T) {
	phone := strPtr("+6281234567890")

	tests := []struct {
		name string
		prep func(*Snapshot)
		from string
		want string
	}{
		{
			name: "start advances on first user message",
			from: models.StepStart,
			want: models.StepConsent,
		},
		{
			name: "consent holds without consent",
			from: models.StepConsent,
			want: models.StepConsent,
		},
		{
			name: "consent advances when given",
			from: models.StepConsent,
			prep: func(s *Snapshot) { s.Lead.Consent = true },
			want: models.StepPersonalData,
		},
		{
			name: "personal_data advances on contact info",
			from: models.StepPersonalData,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.User = &models.User{FullName: "Budi", Phone: phone}
			},
			want: models.StepBant,
		},
		{
			name: "bant holds on partial answers",
			from: models.StepBant,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Bant = &models.BantData{Budget: strPtr("50M IDR")}
			},
			want: models.StepBant,
		},
		{
			name: "bant advances when complete",
			from: models.StepBant,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Bant = &models.BantData{
					Budget:    strPtr("50M IDR"),
					Authority: strPtr("owner"),
					Need:      strPtr("booking system"),
					Timeline:  strPtr("Q4"),
				}
			},
			want: models.StepRequirements,
		},
		{
			name: "requirements needs app type and a feature",
			from: models.StepRequirements,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Requirements = &models.Requirements{AppType: strPtr("mobile")}
			},
			want: models.StepRequirements,
		},
		{
			name: "requirements advances with features",
			from: models.StepRequirements,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Requirements = &models.Requirements{
					AppType:  strPtr("mobile"),
					Features: []models.Feature{{Name: "online booking"}},
				}
			},
			want: models.StepMeeting,
		},
		{
			name: "meeting advances once scheduled",
			from: models.StepMeeting,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Meeting = &models.Meeting{Status: models.MeetingScheduled}
			},
			want: models.StepCompleted,
		},
		{
			name: "rescheduled meeting still completes",
			from: models.StepMeeting,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Meeting = &models.Meeting{Status: models.MeetingRescheduled}
			},
			want: models.StepCompleted,
		},
		{
			name: "cancelled meeting does not complete",
			from: models.StepMeeting,
			prep: func(s *Snapshot) {
				s.Lead.Consent = true
				s.Meeting = &models.Meeting{Status: models.MeetingCancelled}
			},
			want: models.StepMeeting,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := baseSnapshot(tt.from)
			if tt.prep != nil {
				tt.prep(&s)
			}
			assert.Equal(t, tt.want, Next(s))
		})
	}
}

func TestNextCrossesMultipleEdges(t *testing.T) {
	// A consent grant plus already-known contact info jumps two stages in
	// one recompute.
	s := baseSnapshot(models.StepConsent)
	s.Lead.Consent = true
	s.User = &models.User{FullName: "Sari", Email: strPtr("sari@example.com")}

	assert.Equal(t, models.StepBant, Next(s))
}

func TestNextIsIdempotent(t *testing.T) {
	s := baseSnapshot(models.StepConsent)
	s.Lead.Consent = true
	s.User = &models.User{Phone: strPtr("+628111")}

	first := Next(s)
	s.Lead.CurrentStep = first
	assert.Equal(t, first, Next(s))
}

func TestNextTerminalStatesAreSticky(t *testing.T) {
	for _, step := range []string{models.StepCompleted, models.StepAbandoned} {
		s := baseSnapshot(step)
		s.Lead.Consent = true
		s.Meeting = &models.Meeting{Status: models.MeetingScheduled}
		assert.Equal(t, step, Next(s))
	}
}

func TestNextAbandonsOnUserDecline(t *testing.T) {
	s := baseSnapshot(models.StepBant)
	s.EndedByUser = true
	assert.Equal(t, models.StepAbandoned, Next(s))
}

func TestNextAbandonsAfterSilence(t *testing.T) {
	s := baseSnapshot(models.StepPersonalData)
	s.Lead.Consent = true
	s.LastUserMessageAt = s.Now.Add(-AbandonAfter - time.Minute)
	assert.Equal(t, models.StepAbandoned, Next(s))

	// Exactly at the boundary the lead stays.
	s.LastUserMessageAt = s.Now.Add(-AbandonAfter)
	assert.NotEqual(t, models.StepAbandoned, Next(s))
}

func TestNextAbandonsAfterConsentRefusals(t *testing.T) {
	s := baseSnapshot(models.StepConsent)
	s.Lead.ConsentRefusals = MaxConsentRefusals
	assert.Equal(t, models.StepAbandoned, Next(s))

	s.Lead.ConsentRefusals = MaxConsentRefusals - 1
	assert.Equal(t, models.StepConsent, Next(s))
}

func TestMissingBant(t *testing.T) {
	assert.Equal(t,
		[]string{"budget", "authority", "need", "timeline"},
		MissingBant(nil))

	bant := &models.BantData{
		Budget:   strPtr("100M"),
		Timeline: strPtr("3 months"),
	}
	assert.Equal(t, []string{"authority", "need"}, MissingBant(bant))

	full := &models.BantData{
		Budget:    strPtr("100M"),
		Authority: strPtr("CTO"),
		Need:      strPtr("inventory app"),
		Timeline:  strPtr("3 months"),
	}
	assert.Empty(t, MissingBant(full))
}

func TestValidOverride(t *testing.T) {
	assert.True(t, ValidOverride(models.StepBant))
	assert.True(t, ValidOverride(models.StepAbandoned))
	assert.False(t, ValidOverride("negotiation"))
}
