package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/qualification"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/repositories"
	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/shared/utils"
)

// MeetingSyncer reconciles local meeting rows against the remote calendar.
// Implemented by the conversation service.
type MeetingSyncer interface {
	SyncMeetings(ctx context.Context, since time.Time) error
}

// AbandonSweeper runs the periodic background passes: abandoning leads that
// went silent, and reconciling meetings against the remote calendar. Silence
// is measured from the latest user message (or lead creation when none
// exists).
type AbandonSweeper struct {
	store  *repositories.Store
	events EventPublisher
	syncer MeetingSyncer
	cron   *cron.Cron
	window time.Duration

	syncMu   sync.Mutex
	lastSync time.Time
}

// NewAbandonSweeper creates the sweeper. The default silence window is 7
// days, checked every 15 minutes; the calendar is reconciled every 30
// minutes when a syncer is given, starting one day back to cover downtime.
func NewAbandonSweeper(store *repositories.Store, events EventPublisher, syncer MeetingSyncer) *AbandonSweeper {
	if events == nil {
		events = NopPublisher{}
	}
	return &AbandonSweeper{
		store:    store,
		events:   events,
		syncer:   syncer,
		cron:     cron.New(),
		window:   qualification.AbandonAfter,
		lastSync: time.Now().Add(-24 * time.Hour),
	}
}

// Start schedules the passes and runs the sweep once immediately so a
// restart does not wait a full interval to catch up.
func (s *AbandonSweeper) Start() error {
	log.Println("⏰ Starting abandonment sweeper...")
	if _, err := s.cron.AddFunc("@every 15m", s.sweep); err != nil {
		return err
	}
	if s.syncer != nil {
		if _, err := s.cron.AddFunc("@every 30m", s.reconcile); err != nil {
			return err
		}
	}
	s.cron.Start()
	go s.sweep()
	log.Println("✅ Abandonment sweeper started")
	return nil
}

// Stop stops the scheduler. Running sweeps finish.
func (s *AbandonSweeper) Stop() {
	log.Println("⏰ Stopping abandonment sweeper...")
	s.cron.Stop()
	log.Println("✅ Abandonment sweeper stopped")
}

// Sweep runs one pass synchronously. Exposed for tests and manual triggers.
func (s *AbandonSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.window)
	stale, err := s.store.Leads.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	abandoned := 0
	for _, lead := range stale {
		updated, err := s.store.Leads.UpdateStep(ctx, lead.ID, models.StepAbandoned)
		if err != nil {
			log.Printf("❌ Failed to abandon lead %s: %v", lead.ID, err)
			continue
		}
		abandoned++
		payload := map[string]interface{}{
			"lead_id":         updated.ID,
			"conversation_id": updated.ConversationID,
			"current_step":    updated.CurrentStep,
		}
		s.events.PublishToConversation(updated.ConversationID, EventLeadStageChanged, payload)
		s.events.PublishToUser(updated.UserID, EventLeadStageChanged, payload)
	}
	return abandoned, nil
}

// ReconcileMeetings runs one calendar reconciliation pass. The window opens
// at the previous successful pass, so a failed pass is retried over the same
// range next time.
func (s *AbandonSweeper) ReconcileMeetings(ctx context.Context) error {
	s.syncMu.Lock()
	since := s.lastSync
	s.syncMu.Unlock()

	start := time.Now()
	if err := s.syncer.SyncMeetings(ctx, since); err != nil {
		return err
	}

	s.syncMu.Lock()
	s.lastSync = start
	s.syncMu.Unlock()
	return nil
}

func (s *AbandonSweeper) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.ReconcileMeetings(ctx); err != nil {
		utils.LogError("meeting reconciliation failed", err, nil)
	}
}

func (s *AbandonSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.Sweep(ctx)
	if err != nil {
		utils.LogError("abandonment sweep failed", err, nil)
		return
	}
	if n > 0 {
		utils.LogInfo("abandonment sweep finished", map[string]interface{}{
			"abandoned": n,
		})
	}
}
