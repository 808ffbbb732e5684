package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

// Party identifies an inbound sender before any row exists for them.
type Party struct {
	Platform   string
	ExternalID string
	Phone      string
	Email      string
	FullName   string
}

// Store bundles the repositories plus the cross-aggregate transactional
// operations. It is the sole mutator of the persistent store.
type Store struct {
	db *gorm.DB

	Users         UserRepo
	Conversations ConversationRepo
	Messages      MessageRepo
	Leads         LeadRepo
	Meetings      MeetingRepo
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Users:         NewUserRepo(db),
		Conversations: NewConversationRepo(db),
		Messages:      NewMessageRepo(db),
		Leads:         NewLeadRepo(db),
		Meetings:      NewMeetingRepo(db),
	}
}

// DB exposes the underlying handle for read-only aggregation queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// UpsertUserAndOpenConversation resolves the sender to a user, the active
// conversation for their (platform, external_id), and the lead record —
// creating whichever of the three is missing, atomically.
func (s *Store) UpsertUserAndOpenConversation(ctx context.Context, party Party) (*models.User, *models.Conversation, *models.LeadQualification, bool, error) {
	var (
		user    *models.User
		conv    *models.Conversation
		lead    *models.LeadQualification
		created bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.User
		q := tx
		switch {
		case party.Phone != "":
			q = q.Where("phone = ?", party.Phone)
		case party.Email != "":
			q = q.Where("email = ?", party.Email)
		default:
			q = q.Where("1 = 0")
		}
		err := q.First(&u).Error
		switch {
		case err == nil:
		case isNotFound(err):
			u = models.User{FullName: party.FullName}
			if party.Phone != "" {
				phone := party.Phone
				u.Phone = &phone
			}
			if party.Email != "" {
				email := party.Email
				u.Email = &email
			}
			if err := tx.Create(&u).Error; err != nil {
				return translateError(err, "user")
			}
		default:
			return translateError(err, "user")
		}

		var c models.Conversation
		err = tx.Where("platform = ? AND external_id = ? AND status = ?",
			party.Platform, party.ExternalID, models.ConversationActive).
			First(&c).Error
		switch {
		case err == nil:
		case isNotFound(err):
			c = models.Conversation{
				UserID:       u.ID,
				Platform:     party.Platform,
				ExternalID:   party.ExternalID,
				Status:       models.ConversationActive,
				AgentEnabled: true,
			}
			if err := tx.Create(&c).Error; err != nil {
				return translateError(err, "conversation")
			}
			created = true
		default:
			return translateError(err, "conversation")
		}

		var l models.LeadQualification
		err = tx.Where("user_id = ? AND conversation_id = ?", u.ID, c.ID).First(&l).Error
		switch {
		case err == nil:
		case isNotFound(err):
			l = models.LeadQualification{
				UserID:         u.ID,
				ConversationID: c.ID,
				CurrentStep:    models.StepStart,
			}
			if err := tx.Create(&l).Error; err != nil {
				return translateError(err, "lead")
			}
		default:
			return translateError(err, "lead")
		}

		user, conv, lead = &u, &c, &l
		return nil
	})
	if err != nil {
		return nil, nil, nil, false, err
	}
	return user, conv, lead, created, nil
}
