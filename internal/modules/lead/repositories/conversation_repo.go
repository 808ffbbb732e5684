package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

type ConversationRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	GetActive(ctx context.Context, platform, externalID string) (*models.Conversation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
	List(ctx context.Context, limit, offset int) ([]models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	SetAgentEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Conversation, error)
	Close(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
}

type conversationRepo struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepo{db: db}
}

func (r *conversationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "conversation")
	}
	return &conv, nil
}

func (r *conversationRepo) GetActive(ctx context.Context, platform, externalID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).
		Where("platform = ? AND external_id = ? AND status = ?", platform, externalID, models.ConversationActive).
		First(&conv).Error
	if err != nil {
		return nil, translateError(err, "conversation")
	}
	return &conv, nil
}

func (r *conversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepo) List(ctx context.Context, limit, offset int) ([]models.Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var convs []models.Conversation
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	return convs, err
}

func (r *conversationRepo) Create(ctx context.Context, conv *models.Conversation) error {
	// The partial unique index on (platform, external_id, status=active)
	// rejects a second active conversation for the same party.
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return translateError(err, "conversation")
	}
	return nil
}

func (r *conversationRepo) SetAgentEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.Conversation, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("agent_enabled", enabled).Error; err != nil {
		return nil, translateError(err, "conversation")
	}
	return r.GetByID(ctx, id)
}

func (r *conversationRepo) Close(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("status", models.ConversationClosed).Error; err != nil {
		return nil, translateError(err, "conversation")
	}
	return r.GetByID(ctx, id)
}
