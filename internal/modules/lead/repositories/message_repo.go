package repositories

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

type MessageRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Message, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error)
	// History returns the trailing window of the most recent `window`
	// non-system messages, oldest first.
	History(ctx context.Context, conversationID uuid.UUID, window int) ([]models.Message, error)
	LatestUserMessage(ctx context.Context, conversationID uuid.UUID) (*models.Message, error)
	Create(ctx context.Context, msg *models.Message) error
	MarkRead(ctx context.Context, id uuid.UUID) (*models.Message, error)
	MarkDeliveryError(ctx context.Context, id uuid.UUID) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

func (r *messageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "message")
	}
	return &msg, nil
}

func (r *messageRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).First(&msg, "external_id = ?", externalID).Error
	if err != nil {
		return nil, translateError(err, "message")
	}
	return &msg, nil
}

func (r *messageRepo) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepo) History(ctx context.Context, conversationID uuid.UUID, window int) ([]models.Message, error) {
	if window <= 0 {
		window = 10
	}
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role <> ?", conversationID, models.RoleSystem).
		Order("created_at DESC, id DESC").
		Limit(window).
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *messageRepo) LatestUserMessage(ctx context.Context, conversationID uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND role = ?", conversationID, models.RoleUser).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		return nil, translateError(err, "message")
	}
	return &msg, nil
}

func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return translateError(err, "message")
	}
	return nil
}

func (r *messageRepo) MarkRead(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	// Idempotent: updating an already-read message is a no-op.
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("read", true).Error; err != nil {
		return nil, translateError(err, "message")
	}
	return r.GetByID(ctx, id)
}

func (r *messageRepo) MarkDeliveryError(ctx context.Context, id uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Update("delivery_error", true).Error
	if err != nil {
		return translateError(err, "message")
	}
	return nil
}

func (r *messageRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id)
	if res.Error != nil {
		return translateError(res.Error, "message")
	}
	if res.RowsAffected == 0 {
		return translateError(gorm.ErrRecordNotFound, "message")
	}
	return nil
}
