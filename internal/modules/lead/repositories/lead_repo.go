package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/MuhamadAgungGumelar/lead-qualification-agent-be/internal/modules/lead/models"
)

type LeadRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.LeadQualification, error)
	GetByConversation(ctx context.Context, conversationID uuid.UUID) (*models.LeadQualification, error)
	List(ctx context.Context, limit, offset int) ([]models.LeadQualification, error)
	ListByStep(ctx context.Context, step string) ([]models.LeadQualification, error)
	// ListStale returns non-terminal leads whose latest user message is older
	// than the cutoff (or that never received a user message before it).
	ListStale(ctx context.Context, cutoff time.Time) ([]models.LeadQualification, error)
	Create(ctx context.Context, lead *models.LeadQualification) error
	UpdateStep(ctx context.Context, id uuid.UUID, step string) (*models.LeadQualification, error)
	SetConsent(ctx context.Context, id uuid.UUID, consent bool) error
	IncrementConsentRefusals(ctx context.Context, id uuid.UUID) (int, error)

	GetBant(ctx context.Context, leadID uuid.UUID) (*models.BantData, error)
	SaveBant(ctx context.Context, leadID uuid.UUID, patch models.BantData) (*models.BantData, error)

	GetRequirements(ctx context.Context, leadID uuid.UUID) (*models.Requirements, error)
	CreateRequirementPackage(ctx context.Context, leadID uuid.UUID, appType, deadline *string, features, integrations []models.Feature) (*models.Requirements, error)
}

type leadRepo struct {
	db *gorm.DB
}

func NewLeadRepo(db *gorm.DB) LeadRepo {
	return &leadRepo{db: db}
}

func (r *leadRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.LeadQualification, error) {
	var lead models.LeadQualification
	err := r.db.WithContext(ctx).First(&lead, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "lead")
	}
	return &lead, nil
}

func (r *leadRepo) GetByConversation(ctx context.Context, conversationID uuid.UUID) (*models.LeadQualification, error) {
	var lead models.LeadQualification
	err := r.db.WithContext(ctx).First(&lead, "conversation_id = ?", conversationID).Error
	if err != nil {
		return nil, translateError(err, "lead")
	}
	return &lead, nil
}

func (r *leadRepo) List(ctx context.Context, limit, offset int) ([]models.LeadQualification, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	var leads []models.LeadQualification
	err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Find(&leads).Error
	return leads, err
}

func (r *leadRepo) ListByStep(ctx context.Context, step string) ([]models.LeadQualification, error) {
	var leads []models.LeadQualification
	err := r.db.WithContext(ctx).
		Where("current_step = ?", step).
		Order("created_at ASC, id ASC").
		Find(&leads).Error
	return leads, err
}

func (r *leadRepo) ListStale(ctx context.Context, cutoff time.Time) ([]models.LeadQualification, error) {
	var leads []models.LeadQualification
	err := r.db.WithContext(ctx).
		Where("current_step NOT IN ?", []string{models.StepCompleted, models.StepAbandoned}).
		Where(`COALESCE(
			(SELECT MAX(m.created_at) FROM messages m
			 WHERE m.conversation_id = lead_qualification.conversation_id
			   AND m.role = 'user' AND m.deleted_at IS NULL),
			lead_qualification.created_at) < ?`, cutoff).
		Find(&leads).Error
	return leads, err
}

func (r *leadRepo) Create(ctx context.Context, lead *models.LeadQualification) error {
	if err := r.db.WithContext(ctx).Create(lead).Error; err != nil {
		return translateError(err, "lead")
	}
	return nil
}

func (r *leadRepo) UpdateStep(ctx context.Context, id uuid.UUID, step string) (*models.LeadQualification, error) {
	if err := r.db.WithContext(ctx).
		Model(&models.LeadQualification{}).
		Where("id = ?", id).
		Update("current_step", step).Error; err != nil {
		return nil, translateError(err, "lead")
	}
	return r.GetByID(ctx, id)
}

func (r *leadRepo) SetConsent(ctx context.Context, id uuid.UUID, consent bool) error {
	err := r.db.WithContext(ctx).
		Model(&models.LeadQualification{}).
		Where("id = ?", id).
		Update("consent", consent).Error
	if err != nil {
		return translateError(err, "lead")
	}
	return nil
}

func (r *leadRepo) IncrementConsentRefusals(ctx context.Context, id uuid.UUID) (int, error) {
	err := r.db.WithContext(ctx).
		Model(&models.LeadQualification{}).
		Where("id = ?", id).
		Update("consent_refusals", gorm.Expr("consent_refusals + 1")).Error
	if err != nil {
		return 0, translateError(err, "lead")
	}
	lead, err := r.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	return lead.ConsentRefusals, nil
}

func (r *leadRepo) GetBant(ctx context.Context, leadID uuid.UUID) (*models.BantData, error) {
	var bant models.BantData
	err := r.db.WithContext(ctx).First(&bant, "lead_qualification_id = ?", leadID).Error
	if err != nil {
		return nil, translateError(err, "bant_data")
	}
	return &bant, nil
}

// SaveBant merges the patch into the existing row, creating it on first
// write. Fields already set are only overwritten by non-empty values, so a
// patch that is a subset of what is stored is a no-op.
func (r *leadRepo) SaveBant(ctx context.Context, leadID uuid.UUID, patch models.BantData) (*models.BantData, error) {
	var out *models.BantData
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bant models.BantData
		err := tx.First(&bant, "lead_qualification_id = ?", leadID).Error
		switch {
		case err == nil:
		case isNotFound(err):
			bant = models.BantData{LeadQualificationID: leadID}
			if err := tx.Create(&bant).Error; err != nil {
				return translateError(err, "bant_data")
			}
		default:
			return translateError(err, "bant_data")
		}

		updates := map[string]interface{}{}
		merge := func(col string, v *string) {
			if v != nil && *v != "" {
				updates[col] = *v
			}
		}
		merge("budget", patch.Budget)
		merge("authority", patch.Authority)
		merge("need", patch.Need)
		merge("timeline", patch.Timeline)

		if len(updates) > 0 {
			if err := tx.Model(&bant).Updates(updates).Error; err != nil {
				return translateError(err, "bant_data")
			}
		}
		out = &bant
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *leadRepo) GetRequirements(ctx context.Context, leadID uuid.UUID) (*models.Requirements, error) {
	var req models.Requirements
	err := r.db.WithContext(ctx).
		Preload("Features").
		Preload("Integrations").
		First(&req, "lead_qualification_id = ?", leadID).Error
	if err != nil {
		return nil, translateError(err, "requirements")
	}
	return &req, nil
}

// CreateRequirementPackage upserts the requirement row for the lead and
// replaces its feature and integration sets atomically. Re-applying the
// same package leaves state unchanged.
func (r *leadRepo) CreateRequirementPackage(ctx context.Context, leadID uuid.UUID, appType, deadline *string, features, integrations []models.Feature) (*models.Requirements, error) {
	var out *models.Requirements
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req models.Requirements
		err := tx.First(&req, "lead_qualification_id = ?", leadID).Error
		switch {
		case err == nil:
		case isNotFound(err):
			req = models.Requirements{LeadQualificationID: leadID}
			if err := tx.Create(&req).Error; err != nil {
				return translateError(err, "requirements")
			}
		default:
			return translateError(err, "requirements")
		}

		updates := map[string]interface{}{}
		if appType != nil && *appType != "" {
			updates["app_type"] = *appType
		}
		if deadline != nil && *deadline != "" {
			updates["deadline"] = *deadline
		}
		if len(updates) > 0 {
			if err := tx.Model(&req).Updates(updates).Error; err != nil {
				return translateError(err, "requirements")
			}
		}

		// Replace-by-name keeps the operation idempotent.
		if len(features) > 0 {
			if err := tx.Where("requirement_id = ?", req.ID).Delete(&models.Feature{}).Error; err != nil {
				return translateError(err, "features")
			}
			for i := range features {
				features[i].ID = uuid.Nil
				features[i].RequirementID = req.ID
			}
			if err := tx.Create(&features).Error; err != nil {
				return translateError(err, "features")
			}
		}
		if len(integrations) > 0 {
			if err := tx.Where("requirement_id = ?", req.ID).Delete(&models.Integration{}).Error; err != nil {
				return translateError(err, "integrations")
			}
			rows := make([]models.Integration, 0, len(integrations))
			for _, f := range integrations {
				rows = append(rows, models.Integration{
					RequirementID: req.ID,
					Name:          f.Name,
					Description:   f.Description,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return translateError(err, "integrations")
			}
		}

		loaded, err := r.getRequirementsTx(tx, leadID)
		if err != nil {
			return err
		}
		out = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *leadRepo) getRequirementsTx(tx *gorm.DB, leadID uuid.UUID) (*models.Requirements, error) {
	var req models.Requirements
	err := tx.Preload("Features").
		Preload("Integrations").
		First(&req, "lead_qualification_id = ?", leadID).Error
	if err != nil {
		return nil, translateError(err, "requirements")
	}
	return &req, nil
}
