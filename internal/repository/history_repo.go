package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/subwise/resilience/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type HistoryListParams struct {
	SubscriptionID *string
	UserID         *string
	ChangeType     *string
	From           *time.Time
	To             *time.Time
	Page           int
	PageSize       int
}

type HistoryRepository interface {
	Create(ctx context.Context, record *domain.HistoryRecord) error
	GetByID(ctx context.Context, id string) (*domain.HistoryRecord, error)
	FindMatch(ctx context.Context, subscriptionID, userID, changeType string, createdAt time.Time) (*domain.HistoryRecord, error)
	List(ctx context.Context, params HistoryListParams) ([]domain.HistoryRecord, int64, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) Create(ctx context.Context, record *domain.HistoryRecord) error {
	model := historyModelFromDomain(record)
	if model == nil {
		return domain.ErrValidation
	}

	if strings.TrimSpace(model.ID) == "" {
		model.ID = uuid.NewString()
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}

	*record = *historyModelToDomain(model)
	return nil
}

func (r *GormHistoryRepo) GetByID(ctx context.Context, id string) (*domain.HistoryRecord, error) {
	var model HistoryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return historyModelToDomain(&model), nil
}

// FindMatch looks a record up by its reconciliation identity. Creation time is
// compared at second precision since backup artifacts round-trip through JSON.
func (r *GormHistoryRepo) FindMatch(ctx context.Context, subscriptionID, userID, changeType string, createdAt time.Time) (*domain.HistoryRecord, error) {
	windowStart := createdAt.UTC().Truncate(time.Second)
	windowEnd := windowStart.Add(time.Second)

	var model HistoryModel
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND user_id = ? AND change_type = ?", subscriptionID, userID, changeType).
		Where("created_at >= ? AND created_at < ?", windowStart, windowEnd).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return historyModelToDomain(&model), nil
}

func (r *GormHistoryRepo) List(ctx context.Context, params HistoryListParams) ([]domain.HistoryRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&HistoryModel{})

	if params.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *params.SubscriptionID)
	}
	if params.UserID != nil {
		query = query.Where("user_id = ?", *params.UserID)
	}
	if params.ChangeType != nil {
		query = query.Where("change_type = ?", *params.ChangeType)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := params.Page
	if page < 1 {
		page = 1
	}
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var models []HistoryModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.HistoryRecord, 0, len(models))
	for i := range models {
		records = append(records, *historyModelToDomain(&models[i]))
	}
	return records, total, nil
}
