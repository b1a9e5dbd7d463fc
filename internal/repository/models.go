package repository

import (
	"encoding/json"
	"time"

	"github.com/subwise/resilience/internal/domain"
)

// HistoryModel is the persistence model for the subscription_history table.
type HistoryModel struct {
	ID             string `gorm:"type:uuid;primaryKey"`
	SubscriptionID string `gorm:"type:uuid;not null"`
	UserID         string `gorm:"type:varchar(64);not null"`
	ChangeType     string `gorm:"type:varchar(32);not null"`
	Description    string `gorm:"type:text"`
	OldValue       string `gorm:"type:text"`
	NewValue       string `gorm:"type:text"`
	Metadata       string `gorm:"type:jsonb"`
	ActorIP        string `gorm:"type:varchar(45)"`
	ActorUserAgent string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (HistoryModel) TableName() string {
	return "subscription_history"
}

func historyModelFromDomain(r *domain.HistoryRecord) *HistoryModel {
	if r == nil {
		return nil
	}

	metadata := ""
	if len(r.Metadata) > 0 {
		if raw, err := json.Marshal(r.Metadata); err == nil {
			metadata = string(raw)
		}
	}

	return &HistoryModel{
		ID:             r.ID,
		SubscriptionID: r.SubscriptionID,
		UserID:         r.UserID,
		ChangeType:     r.ChangeType,
		Description:    r.Description,
		OldValue:       r.OldValue,
		NewValue:       r.NewValue,
		Metadata:       metadata,
		ActorIP:        r.ActorIP,
		ActorUserAgent: r.ActorUserAgent,
		CreatedAt:      r.CreatedAt,
	}
}

func historyModelToDomain(m *HistoryModel) *domain.HistoryRecord {
	if m == nil {
		return nil
	}

	var metadata map[string]string
	if m.Metadata != "" {
		_ = json.Unmarshal([]byte(m.Metadata), &metadata)
	}

	return &domain.HistoryRecord{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		UserID:         m.UserID,
		ChangeType:     m.ChangeType,
		Description:    m.Description,
		OldValue:       m.OldValue,
		NewValue:       m.NewValue,
		Metadata:       metadata,
		ActorIP:        m.ActorIP,
		ActorUserAgent: m.ActorUserAgent,
		CreatedAt:      m.CreatedAt,
	}
}
