package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/journal"
	"github.com/subwise/resilience/internal/repository"
)

const (
	defaultPage        = 1
	defaultHistoryPage = 20
	maxHistoryPageSize = 100
)

type HistoryJournal interface {
	Record(ctx context.Context, record *domain.HistoryRecord) journal.RecordResult
}

type HistoryHandler struct {
	journal HistoryJournal
	repo    repository.HistoryRepository
}

func NewHistoryHandler(j HistoryJournal, repo repository.HistoryRepository) (*HistoryHandler, error) {
	if j == nil {
		return nil, fmt.Errorf("history journal is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	return &HistoryHandler{journal: j, repo: repo}, nil
}

func RegisterHistoryRoutes(router fiber.Router, j HistoryJournal, repo repository.HistoryRepository) error {
	h, err := NewHistoryHandler(j, repo)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/history", h.RecordChange)
	v1.Get("/history/:id", h.GetRecord)
	v1.Get("/history", h.ListRecords)

	return nil
}

type recordChangeRequest struct {
	SubscriptionID string            `json:"subscriptionId"`
	UserID         string            `json:"userId"`
	ChangeType     string            `json:"changeType"`
	Description    string            `json:"description"`
	OldValue       string            `json:"oldValue"`
	NewValue       string            `json:"newValue"`
	Metadata       map[string]string `json:"metadata"`
}

type recordChangeResponse struct {
	PrimaryWriteOk bool   `json:"primaryWriteOk"`
	BackupOk       bool   `json:"backupOk"`
	RecordID       string `json:"recordId,omitempty"`
}

type historyRecordResponse struct {
	ID             string            `json:"id"`
	SubscriptionID string            `json:"subscriptionId"`
	UserID         string            `json:"userId"`
	ChangeType     string            `json:"changeType"`
	Description    string            `json:"description,omitempty"`
	OldValue       string            `json:"oldValue,omitempty"`
	NewValue       string            `json:"newValue,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ActorIP        string            `json:"actorIp,omitempty"`
	ActorUserAgent string            `json:"actorUserAgent,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type listHistoryResponse struct {
	Data []historyRecordResponse `json:"data"`
	Meta listMeta                `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *HistoryHandler) RecordChange(c *fiber.Ctx) error {
	var req recordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	record := &domain.HistoryRecord{
		SubscriptionID: strings.TrimSpace(req.SubscriptionID),
		UserID:         strings.TrimSpace(req.UserID),
		ChangeType:     strings.TrimSpace(req.ChangeType),
		Description:    strings.TrimSpace(req.Description),
		OldValue:       req.OldValue,
		NewValue:       req.NewValue,
		Metadata:       req.Metadata,
		ActorIP:        c.IP(),
		ActorUserAgent: c.Get(fiber.HeaderUserAgent),
	}
	if err := record.Validate(); err != nil {
		return toHTTPError(err)
	}

	result := h.journal.Record(c.UserContext(), record)

	return c.Status(fiber.StatusAccepted).JSON(recordChangeResponse{
		PrimaryWriteOk: result.PrimaryOK,
		BackupOk:       result.BackupOK,
		RecordID:       result.RecordID,
	})
}

func (h *HistoryHandler) GetRecord(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))

	record, err := h.repo.GetByID(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toHistoryResponse(record))
}

func (h *HistoryHandler) ListRecords(c *fiber.Ctx) error {
	params, err := parseHistoryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.repo.List(c.UserContext(), params)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]historyRecordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toHistoryResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listHistoryResponse{
		Data: responses,
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseHistoryListParams(c *fiber.Ctx) (repository.HistoryListParams, error) {
	params := repository.HistoryListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultHistoryPage),
	}

	if params.Page < 1 {
		return repository.HistoryListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxHistoryPageSize {
		return repository.HistoryListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxHistoryPageSize)
	}

	if value := strings.TrimSpace(c.Query("subscriptionId")); value != "" {
		params.SubscriptionID = &value
	}
	if value := strings.TrimSpace(c.Query("userId")); value != "" {
		params.UserID = &value
	}
	if value := strings.TrimSpace(c.Query("changeType")); value != "" {
		params.ChangeType = &value
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.HistoryListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.HistoryListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toHistoryResponse(record *domain.HistoryRecord) historyRecordResponse {
	if record == nil {
		return historyRecordResponse{}
	}

	return historyRecordResponse{
		ID:             record.ID,
		SubscriptionID: record.SubscriptionID,
		UserID:         record.UserID,
		ChangeType:     record.ChangeType,
		Description:    record.Description,
		OldValue:       record.OldValue,
		NewValue:       record.NewValue,
		Metadata:       record.Metadata,
		ActorIP:        record.ActorIP,
		ActorUserAgent: record.ActorUserAgent,
		CreatedAt:      record.CreatedAt,
	}
}
