package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/observability"
	"github.com/subwise/resilience/internal/repository"
	"go.uber.org/zap"
)

// RecordResult reports where one history record landed. The record is durable
// as long as either flag is true; both false means data loss and is logged at
// error level before being returned.
type RecordResult struct {
	PrimaryOK  bool
	BackupOK   bool
	RecordID   string
	BackupPath string
}

// Journal writes subscription history to the primary store and, always, to the
// filesystem backup. Record never returns an error: the caller's request has
// already happened and refusing to journal it would not undo it.
type Journal struct {
	repo    repository.HistoryRepository
	backups *BackupStore
	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewJournal(repo repository.HistoryRepository, backups *BackupStore, logger *zap.Logger) (*Journal, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if backups == nil {
		return nil, fmt.Errorf("backup store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Journal{
		repo:    repo,
		backups: backups,
		logger:  logger,
		now:     time.Now,
	}, nil
}

func (j *Journal) SetMetrics(metrics *observability.Metrics) {
	if j == nil {
		return
	}
	j.metrics = metrics
}

// Record persists the history record to the primary store and writes a backup
// artifact regardless of the primary outcome. A primary failure that the
// backup absorbed is also noted in the failed-writes ledger.
func (j *Journal) Record(ctx context.Context, record *domain.HistoryRecord) RecordResult {
	if ctx == nil {
		ctx = context.Background()
	}
	log := observability.WithContextLogger(j.logger, ctx)

	if err := record.Validate(); err != nil {
		log.Warn("history record rejected at validation", zap.Error(err))
		return RecordResult{}
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = j.now().UTC()
	}

	result := RecordResult{}

	if err := j.repo.Create(ctx, record); err != nil {
		log.Error("primary history write failed",
			zap.String("subscriptionId", record.SubscriptionID),
			zap.String("userId", record.UserID),
			zap.String("changeType", record.ChangeType),
			zap.Error(err),
		)
	} else {
		result.PrimaryOK = true
		result.RecordID = record.ID
	}

	backupName, err := j.backups.Write(record)
	if err != nil {
		j.metrics.IncJournalBackup("failed")
		log.Error("backup history write failed",
			zap.String("subscriptionId", record.SubscriptionID),
			zap.String("userId", record.UserID),
			zap.Error(err),
		)
	} else {
		result.BackupOK = true
		result.BackupPath = backupName
		j.metrics.IncJournalBackup("written")
	}

	if !result.PrimaryOK && result.BackupOK {
		entry := LedgerEntry{
			RecordID:   record.ID,
			BackupPath: result.BackupPath,
			UserID:     record.UserID,
			ChangeType: record.ChangeType,
			Timestamp:  j.now().UTC(),
		}
		if err := j.backups.AppendFailedWrite(entry); err != nil {
			log.Error("failed to note primary miss in ledger", zap.Error(err))
		}
	}

	if !result.PrimaryOK && !result.BackupOK {
		log.Error("history record lost, both primary and backup writes failed",
			zap.String("subscriptionId", record.SubscriptionID),
			zap.String("userId", record.UserID),
			zap.String("changeType", record.ChangeType),
		)
	}

	return result
}
