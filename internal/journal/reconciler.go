package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subwise/resilience/internal/domain"
	"github.com/subwise/resilience/internal/observability"
	"github.com/subwise/resilience/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultReconcileInterval = 5 * time.Minute
	defaultRetention         = 30 * 24 * time.Hour
)

// Report summarizes one reconciliation pass.
type Report struct {
	Scanned  int
	Replayed int
	Deleted  int
	Purged   int
	Errors   []error
}

// Reconciler drains the backup directory back into the primary store once it
// is reachable again. Artifacts whose record already exists are deleted;
// missing records are replayed first. One bad artifact never stops the pass.
type Reconciler struct {
	repo      repository.HistoryRepository
	backups   *BackupStore
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewReconciler(
	repo repository.HistoryRepository,
	backups *BackupStore,
	interval time.Duration,
	retention time.Duration,
	logger *zap.Logger,
) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("history repository is required")
	}
	if backups == nil {
		return nil, fmt.Errorf("backup store is required")
	}
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if retention <= 0 {
		retention = defaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Reconciler{
		repo:      repo,
		backups:   backups,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (r *Reconciler) SetMetrics(metrics *observability.Metrics) {
	if r == nil {
		return
	}
	r.metrics = metrics
}

// Start runs reconciliation passes on a ticker until context cancellation.
func (r *Reconciler) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial pass so artifacts from a previous outage do not wait
	// for the first ticker edge.
	r.runAndLog(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			r.runAndLog(ctx)
		}
	}
}

func (r *Reconciler) runAndLog(ctx context.Context) {
	report, err := r.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("reconciliation pass failed", zap.Error(err))
		}
		return
	}

	if report.Scanned > 0 || report.Purged > 0 || len(report.Errors) > 0 {
		r.logger.Info("reconciliation pass finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("replayed", report.Replayed),
			zap.Int("deleted", report.Deleted),
			zap.Int("purged", report.Purged),
			zap.Int("errors", len(report.Errors)),
		)
	}
}

// Run performs a single reconciliation pass over all backup artifacts,
// then purges artifacts older than the retention horizon.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	report := Report{}

	names, err := r.backups.List()
	if err != nil {
		return report, fmt.Errorf("failed to list backup artifacts: %w", err)
	}

	for _, name := range names {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		report.Scanned++
		replayed, err := r.reconcileArtifact(ctx, name)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("%s: %w", name, err))
			r.metrics.IncReconciledArtifact("error")
			r.logger.Warn("failed to reconcile backup artifact",
				zap.String("artifact", name),
				zap.Error(err),
			)
			continue
		}

		if replayed {
			report.Replayed++
		} else {
			report.Deleted++
		}
	}

	purged, err := r.backups.Purge(r.now().Add(-r.retention))
	if err != nil {
		report.Errors = append(report.Errors, fmt.Errorf("retention purge: %w", err))
	}
	report.Purged = purged
	for i := 0; i < purged; i++ {
		r.metrics.IncReconciledArtifact("purged")
	}

	return report, nil
}

// reconcileArtifact brings one artifact and the primary store into agreement
// and reports whether a replay was needed.
func (r *Reconciler) reconcileArtifact(ctx context.Context, name string) (bool, error) {
	record, err := r.backups.Read(name)
	if err != nil {
		return false, err
	}

	replayed := false
	_, err = r.repo.FindMatch(ctx, record.SubscriptionID, record.UserID, record.ChangeType, record.CreatedAt)
	switch {
	case err == nil:
		// Already in the primary store; the artifact has served its purpose.
		r.metrics.IncReconciledArtifact("deleted")

	case errors.Is(err, domain.ErrNotFound):
		if createErr := r.repo.Create(ctx, record); createErr != nil {
			return false, fmt.Errorf("replay failed: %w", createErr)
		}
		replayed = true
		r.metrics.IncReconciledArtifact("replayed")
		r.logger.Info("replayed backup artifact into primary store",
			zap.String("artifact", name),
			zap.String("subscriptionId", record.SubscriptionID),
			zap.String("recordId", record.ID),
		)

	default:
		return false, fmt.Errorf("match lookup failed: %w", err)
	}

	if err := r.backups.Delete(name); err != nil {
		return replayed, err
	}
	return replayed, nil
}
