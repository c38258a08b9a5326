package services

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// SchedulerConfig carries the reconciliation loop settings.
type SchedulerConfig struct {
	Interval     time.Duration
	Workers      int
	SyncDebounce time.Duration
}

// Scheduler periodically re-derives the status of every active RFC from its
// subsystem states and approvals, persists changes, and pushes them to the
// board. It is the only writer of scheduler-derived status transitions.
type Scheduler struct {
	repo      repository.Repository
	boardSync *BoardSync
	cfg       SchedulerConfig
	logger    *logging.Logger

	passes       metric.Int64Counter
	statusMoves  metric.Int64Counter
	syncFailures metric.Int64Counter
}

// NewScheduler creates a reconciliation scheduler.
func NewScheduler(repo repository.Repository, boardSync *BoardSync, cfg SchedulerConfig, logger *logging.Logger) *Scheduler {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	meter := otel.Meter("rfc-service/scheduler")
	passes, _ := meter.Int64Counter("rfc_scheduler_passes_total")
	moves, _ := meter.Int64Counter("rfc_scheduler_status_changes_total")
	failures, _ := meter.Int64Counter("rfc_scheduler_board_sync_failures_total")
	return &Scheduler{
		repo:         repo,
		boardSync:    boardSync,
		cfg:          cfg,
		logger:       logger,
		passes:       passes,
		statusMoves:  moves,
		syncFailures: failures,
	}
}

// Run blocks, executing a reconciliation pass every interval until the
// context is cancelled. Errors within a pass are logged, never fatal.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("status scheduler started", "interval", s.cfg.Interval, "workers", s.cfg.Workers)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("status scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunPass(ctx); err != nil {
				s.logger.Error("scheduler pass failed", "error", err)
			}
		}
	}
}

// RunPass reconciles every active RFC once. RFCs are processed concurrently
// with a bounded worker count; each RFC fails independently.
func (s *Scheduler) RunPass(ctx context.Context) error {
	s.passes.Add(ctx, 1)

	rfcs, err := s.repo.ListActiveRfcs(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, rfc := range rfcs {
		rfc := rfc
		g.Go(func() error {
			if err := s.reconcile(gctx, rfc); err != nil {
				s.logger.Error("rfc reconciliation failed", "rfc_id", rfc.ID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// reconcile derives and, when changed, persists one RFC's status.
func (s *Scheduler) reconcile(ctx context.Context, rfc *models.Rfc) error {
	if rfc.Status.IsTerminal() {
		return nil
	}

	// A recent manual move on the board wins over derivation for the
	// debounce window, otherwise the scheduler would immediately undo it.
	if rfc.PlankaStatusChangedAt != nil && time.Since(*rfc.PlankaStatusChangedAt) < s.cfg.SyncDebounce {
		return nil
	}

	links, err := s.repo.ListLinksByRfc(ctx, rfc.ID)
	if err != nil {
		return err
	}
	approvals, err := s.repo.ListApprovalsByRfc(ctx, rfc.ID)
	if err != nil {
		return err
	}
	approvers, err := s.approverPool(ctx)
	if err != nil {
		return err
	}

	derived := DeriveStatus(rfc.Status, links, approvals, approvers)
	if derived == rfc.Status {
		return nil
	}

	oldStatus := rfc.Status
	rfc.Status = derived
	snapshot, err := captureSnapshot(ctx, s.repo, rfc, models.OpStatusChange, nil)
	if err != nil {
		rfc.Status = oldStatus
		return err
	}
	if err := s.repo.UpdateRfcWithSnapshot(ctx, rfc, snapshot); err != nil {
		rfc.Status = oldStatus
		return err
	}

	s.statusMoves.Add(ctx, 1)
	s.logger.Info("rfc status derived", "rfc_id", rfc.ID, "old", oldStatus, "new", derived)

	// Board projection happens after the status is committed; a board
	// failure leaves the local state authoritative.
	if err := s.boardSync.MoveCardForStatus(ctx, rfc); err != nil {
		s.syncFailures.Add(ctx, 1)
		s.logger.Warn("board move after status change failed", "rfc_id", rfc.ID, "error", err)
	}
	return nil
}

// approverPool returns the users whose approval is required for an RFC to
// advance. Only dedicated approvers form the quorum; CAB managers and
// administrators may cast votes but their silence does not hold an RFC back.
func (s *Scheduler) approverPool(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsersByRole(ctx, models.RoleApprover)
}

// buildStatusSnapshot fills the scalar part of a history snapshot from the
// RFC's current state. changedBy is nil for scheduler-driven transitions.
// Callers snapshotting an existing RFC use captureSnapshot, which adds the
// attachment and subsystem-link id sets.
func buildStatusSnapshot(rfc *models.Rfc, changedBy *int64) *models.RfcSnapshot {
	return &models.RfcSnapshot{
		RfcID:              rfc.ID,
		Operation:          models.OpStatusChange,
		ChangedByID:        changedBy,
		Title:              rfc.Title,
		Description:        rfc.Description,
		ImplementationDate: rfc.ImplementationDate,
		Urgency:            rfc.Urgency,
		Status:             rfc.Status,
	}
}
