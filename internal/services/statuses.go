package services

import (
	"context"
	"fmt"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// ValidateConfirmationTransition checks a confirmation status change. The
// only legal movement is PENDING to CONFIRMED or REJECTED, exactly once.
func ValidateConfirmationTransition(current, target models.ConfirmationStatus) error {
	if current == target {
		return &models.InvalidTransitionError{
			Axis: models.AxisConfirmation, Current: string(current), Target: string(target),
			Reason: "status already set",
		}
	}
	if current != models.ConfirmationPending {
		return &models.InvalidTransitionError{
			Axis: models.AxisConfirmation, Current: string(current), Target: string(target),
			Reason: "confirmation can only change from PENDING",
		}
	}
	if target != models.ConfirmationConfirmed && target != models.ConfirmationRejected {
		return &models.InvalidTransitionError{
			Axis: models.AxisConfirmation, Current: string(current), Target: string(target),
			Reason: "target must be CONFIRMED or REJECTED",
		}
	}
	return nil
}

// ValidateExecutionTransition checks an execution status change. Execution
// only moves forward, one step at a time: PENDING, IN_PROGRESS, DONE.
func ValidateExecutionTransition(current, target models.ExecutionStatus) error {
	if current == target {
		return &models.InvalidTransitionError{
			Axis: models.AxisExecution, Current: string(current), Target: string(target),
			Reason: "status already set",
		}
	}
	cur, tgt := current.Rank(), target.Rank()
	if tgt < 0 || cur < 0 {
		return &models.InvalidTransitionError{
			Axis: models.AxisExecution, Current: string(current), Target: string(target),
			Reason: "unknown execution status",
		}
	}
	if tgt <= cur {
		return &models.InvalidTransitionError{
			Axis: models.AxisExecution, Current: string(current), Target: string(target),
			Reason: "cannot move back to an earlier status",
		}
	}
	if tgt-cur > 1 {
		return &models.InvalidTransitionError{
			Axis: models.AxisExecution, Current: string(current), Target: string(target),
			Reason: "cannot skip an intermediate status",
		}
	}
	return nil
}

// StatusService applies confirmation and execution transitions to one
// RFC-to-subsystem link. Every successful transition appends a status change
// record; the scheduler observes the result on its next pass, nothing is
// recomputed synchronously here.
type StatusService struct {
	repo   repository.Repository
	logger *logging.Logger
}

// NewStatusService creates a new StatusService.
func NewStatusService(repo repository.Repository, logger *logging.Logger) *StatusService {
	return &StatusService{repo: repo, logger: logger}
}

// UpdateConfirmationStatus transitions the link's confirmation axis.
func (s *StatusService) UpdateConfirmationStatus(ctx context.Context, rfcID, linkID int64, target models.ConfirmationStatus, actor *models.User) (*models.AffectedSubsystem, error) {
	link, err := s.repo.GetLink(ctx, rfcID, linkID)
	if err != nil {
		return nil, fmt.Errorf("load subsystem link: %w", err)
	}

	if err := checkLinkAccess(link, actor); err != nil {
		return nil, err
	}
	if err := ValidateConfirmationTransition(link.ConfirmationStatus, target); err != nil {
		return nil, err
	}

	change := &models.StatusChange{
		SubsystemLinkID: link.ID,
		Axis:            models.AxisConfirmation,
		OldStatus:       string(link.ConfirmationStatus),
		NewStatus:       string(target),
		ChangedByID:     actor.ID,
	}
	link.ConfirmationStatus = target

	if err := s.repo.UpdateLinkStatus(ctx, link, change); err != nil {
		return nil, fmt.Errorf("persist confirmation status: %w", err)
	}

	s.logger.Info("confirmation status updated", "rfc_id", rfcID, "link_id", linkID, "status", target)
	return link, nil
}

// UpdateExecutionStatus transitions the link's execution axis.
func (s *StatusService) UpdateExecutionStatus(ctx context.Context, rfcID, linkID int64, target models.ExecutionStatus, actor *models.User) (*models.AffectedSubsystem, error) {
	link, err := s.repo.GetLink(ctx, rfcID, linkID)
	if err != nil {
		return nil, fmt.Errorf("load subsystem link: %w", err)
	}

	if err := checkLinkAccess(link, actor); err != nil {
		return nil, err
	}
	if err := ValidateExecutionTransition(link.ExecutionStatus, target); err != nil {
		return nil, err
	}

	change := &models.StatusChange{
		SubsystemLinkID: link.ID,
		Axis:            models.AxisExecution,
		OldStatus:       string(link.ExecutionStatus),
		NewStatus:       string(target),
		ChangedByID:     actor.ID,
	}
	link.ExecutionStatus = target

	if err := s.repo.UpdateLinkStatus(ctx, link, change); err != nil {
		return nil, fmt.Errorf("persist execution status: %w", err)
	}

	s.logger.Info("execution status updated", "rfc_id", rfcID, "link_id", linkID, "status", target)
	return link, nil
}

// checkLinkAccess allows only the link's designated executor or an
// administrator.
func checkLinkAccess(link *models.AffectedSubsystem, actor *models.User) error {
	if actor.Role == models.RoleAdmin || actor.ID == link.ExecutorID {
		return nil
	}
	return fmt.Errorf("user %d may not change subsystem link %d: %w", actor.ID, link.ID, models.ErrForbidden)
}
