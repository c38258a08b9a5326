package services

import (
	"context"
	"fmt"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// ApprovalService keeps the per-approver approval ledger: at most one live
// record per (RFC, approver) pair, upserted on every decision.
type ApprovalService struct {
	repo   repository.Repository
	logger *logging.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(repo repository.Repository, logger *logging.Logger) *ApprovalService {
	return &ApprovalService{repo: repo, logger: logger}
}

// SetApproval records the actor's decision for the RFC. Repeating the same
// decision is not an error and produces no duplicate record.
func (s *ApprovalService) SetApproval(ctx context.Context, rfcID int64, approved bool, comment string, actor *models.User) (*models.Approval, error) {
	if !actor.Role.CanApprove() {
		return nil, fmt.Errorf("user %d may not approve RFCs: %w", actor.ID, models.ErrForbidden)
	}

	if _, err := s.repo.GetRfc(ctx, rfcID); err != nil {
		return nil, fmt.Errorf("load rfc %d: %w", rfcID, err)
	}

	approval := &models.Approval{
		RfcID:      rfcID,
		ApproverID: actor.ID,
		Approved:   approved,
		Comment:    comment,
	}
	if err := s.repo.UpsertApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("upsert approval: %w", err)
	}

	s.logger.Info("approval recorded", "rfc_id", rfcID, "approver_id", actor.ID, "approved", approved)
	return approval, nil
}

// ListApprovals returns all approval records for the RFC.
func (s *ApprovalService) ListApprovals(ctx context.Context, rfcID int64) ([]*models.Approval, error) {
	if _, err := s.repo.GetRfc(ctx, rfcID); err != nil {
		return nil, fmt.Errorf("load rfc %d: %w", rfcID, err)
	}
	return s.repo.ListApprovalsByRfc(ctx, rfcID)
}
