package repository

import (
	"context"

	"github.com/c21501/rfc-service/pkg/models"
)

// UpsertApproval inserts or refreshes the single record for the approval's
// (rfc, approver) pair. The unique constraint carries the idempotency:
// repeating the same decision only touches updated_at.
func (s *PostgresStore) UpsertApproval(ctx context.Context, approval *models.Approval) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO approvals (rfc_id, approver_id, approved, comment)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (rfc_id, approver_id)
		DO UPDATE SET approved = EXCLUDED.approved, comment = EXCLUDED.comment, updated_at = now()
		RETURNING id, created_at, updated_at`,
		approval.RfcID, approval.ApproverID, approval.Approved, approval.Comment,
	).Scan(&approval.ID, &approval.CreatedAt, &approval.UpdatedAt)
}

// ListApprovalsByRfc returns all approval records for the RFC.
func (s *PostgresStore) ListApprovalsByRfc(ctx context.Context, rfcID int64) ([]*models.Approval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, rfc_id, approver_id, approved, comment, created_at, updated_at
		FROM approvals WHERE rfc_id = $1 ORDER BY id`, rfcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []*models.Approval
	for rows.Next() {
		var a models.Approval
		if err := rows.Scan(&a.ID, &a.RfcID, &a.ApproverID, &a.Approved, &a.Comment, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		approvals = append(approvals, &a)
	}
	return approvals, rows.Err()
}
