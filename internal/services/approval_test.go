package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c21501/rfc-service/pkg/models"
)

func TestApprovalService_SetApproval(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewApprovalService(repo, testLogger())

	requester := repo.mustUser(models.RoleRequester)
	approver := repo.mustUser(models.RoleApprover)
	rfc := repo.mustRfc(models.StatusUnderReview, requester.ID)

	t.Run("approver records a decision", func(t *testing.T) {
		approval, err := svc.SetApproval(ctx, rfc.ID, true, "looks good", approver)
		require.NoError(t, err)
		assert.True(t, approval.Approved)
		assert.Equal(t, "looks good", approval.Comment)
	})

	t.Run("repeat decision is idempotent", func(t *testing.T) {
		_, err := svc.SetApproval(ctx, rfc.ID, true, "looks good", approver)
		require.NoError(t, err)

		approvals, err := svc.ListApprovals(ctx, rfc.ID)
		require.NoError(t, err)
		assert.Len(t, approvals, 1)
	})

	t.Run("changed decision replaces the record", func(t *testing.T) {
		approval, err := svc.SetApproval(ctx, rfc.ID, false, "second thoughts", approver)
		require.NoError(t, err)
		assert.False(t, approval.Approved)

		approvals, err := svc.ListApprovals(ctx, rfc.ID)
		require.NoError(t, err)
		require.Len(t, approvals, 1)
		assert.False(t, approvals[0].Approved)
		assert.Equal(t, "second thoughts", approvals[0].Comment)
	})

	t.Run("requester may not approve", func(t *testing.T) {
		_, err := svc.SetApproval(ctx, rfc.ID, true, "", requester)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("cab manager and admin may approve", func(t *testing.T) {
		cab := repo.mustUser(models.RoleCabManager)
		admin := repo.mustUser(models.RoleAdmin)
		_, err := svc.SetApproval(ctx, rfc.ID, true, "", cab)
		assert.NoError(t, err)
		_, err = svc.SetApproval(ctx, rfc.ID, true, "", admin)
		assert.NoError(t, err)
	})

	t.Run("unknown rfc", func(t *testing.T) {
		_, err := svc.SetApproval(ctx, 9999, true, "", approver)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}
