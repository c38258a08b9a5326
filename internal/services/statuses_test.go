package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c21501/rfc-service/pkg/models"
)

func TestValidateConfirmationTransition(t *testing.T) {
	tests := []struct {
		name    string
		current models.ConfirmationStatus
		target  models.ConfirmationStatus
		wantErr bool
	}{
		{"pending to confirmed", models.ConfirmationPending, models.ConfirmationConfirmed, false},
		{"pending to rejected", models.ConfirmationPending, models.ConfirmationRejected, false},
		{"confirmed is final", models.ConfirmationConfirmed, models.ConfirmationRejected, true},
		{"rejected is final", models.ConfirmationRejected, models.ConfirmationConfirmed, true},
		{"no reset to pending", models.ConfirmationConfirmed, models.ConfirmationPending, true},
		{"same status", models.ConfirmationPending, models.ConfirmationPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConfirmationTransition(tt.current, tt.target)
			if tt.wantErr {
				var transition *models.InvalidTransitionError
				require.Error(t, err)
				assert.True(t, errors.As(err, &transition))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateExecutionTransition(t *testing.T) {
	tests := []struct {
		name    string
		current models.ExecutionStatus
		target  models.ExecutionStatus
		wantErr bool
	}{
		{"pending to in progress", models.ExecutionPending, models.ExecutionInProgress, false},
		{"in progress to done", models.ExecutionInProgress, models.ExecutionDone, false},
		{"skip to done", models.ExecutionPending, models.ExecutionDone, true},
		{"regression from done", models.ExecutionDone, models.ExecutionInProgress, true},
		{"regression to pending", models.ExecutionInProgress, models.ExecutionPending, true},
		{"same status", models.ExecutionDone, models.ExecutionDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExecutionTransition(tt.current, tt.target)
			if tt.wantErr {
				var transition *models.InvalidTransitionError
				require.Error(t, err)
				assert.True(t, errors.As(err, &transition))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusService_UpdateConfirmationStatus(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewStatusService(repo, testLogger())

	executor := repo.mustUser(models.RoleExecutor)
	rfc := repo.mustRfc(models.StatusNew, executor.ID)
	link := repo.mustLink(rfc.ID, executor.ID, models.ConfirmationPending, models.ExecutionPending)

	t.Run("executor confirms once", func(t *testing.T) {
		updated, err := svc.UpdateConfirmationStatus(ctx, rfc.ID, link.ID, models.ConfirmationConfirmed, executor)
		require.NoError(t, err)
		assert.Equal(t, models.ConfirmationConfirmed, updated.ConfirmationStatus)

		changes, err := repo.ListStatusChangesByLinks(ctx, []int64{link.ID})
		require.NoError(t, err)
		require.Len(t, changes, 1)
		assert.Equal(t, models.AxisConfirmation, changes[0].Axis)
		assert.Equal(t, string(models.ConfirmationPending), changes[0].OldStatus)
		assert.Equal(t, string(models.ConfirmationConfirmed), changes[0].NewStatus)
		assert.Equal(t, executor.ID, changes[0].ChangedByID)
	})

	t.Run("second confirmation fails", func(t *testing.T) {
		_, err := svc.UpdateConfirmationStatus(ctx, rfc.ID, link.ID, models.ConfirmationRejected, executor)
		var transition *models.InvalidTransitionError
		assert.True(t, errors.As(err, &transition))
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		other := repo.mustUser(models.RoleExecutor)
		fresh := repo.mustLink(rfc.ID, executor.ID, models.ConfirmationPending, models.ExecutionPending)
		_, err := svc.UpdateConfirmationStatus(ctx, rfc.ID, fresh.ID, models.ConfirmationConfirmed, other)
		assert.ErrorIs(t, err, models.ErrForbidden)
	})

	t.Run("admin may act for any executor", func(t *testing.T) {
		admin := repo.mustUser(models.RoleAdmin)
		fresh := repo.mustLink(rfc.ID, executor.ID, models.ConfirmationPending, models.ExecutionPending)
		_, err := svc.UpdateConfirmationStatus(ctx, rfc.ID, fresh.ID, models.ConfirmationConfirmed, admin)
		assert.NoError(t, err)
	})

	t.Run("unknown link", func(t *testing.T) {
		_, err := svc.UpdateConfirmationStatus(ctx, rfc.ID, 9999, models.ConfirmationConfirmed, executor)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStatusService_UpdateExecutionStatus(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	svc := NewStatusService(repo, testLogger())

	executor := repo.mustUser(models.RoleExecutor)
	rfc := repo.mustRfc(models.StatusApproved, executor.ID)
	link := repo.mustLink(rfc.ID, executor.ID, models.ConfirmationConfirmed, models.ExecutionPending)

	updated, err := svc.UpdateExecutionStatus(ctx, rfc.ID, link.ID, models.ExecutionInProgress, executor)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionInProgress, updated.ExecutionStatus)

	updated, err = svc.UpdateExecutionStatus(ctx, rfc.ID, link.ID, models.ExecutionDone, executor)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionDone, updated.ExecutionStatus)

	changes, err := repo.ListStatusChangesByLinks(ctx, []int64{link.ID})
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	// Link is done; nothing further is legal.
	_, err = svc.UpdateExecutionStatus(ctx, rfc.ID, link.ID, models.ExecutionInProgress, executor)
	var transition *models.InvalidTransitionError
	assert.True(t, errors.As(err, &transition))
}
