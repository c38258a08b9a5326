package services

import "github.com/c21501/rfc-service/pkg/models"

// DeriveStatus computes the RFC's aggregate status from its subsystems'
// confirmation/execution states and the approvers' decisions. It is a pure
// function; the scheduler owns all I/O around it.
//
// The rules apply in order; a later rule is only reached when the earlier
// ones do not match:
//
//  1. Terminal statuses are never recomputed.
//  2. Any subsystem with a rejected confirmation rejects the RFC.
//  3. Any subsystem still pending confirmation keeps the RFC in NEW.
//  4. When approvers exist and every one of them has a live approval:
//     all executions done means IMPLEMENTED, otherwise APPROVED.
//  5. Anything else, including a system with no approvers at all, is
//     UNDER_REVIEW.
func DeriveStatus(current models.RfcStatus, subsystems []*models.AffectedSubsystem, approvals []*models.Approval, approvers []*models.User) models.RfcStatus {
	if current.IsTerminal() {
		return current
	}

	for _, sub := range subsystems {
		if sub.ConfirmationStatus == models.ConfirmationRejected {
			return models.StatusRejected
		}
	}
	for _, sub := range subsystems {
		if sub.ConfirmationStatus == models.ConfirmationPending {
			return models.StatusNew
		}
	}

	if len(approvers) > 0 && allApproved(approvals, approvers) {
		if allExecutionsDone(subsystems) {
			return models.StatusImplemented
		}
		return models.StatusApproved
	}

	return models.StatusUnderReview
}

func allApproved(approvals []*models.Approval, approvers []*models.User) bool {
	approvedBy := make(map[int64]bool, len(approvals))
	for _, a := range approvals {
		if a.Approved {
			approvedBy[a.ApproverID] = true
		}
	}
	for _, approver := range approvers {
		if !approvedBy[approver.ID] {
			return false
		}
	}
	return true
}

func allExecutionsDone(subsystems []*models.AffectedSubsystem) bool {
	for _, sub := range subsystems {
		if sub.ExecutionStatus != models.ExecutionDone {
			return false
		}
	}
	return true
}
