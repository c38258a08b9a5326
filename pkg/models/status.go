package models

import "fmt"

// RfcStatus is the aggregate lifecycle status of an RFC. The scheduler derives
// it from subsystem and approval state; IMPLEMENTED and REJECTED are terminal
// and only a human board move or an administrator may change them afterwards.
type RfcStatus string

const (
	StatusNew         RfcStatus = "NEW"
	StatusUnderReview RfcStatus = "UNDER_REVIEW"
	StatusApproved    RfcStatus = "APPROVED"
	StatusImplemented RfcStatus = "IMPLEMENTED"
	StatusRejected    RfcStatus = "REJECTED"
)

// IsTerminal reports whether the periodic scheduler must leave this status
// alone.
func (s RfcStatus) IsTerminal() bool {
	return s == StatusImplemented || s == StatusRejected
}

// ParseRfcStatus validates a raw status value.
func ParseRfcStatus(raw string) (RfcStatus, error) {
	switch RfcStatus(raw) {
	case StatusNew, StatusUnderReview, StatusApproved, StatusImplemented, StatusRejected:
		return RfcStatus(raw), nil
	}
	return "", fmt.Errorf("unknown rfc status %q", raw)
}

// ConfirmationStatus tracks whether the executor of an affected subsystem has
// acknowledged feasibility of the change.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "PENDING"
	ConfirmationConfirmed ConfirmationStatus = "CONFIRMED"
	ConfirmationRejected  ConfirmationStatus = "REJECTED"
)

// ExecutionStatus tracks progress of actually carrying out the change on one
// subsystem. The only legal movement is one step forward at a time.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "PENDING"
	ExecutionInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionDone       ExecutionStatus = "DONE"
)

// Rank returns the position of the status in the forward-only execution order.
func (s ExecutionStatus) Rank() int {
	switch s {
	case ExecutionPending:
		return 0
	case ExecutionInProgress:
		return 1
	case ExecutionDone:
		return 2
	}
	return -1
}

// StatusAxis tags which of the two independent subsystem status fields a
// history record belongs to.
type StatusAxis string

const (
	AxisConfirmation StatusAxis = "CONFIRMATION"
	AxisExecution    StatusAxis = "EXECUTION"
)

// Urgency of an RFC.
type Urgency string

const (
	UrgencyPlanned   Urgency = "PLANNED"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyEmergency Urgency = "EMERGENCY"
)

// ParseUrgency validates a raw urgency value.
func ParseUrgency(raw string) (Urgency, error) {
	switch Urgency(raw) {
	case UrgencyPlanned, UrgencyUrgent, UrgencyEmergency:
		return Urgency(raw), nil
	}
	return "", fmt.Errorf("unknown urgency %q", raw)
}

// UserRole is the user's role in the RFC workflow.
type UserRole string

const (
	RoleRequester  UserRole = "REQUESTER"
	RoleExecutor   UserRole = "EXECUTOR"
	RoleApprover   UserRole = "RFC_APPROVER"
	RoleCabManager UserRole = "CAB_MANAGER"
	RoleAdmin      UserRole = "ADMIN"
)

// CanApprove reports whether the role may approve or unapprove an RFC.
func (r UserRole) CanApprove() bool {
	return r == RoleApprover || r == RoleCabManager || r == RoleAdmin
}

// SnapshotOperation distinguishes why an RFC snapshot was taken.
type SnapshotOperation string

const (
	OpCreate       SnapshotOperation = "CREATE"
	OpUpdate       SnapshotOperation = "UPDATE"
	OpStatusChange SnapshotOperation = "STATUS_CHANGE"
)
