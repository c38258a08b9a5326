package repository

import (
	"context"

	"github.com/c21501/rfc-service/pkg/models"
)

// RfcStore persists RFC aggregates. Reads exclude soft-deleted rows.
type RfcStore interface {
	CreateRfc(ctx context.Context, rfc *models.Rfc) error
	// CreateRfcWithLinks inserts the RFC, its subsystem links and the creation
	// snapshot inside one transaction. Generated link ids are recorded on the
	// snapshot's SubsystemLinkIDs.
	CreateRfcWithLinks(ctx context.Context, rfc *models.Rfc, links []*models.AffectedSubsystem, snap *models.RfcSnapshot) error
	GetRfc(ctx context.Context, id int64) (*models.Rfc, error)
	// ListActiveRfcs returns every non-deleted RFC, for the scheduler pass.
	ListActiveRfcs(ctx context.Context) ([]*models.Rfc, error)
	UpdateRfc(ctx context.Context, rfc *models.Rfc) error
	FindRfcByCardID(ctx context.Context, cardID string) (*models.Rfc, error)
	SoftDeleteRfc(ctx context.Context, id int64) error
	// UpdateRfcWithSnapshot applies an RFC row update and appends a snapshot
	// inside one transaction, so a partially-applied webhook event is never
	// observed.
	UpdateRfcWithSnapshot(ctx context.Context, rfc *models.Rfc, snap *models.RfcSnapshot) error
}

// SubsystemStore persists RFC-to-subsystem links and subsystem reference data.
type SubsystemStore interface {
	CreateLink(ctx context.Context, link *models.AffectedSubsystem) error
	GetLink(ctx context.Context, rfcID, linkID int64) (*models.AffectedSubsystem, error)
	ListLinksByRfc(ctx context.Context, rfcID int64) ([]*models.AffectedSubsystem, error)
	// UpdateLinkStatus persists the new status value and appends the status
	// change record inside one transaction.
	UpdateLinkStatus(ctx context.Context, link *models.AffectedSubsystem, change *models.StatusChange) error
	GetSubsystemsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Subsystem, error)
	CreateSubsystem(ctx context.Context, sub *models.Subsystem) error
}

// ApprovalStore persists per-approver approval records.
type ApprovalStore interface {
	// UpsertApproval inserts or updates the single record for the approval's
	// (rfc, approver) pair. CreatedAt is set only on first insert.
	UpsertApproval(ctx context.Context, approval *models.Approval) error
	ListApprovalsByRfc(ctx context.Context, rfcID int64) ([]*models.Approval, error)
}

// HistoryStore persists the append-only audit inputs.
type HistoryStore interface {
	AppendSnapshot(ctx context.Context, snap *models.RfcSnapshot) error
	// ListSnapshotsByRfc returns snapshots oldest first.
	ListSnapshotsByRfc(ctx context.Context, rfcID int64) ([]*models.RfcSnapshot, error)
	ListStatusChangesByLinks(ctx context.Context, linkIDs []int64) ([]*models.StatusChange, error)
}

// UserStore looks up workflow participants.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByPlankaID(ctx context.Context, plankaUserID string) (*models.User, error)
	ListUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// AttachmentStore resolves attachment metadata for history enrichment.
type AttachmentStore interface {
	GetAttachmentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Attachment, error)
	ListAttachmentIDsByRfc(ctx context.Context, rfcID int64) ([]int64, error)
}

// Repository is the full persistence surface consumed by the services.
type Repository interface {
	RfcStore
	SubsystemStore
	ApprovalStore
	HistoryStore
	UserStore
	AttachmentStore
}
