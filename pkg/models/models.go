package models

import (
	"time"
)

// Rfc is a tracked change request moving through confirmation, approval and
// execution. Local state is authoritative; the Planka card is a projection.
type Rfc struct {
	ID                    int64      `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description"`
	ImplementationDate    time.Time  `json:"implementation_date"`
	Urgency               Urgency    `json:"urgency"`
	Status                RfcStatus  `json:"status"`
	RequesterID           int64      `json:"requester_id"`
	PlankaCardID          *string    `json:"planka_card_id,omitempty"`
	PlankaStatusChangedAt *time.Time `json:"planka_status_changed_at,omitempty"`
	DeletedAt             *time.Time `json:"deleted_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// AffectedSubsystem links one RFC to one subsystem it impacts. Each link is
// owned by an executor and carries two independent status axes.
type AffectedSubsystem struct {
	ID                 int64              `json:"id"`
	RfcID              int64              `json:"rfc_id"`
	SubsystemID        int64              `json:"subsystem_id"`
	ExecutorID         int64              `json:"executor_id"`
	ConfirmationStatus ConfirmationStatus `json:"confirmation_status"`
	ExecutionStatus    ExecutionStatus    `json:"execution_status"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Approval is the single live yes/no record of one approver for one RFC.
type Approval struct {
	ID         int64     `json:"id"`
	RfcID      int64     `json:"rfc_id"`
	ApproverID int64     `json:"approver_id"`
	Approved   bool      `json:"approved"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusChange is an immutable record of a single subsystem status-field
// transition on one axis.
type StatusChange struct {
	ID              int64      `json:"id"`
	SubsystemLinkID int64      `json:"subsystem_link_id"`
	Axis            StatusAxis `json:"axis"`
	OldStatus       string     `json:"old_status"`
	NewStatus       string     `json:"new_status"`
	ChangedByID     int64      `json:"changed_by_id"`
	CreatedAt       time.Time  `json:"created_at"`
}

// RfcSnapshot is an immutable full-field snapshot of an RFC taken on every
// create, update and externally-driven status change, together with the
// attachment and subsystem-link id sets active at that moment. History
// reconstruction diffs consecutive snapshots; rows are never mutated.
type RfcSnapshot struct {
	ID                 int64             `json:"id"`
	RfcID              int64             `json:"rfc_id"`
	Operation          SnapshotOperation `json:"operation"`
	ChangedByID        *int64            `json:"changed_by_id,omitempty"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	ImplementationDate time.Time         `json:"implementation_date"`
	Urgency            Urgency           `json:"urgency"`
	Status             RfcStatus         `json:"status"`
	AttachmentIDs      []int64           `json:"attachment_ids"`
	SubsystemLinkIDs   []int64           `json:"subsystem_link_ids"`
	CreatedAt          time.Time         `json:"created_at"`
}

// User is a workflow participant. PlankaUserID links the local account to the
// board account once a webhook has established the mapping.
type User struct {
	ID           int64    `json:"id"`
	Username     string   `json:"username"`
	Email        string   `json:"email"`
	FirstName    string   `json:"first_name"`
	LastName     string   `json:"last_name"`
	Role         UserRole `json:"role"`
	PlankaUserID *string  `json:"planka_user_id,omitempty"`
}

// FullName returns the display name used in history events.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Subsystem is the reference record behind an AffectedSubsystem link,
// denormalized with its parent system name for history display.
type Subsystem struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	SystemName string `json:"system_name"`
}

// Attachment metadata, looked up by id when enriching history events.
type Attachment struct {
	ID               int64  `json:"id"`
	OriginalFilename string `json:"original_filename"`
}
