package services

import (
	"context"
	"fmt"
	"time"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

// SubsystemInput declares one affected subsystem on RFC creation.
type SubsystemInput struct {
	SubsystemID int64 `json:"subsystem_id"`
	ExecutorID  int64 `json:"executor_id"`
}

// RfcInput carries the user-editable RFC fields.
type RfcInput struct {
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	ImplementationDate time.Time        `json:"implementation_date"`
	Urgency            models.Urgency   `json:"urgency"`
	Subsystems         []SubsystemInput `json:"subsystems,omitempty"`
}

// RfcService owns the RFC aggregate lifecycle: creation, field updates and
// soft deletion, each recorded as a history snapshot and projected to the
// board after commit.
type RfcService struct {
	repo      repository.Repository
	boardSync *BoardSync
	autoSync  bool
	logger    *logging.Logger
}

// NewRfcService creates an RFC service. autoSync controls whether mutations
// are pushed to the board immediately.
func NewRfcService(repo repository.Repository, boardSync *BoardSync, autoSync bool, logger *logging.Logger) *RfcService {
	return &RfcService{repo: repo, boardSync: boardSync, autoSync: autoSync, logger: logger}
}

// Create registers a new RFC with its affected subsystems. The RFC starts in
// NEW with every subsystem pending on both axes.
func (s *RfcService) Create(ctx context.Context, input *RfcInput, actor *models.User) (*models.Rfc, error) {
	if input.Title == "" {
		return nil, &models.ValidationError{Field: "title", Reason: "required"}
	}
	if _, err := models.ParseUrgency(string(input.Urgency)); err != nil {
		return nil, &models.ValidationError{Field: "urgency", Reason: err.Error()}
	}
	if input.ImplementationDate.IsZero() {
		return nil, &models.ValidationError{Field: "implementation_date", Reason: "required"}
	}

	rfc := &models.Rfc{
		Title:              input.Title,
		Description:        input.Description,
		ImplementationDate: input.ImplementationDate,
		Urgency:            input.Urgency,
		Status:             models.StatusNew,
		RequesterID:        actor.ID,
	}
	links := make([]*models.AffectedSubsystem, 0, len(input.Subsystems))
	for _, sub := range input.Subsystems {
		links = append(links, &models.AffectedSubsystem{
			SubsystemID:        sub.SubsystemID,
			ExecutorID:         sub.ExecutorID,
			ConfirmationStatus: models.ConfirmationPending,
			ExecutionStatus:    models.ExecutionPending,
		})
	}

	snap := buildStatusSnapshot(rfc, &actor.ID)
	snap.Operation = models.OpCreate
	if err := s.repo.CreateRfcWithLinks(ctx, rfc, links, snap); err != nil {
		return nil, fmt.Errorf("create rfc: %w", err)
	}

	s.logger.Info("rfc created", "rfc_id", rfc.ID, "requester_id", actor.ID, "subsystems", len(links))
	s.pushToBoard(ctx, rfc)
	return rfc, nil
}

// Get returns one RFC.
func (s *RfcService) Get(ctx context.Context, id int64) (*models.Rfc, error) {
	return s.repo.GetRfc(ctx, id)
}

// List returns every active RFC.
func (s *RfcService) List(ctx context.Context) ([]*models.Rfc, error) {
	return s.repo.ListActiveRfcs(ctx)
}

// Update patches the user-editable fields. Only the requester or an
// administrator may edit an RFC.
func (s *RfcService) Update(ctx context.Context, id int64, input *RfcInput, actor *models.User) (*models.Rfc, error) {
	rfc, err := s.repo.GetRfc(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkRfcAccess(rfc, actor); err != nil {
		return nil, err
	}

	if input.Title != "" {
		rfc.Title = input.Title
	}
	if input.Description != "" {
		rfc.Description = input.Description
	}
	if !input.ImplementationDate.IsZero() {
		rfc.ImplementationDate = input.ImplementationDate
	}
	if input.Urgency != "" {
		if _, err := models.ParseUrgency(string(input.Urgency)); err != nil {
			return nil, &models.ValidationError{Field: "urgency", Reason: err.Error()}
		}
		rfc.Urgency = input.Urgency
	}

	snap, err := captureSnapshot(ctx, s.repo, rfc, models.OpUpdate, &actor.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRfcWithSnapshot(ctx, rfc, snap); err != nil {
		return nil, fmt.Errorf("update rfc %d: %w", id, err)
	}

	s.logger.Info("rfc updated", "rfc_id", rfc.ID, "actor_id", actor.ID)
	s.pushToBoard(ctx, rfc)
	return rfc, nil
}

// SoftDelete marks the RFC deleted and removes its board card. History rows
// are retained.
func (s *RfcService) SoftDelete(ctx context.Context, id int64, actor *models.User) error {
	rfc, err := s.repo.GetRfc(ctx, id)
	if err != nil {
		return err
	}
	if err := checkRfcAccess(rfc, actor); err != nil {
		return err
	}

	if err := s.repo.SoftDeleteRfc(ctx, id); err != nil {
		return err
	}
	s.logger.Info("rfc soft-deleted", "rfc_id", id, "actor_id", actor.ID)

	if s.autoSync {
		s.boardSync.DeleteCard(ctx, rfc)
	}
	return nil
}

// captureSnapshot records the RFC's current scalar fields together with its
// attachment and subsystem-link id sets as they stand at this moment. Every
// snapshot of an existing RFC goes through here so its sets reflect reality,
// no matter which operation produced it.
func captureSnapshot(ctx context.Context, repo repository.Repository, rfc *models.Rfc, op models.SnapshotOperation, changedBy *int64) (*models.RfcSnapshot, error) {
	snap := buildStatusSnapshot(rfc, changedBy)
	snap.Operation = op

	links, err := repo.ListLinksByRfc(ctx, rfc.ID)
	if err != nil {
		return nil, err
	}
	for _, link := range links {
		snap.SubsystemLinkIDs = append(snap.SubsystemLinkIDs, link.ID)
	}

	attIDs, err := repo.ListAttachmentIDsByRfc(ctx, rfc.ID)
	if err != nil {
		return nil, err
	}
	snap.AttachmentIDs = attIDs
	return snap, nil
}

// pushToBoard projects the RFC to the board, best effort.
func (s *RfcService) pushToBoard(ctx context.Context, rfc *models.Rfc) {
	if !s.autoSync {
		return
	}
	if err := s.boardSync.SyncRfc(ctx, rfc); err != nil {
		s.logger.Warn("board sync after rfc mutation failed", "rfc_id", rfc.ID, "error", err)
	}
}

// checkRfcAccess allows the requester and administrators.
func checkRfcAccess(rfc *models.Rfc, actor *models.User) error {
	if actor.Role == models.RoleAdmin || rfc.RequesterID == actor.ID {
		return nil
	}
	return fmt.Errorf("user %d may not modify rfc %d: %w", actor.ID, rfc.ID, models.ErrForbidden)
}
