package repository

import (
	"context"

	"github.com/c21501/rfc-service/pkg/models"
)

// AppendSnapshot writes one immutable RFC snapshot row.
func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *models.RfcSnapshot) error {
	return execAppendSnapshot(ctx, s.db, snap)
}

func execAppendSnapshot(ctx context.Context, db dbtx, snap *models.RfcSnapshot) error {
	return db.QueryRow(ctx, `
		INSERT INTO rfc_snapshots (rfc_id, operation, changed_by_id, title, description,
			implementation_date, urgency, status, attachment_ids, subsystem_link_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		snap.RfcID, snap.Operation, snap.ChangedByID, snap.Title, snap.Description,
		snap.ImplementationDate, snap.Urgency, snap.Status, snap.AttachmentIDs, snap.SubsystemLinkIDs,
	).Scan(&snap.ID, &snap.CreatedAt)
}

// ListSnapshotsByRfc returns all snapshots for the RFC, oldest first, the
// order history reconstruction diffs them in.
func (s *PostgresStore) ListSnapshotsByRfc(ctx context.Context, rfcID int64) ([]*models.RfcSnapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, rfc_id, operation, changed_by_id, title, description,
			implementation_date, urgency, status, attachment_ids, subsystem_link_ids, created_at
		FROM rfc_snapshots WHERE rfc_id = $1 ORDER BY created_at, id`, rfcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.RfcSnapshot
	for rows.Next() {
		var snap models.RfcSnapshot
		err := rows.Scan(&snap.ID, &snap.RfcID, &snap.Operation, &snap.ChangedByID,
			&snap.Title, &snap.Description, &snap.ImplementationDate, &snap.Urgency,
			&snap.Status, &snap.AttachmentIDs, &snap.SubsystemLinkIDs, &snap.CreatedAt)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// ListStatusChangesByLinks returns the status change records for the given
// subsystem link ids.
func (s *PostgresStore) ListStatusChangesByLinks(ctx context.Context, linkIDs []int64) ([]*models.StatusChange, error) {
	if len(linkIDs) == 0 {
		return nil, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, subsystem_link_id, axis, old_status, new_status, changed_by_id, created_at
		FROM status_changes WHERE subsystem_link_id = ANY($1) ORDER BY created_at, id`, linkIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*models.StatusChange
	for rows.Next() {
		var c models.StatusChange
		err := rows.Scan(&c.ID, &c.SubsystemLinkID, &c.Axis, &c.OldStatus, &c.NewStatus, &c.ChangedByID, &c.CreatedAt)
		if err != nil {
			return nil, err
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
