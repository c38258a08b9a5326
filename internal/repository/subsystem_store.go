package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/c21501/rfc-service/pkg/models"
)

const linkColumns = `id, rfc_id, subsystem_id, executor_id, confirmation_status, execution_status, created_at, updated_at`

// CreateLink inserts a new RFC-to-subsystem link.
func (s *PostgresStore) CreateLink(ctx context.Context, link *models.AffectedSubsystem) error {
	return execCreateLink(ctx, s.db, link)
}

func execCreateLink(ctx context.Context, db dbtx, link *models.AffectedSubsystem) error {
	return db.QueryRow(ctx, `
		INSERT INTO affected_subsystems (rfc_id, subsystem_id, executor_id, confirmation_status, execution_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		link.RfcID, link.SubsystemID, link.ExecutorID, link.ConfirmationStatus, link.ExecutionStatus,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)
}

// GetLink retrieves one link scoped to its RFC.
func (s *PostgresStore) GetLink(ctx context.Context, rfcID, linkID int64) (*models.AffectedSubsystem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+linkColumns+` FROM affected_subsystems WHERE id = $1 AND rfc_id = $2`, linkID, rfcID)
	return scanLink(row)
}

// ListLinksByRfc returns all links for the RFC.
func (s *PostgresStore) ListLinksByRfc(ctx context.Context, rfcID int64) ([]*models.AffectedSubsystem, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+linkColumns+` FROM affected_subsystems WHERE rfc_id = $1 ORDER BY id`, rfcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []*models.AffectedSubsystem
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// UpdateLinkStatus persists both status axes of the link and appends the
// status change record in one transaction, so the history row and the new
// value are never observed apart.
func (s *PostgresStore) UpdateLinkStatus(ctx context.Context, link *models.AffectedSubsystem, change *models.StatusChange) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE affected_subsystems SET confirmation_status = $1, execution_status = $2, updated_at = now()
			WHERE id = $3`,
			link.ConfirmationStatus, link.ExecutionStatus, link.ID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}
		return tx.QueryRow(ctx, `
			INSERT INTO status_changes (subsystem_link_id, axis, old_status, new_status, changed_by_id)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at`,
			change.SubsystemLinkID, change.Axis, change.OldStatus, change.NewStatus, change.ChangedByID,
		).Scan(&change.ID, &change.CreatedAt)
	})
}

// GetSubsystemsByIDs resolves subsystem reference records, keyed by id.
func (s *PostgresStore) GetSubsystemsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Subsystem, error) {
	result := make(map[int64]*models.Subsystem, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, name, system_name FROM subsystems WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sub models.Subsystem
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.SystemName); err != nil {
			return nil, err
		}
		result[sub.ID] = &sub
	}
	return result, rows.Err()
}

// CreateSubsystem inserts a subsystem reference record.
func (s *PostgresStore) CreateSubsystem(ctx context.Context, sub *models.Subsystem) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO subsystems (name, system_name) VALUES ($1, $2) RETURNING id`,
		sub.Name, sub.SystemName,
	).Scan(&sub.ID)
}

func scanLink(row rowScanner) (*models.AffectedSubsystem, error) {
	var link models.AffectedSubsystem
	err := row.Scan(&link.ID, &link.RfcID, &link.SubsystemID, &link.ExecutorID,
		&link.ConfirmationStatus, &link.ExecutionStatus, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &link, nil
}
