package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/c21501/rfc-service/pkg/models"
)

const rfcColumns = `id, title, description, implementation_date, urgency, status,
	requester_id, planka_card_id, planka_status_changed_at, deleted_at, created_at, updated_at`

// CreateRfc inserts a new RFC and fills in its generated id and timestamps.
func (s *PostgresStore) CreateRfc(ctx context.Context, rfc *models.Rfc) error {
	return execCreateRfc(ctx, s.db, rfc)
}

// CreateRfcWithLinks inserts the RFC, its subsystem links and the creation
// snapshot in one transaction, so an RFC row is never observable without its
// creation snapshot. Generated link ids are recorded on the snapshot.
func (s *PostgresStore) CreateRfcWithLinks(ctx context.Context, rfc *models.Rfc, links []*models.AffectedSubsystem, snap *models.RfcSnapshot) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := execCreateRfc(ctx, tx, rfc); err != nil {
			return err
		}
		for _, link := range links {
			link.RfcID = rfc.ID
			if err := execCreateLink(ctx, tx, link); err != nil {
				return err
			}
			snap.SubsystemLinkIDs = append(snap.SubsystemLinkIDs, link.ID)
		}
		snap.RfcID = rfc.ID
		return execAppendSnapshot(ctx, tx, snap)
	})
}

// GetRfc retrieves a non-deleted RFC by id.
func (s *PostgresStore) GetRfc(ctx context.Context, id int64) (*models.Rfc, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+rfcColumns+` FROM rfcs WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanRfc(row)
}

// ListActiveRfcs returns every non-deleted RFC, oldest first.
func (s *PostgresStore) ListActiveRfcs(ctx context.Context) ([]*models.Rfc, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+rfcColumns+` FROM rfcs WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rfcs []*models.Rfc
	for rows.Next() {
		rfc, err := scanRfc(rows)
		if err != nil {
			return nil, err
		}
		rfcs = append(rfcs, rfc)
	}
	return rfcs, rows.Err()
}

// UpdateRfc persists all mutable RFC fields.
func (s *PostgresStore) UpdateRfc(ctx context.Context, rfc *models.Rfc) error {
	return execRfcUpdate(ctx, s.db, rfc)
}

// FindRfcByCardID looks an RFC up by its bound Planka card id.
func (s *PostgresStore) FindRfcByCardID(ctx context.Context, cardID string) (*models.Rfc, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+rfcColumns+` FROM rfcs WHERE planka_card_id = $1 AND deleted_at IS NULL`, cardID)
	return scanRfc(row)
}

// SoftDeleteRfc marks the RFC deleted. Subsystem links are removed by the
// cascade on the foreign key; history rows survive.
func (s *PostgresStore) SoftDeleteRfc(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE rfcs SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateRfcWithSnapshot applies the RFC update and appends the snapshot in one
// transaction.
func (s *PostgresStore) UpdateRfcWithSnapshot(ctx context.Context, rfc *models.Rfc, snap *models.RfcSnapshot) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := execRfcUpdate(ctx, tx, rfc); err != nil {
			return err
		}
		return execAppendSnapshot(ctx, tx, snap)
	})
}

func execCreateRfc(ctx context.Context, db dbtx, rfc *models.Rfc) error {
	return db.QueryRow(ctx, `
		INSERT INTO rfcs (title, description, implementation_date, urgency, status, requester_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		rfc.Title, rfc.Description, rfc.ImplementationDate, rfc.Urgency, rfc.Status, rfc.RequesterID,
	).Scan(&rfc.ID, &rfc.CreatedAt, &rfc.UpdatedAt)
}

func execRfcUpdate(ctx context.Context, db dbtx, rfc *models.Rfc) error {
	tag, err := db.Exec(ctx, `
		UPDATE rfcs SET title = $1, description = $2, implementation_date = $3, urgency = $4,
			status = $5, planka_card_id = $6, planka_status_changed_at = $7, updated_at = now()
		WHERE id = $8 AND deleted_at IS NULL`,
		rfc.Title, rfc.Description, rfc.ImplementationDate, rfc.Urgency,
		rfc.Status, rfc.PlankaCardID, rfc.PlankaStatusChangedAt, rfc.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRfc(row rowScanner) (*models.Rfc, error) {
	var rfc models.Rfc
	err := row.Scan(&rfc.ID, &rfc.Title, &rfc.Description, &rfc.ImplementationDate,
		&rfc.Urgency, &rfc.Status, &rfc.RequesterID, &rfc.PlankaCardID,
		&rfc.PlankaStatusChangedAt, &rfc.DeletedAt, &rfc.CreatedAt, &rfc.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &rfc, nil
}
