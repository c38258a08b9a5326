package repository

import (
	"context"

	"github.com/c21501/rfc-service/pkg/models"
)

// GetAttachmentsByIDs resolves attachment metadata, keyed by id.
func (s *PostgresStore) GetAttachmentsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Attachment, error) {
	result := make(map[int64]*models.Attachment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, original_filename FROM attachments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(&att.ID, &att.OriginalFilename); err != nil {
			return nil, err
		}
		result[att.ID] = &att
	}
	return result, rows.Err()
}

// ListAttachmentIDsByRfc returns the ids of the attachments currently bound
// to the RFC, for snapshot capture.
func (s *PostgresStore) ListAttachmentIDsByRfc(ctx context.Context, rfcID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM attachments WHERE rfc_id = $1 ORDER BY id`, rfcID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
