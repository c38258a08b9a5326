package repository

import (
	"context"

	"github.com/c21501/rfc-service/pkg/models"
)

const userColumns = `id, username, email, first_name, last_name, role, planka_user_id`

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO users (username, email, first_name, last_name, role, planka_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		user.Username, user.Email, user.FirstName, user.LastName, user.Role, user.PlankaUserID,
	).Scan(&user.ID)
}

// GetUser retrieves a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindUserByEmail looks a user up by email, case-insensitively.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// FindUserByUsername looks a user up by username.
func (s *PostgresStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

// FindUserByPlankaID looks a user up by their bound Planka account id.
func (s *PostgresStore) FindUserByPlankaID(ctx context.Context, plankaUserID string) (*models.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE planka_user_id = $1`, plankaUserID))
}

// ListUsersByRole returns every user holding the role.
func (s *PostgresStore) ListUsersByRole(ctx context.Context, role models.UserRole) ([]*models.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE role = $1 ORDER BY id`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser persists mutable user fields.
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE users SET username = $1, email = $2, first_name = $3, last_name = $4, role = $5, planka_user_id = $6
		WHERE id = $7`,
		user.Username, user.Email, user.FirstName, user.LastName, user.Role, user.PlankaUserID, user.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName,
		&user.LastName, &user.Role, &user.PlankaUserID)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &user, nil
}
