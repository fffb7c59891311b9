package auth

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) HasPermission(ctx context.Context, roleID, permission string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions
    WHERE role_id = $1 AND permission_key = $2
  `, roleID, permission).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RoleIDByName(ctx context.Context, name string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1", name).Scan(&id)
	return id, err
}

// CreateUser provisions a login account under the named role and returns the
// new user id.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, roleName string) (string, error) {
	roleID, err := s.RoleIDByName(ctx, roleName)
	if err != nil {
		return "", err
	}
	var id string
	err = s.DB.QueryRow(ctx, `
    INSERT INTO users (email, password_hash, role_id, status)
    VALUES ($1, $2, $3, $4)
    RETURNING id
  `, email, passwordHash, roleID, UserStatusActive).Scan(&id)
	return id, err
}

// UserIDsByRole returns the active user ids holding a role, used to fan out
// approval notifications.
func (s *Store) UserIDsByRole(ctx context.Context, roleName string) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT u.id
    FROM users u
    JOIN roles r ON u.role_id = r.id
    WHERE r.name = $1 AND u.status = $2
  `, roleName, UserStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
