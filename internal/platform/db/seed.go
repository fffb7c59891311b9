package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusleave/internal/domain/auth"
	"campusleave/internal/platform/config"
)

func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensurePermissions(ctx, pool); err != nil {
		return err
	}

	roleIDs, err := ensureRoles(ctx, pool)
	if err != nil {
		return err
	}

	if err := ensureRolePermissions(ctx, pool, roleIDs); err != nil {
		return err
	}

	if cfg.SeedAdminEmail != "" {
		if err := ensureAdminUser(ctx, pool, roleIDs[auth.RoleHR], cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			return err
		}
	}

	return nil
}

func ensurePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	for _, perm := range auth.DefaultPermissions {
		if _, err := pool.Exec(ctx, "INSERT INTO permissions (key) VALUES ($1) ON CONFLICT (key) DO NOTHING", perm); err != nil {
			return err
		}
	}
	return nil
}

func ensureRoles(ctx context.Context, pool *pgxpool.Pool) (map[string]string, error) {
	out := make(map[string]string, len(auth.AllRoles))
	for _, name := range auth.AllRoles {
		var id string
		err := pool.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1", name).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			err = pool.QueryRow(ctx, "INSERT INTO roles (name) VALUES ($1) RETURNING id", name).Scan(&id)
		}
		if err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, nil
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool, roleIDs map[string]string) error {
	for role, perms := range auth.RolePermissions {
		roleID, ok := roleIDs[role]
		if !ok {
			continue
		}
		for _, perm := range perms {
			if _, err := pool.Exec(ctx, `
        INSERT INTO role_permissions (role_id, permission_key)
        VALUES ($1,$2)
        ON CONFLICT DO NOTHING
      `, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, roleID, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM users WHERE email = $1", email).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO users (email, password_hash, role_id, status)
    VALUES ($1,$2,$3,$4)
  `, email, hash, roleID, auth.UserStatusActive)
	return err
}
