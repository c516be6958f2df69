package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankdash/internal/core"
)

const selectUserSQL = `
	SELECT id, auth_provider_id, email, full_name, role, created_at, last_login_at
	FROM users`

// CreateUser registers a principal on first sight. An empty role
// defaults to viewer; re-registering the same subject is core.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, authProviderID, email, fullName, role string) (core.User, error) {
	if role == "" {
		role = core.RoleViewer
	}
	if role != core.RoleAdmin && role != core.RoleViewer {
		return core.User{}, fmt.Errorf("unknown role %q", role)
	}

	u := core.User{
		AuthProviderID: authProviderID,
		Email:          email,
		FullName:       fullName,
		Role:           role,
		CreatedAt:      time.Now().UTC(),
	}

	query := `
		INSERT INTO users (auth_provider_id, email, full_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (auth_provider_id) DO NOTHING
		RETURNING id`
	err := r.db.QueryRowContext(ctx, r.d.rebind(query),
		u.AuthProviderID, u.Email, u.FullName, u.Role, u.CreatedAt.Format(time.RFC3339)).Scan(&u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrConflict
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (r *Repository) GetUserByAuthID(ctx context.Context, authProviderID string) (core.User, error) {
	return r.getUser(ctx, "auth_provider_id", authProviderID)
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "email", email)
}

func (r *Repository) getUser(ctx context.Context, column, value string) (core.User, error) {
	query := selectUserSQL + " WHERE " + column + " = ?"
	row := r.db.QueryRowContext(ctx, r.d.rebind(query), value)

	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

func (r *Repository) UpdateUserRole(ctx context.Context, authProviderID, role string) error {
	if role != core.RoleAdmin && role != core.RoleViewer {
		return fmt.Errorf("unknown role %q", role)
	}
	res, err := r.db.ExecContext(ctx,
		r.d.rebind("UPDATE users SET role = ? WHERE auth_provider_id = ?"), role, authProviderID)
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) TouchLastLogin(ctx context.Context, authProviderID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		r.d.rebind("UPDATE users SET last_login_at = ? WHERE auth_provider_id = ?"), now, authProviderID)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx, selectUserSQL+" ORDER BY created_at")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []core.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(scan func(dest ...any) error) (core.User, error) {
	var (
		u         core.User
		fullName  sql.NullString
		createdAt sql.NullString
		lastLogin sql.NullString
	)
	err := scan(&u.ID, &u.AuthProviderID, &u.Email, &fullName, &u.Role, &createdAt, &lastLogin)
	if err != nil {
		return core.User{}, err
	}
	u.FullName = fullName.String
	u.CreatedAt = parseStoredTime(createdAt)
	u.LastLoginAt = parseStoredTime(lastLogin)
	return u, nil
}
