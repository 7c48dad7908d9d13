package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jarnaez728/swimsync/internal/record"
)

// InsertUser adds a brand-new user. SysFields is stored as-is (usually empty
// for a record that has never been synced).
func (s *Store) InsertUser(ctx context.Context, u *record.User) error {
	return insertUser(ctx, s.conn, u)
}

// InsertUser is the transactional variant of Store.InsertUser.
func (t *Tx) InsertUser(ctx context.Context, u *record.User) error {
	return insertUser(ctx, t.tx, u)
}

func insertUser(ctx context.Context, q querier, u *record.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx,
		"INSERT INTO users (id, name, sys_fields) VALUES (?, ?, ?)",
		u.ID, u.Name, u.SysFields)
	if err != nil {
		return fmt.Errorf("failed to insert user %s: %w", u.ID, err)
	}
	return nil
}

// UpdateUser updates a user's business fields only. sys_fields is left
// untouched so a concurrent sync acknowledgment cannot be overwritten.
func (s *Store) UpdateUser(ctx context.Context, u *record.User) error {
	return updateUser(ctx, s.conn, u)
}

// UpdateUser is the transactional variant of Store.UpdateUser.
func (t *Tx) UpdateUser(ctx context.Context, u *record.User) error {
	return updateUser(ctx, t.tx, u)
}

func updateUser(ctx context.Context, q querier, u *record.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		"UPDATE users SET name = ? WHERE id = ?", u.Name, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertUserRemote writes a remote-authoritative user state: all business
// fields and the sys_fields stamp, replacing whatever is local. Used by the
// receiver for inbound modifications and by the conflict resolver.
func (s *Store) UpsertUserRemote(ctx context.Context, u *record.User) error {
	return upsertUserRemote(ctx, s.conn, u)
}

// UpsertUserRemote is the transactional variant of Store.UpsertUserRemote.
func (t *Tx) UpsertUserRemote(ctx context.Context, u *record.User) error {
	return upsertUserRemote(ctx, t.tx, u)
}

func upsertUserRemote(ctx context.Context, q querier, u *record.User) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, sys_fields) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			sys_fields = excluded.sys_fields`,
		u.ID, u.Name, u.SysFields)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser fetches one user by id. Returns ErrNotFound if absent.
func (s *Store) GetUser(ctx context.Context, id string) (*record.User, error) {
	return getUser(ctx, s.conn, id)
}

// GetUser is the transactional variant of Store.GetUser.
func (t *Tx) GetUser(ctx context.Context, id string) (*record.User, error) {
	return getUser(ctx, t.tx, id)
}

func getUser(ctx context.Context, q querier, id string) (*record.User, error) {
	var u record.User
	err := q.QueryRowContext(ctx,
		"SELECT id, name, sys_fields FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Name, &u.SysFields)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user %s: %w", id, err)
	}
	return &u, nil
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*record.User, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, name, sys_fields FROM users ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*record.User
	for rows.Next() {
		var u record.User
		if err := rows.Scan(&u.ID, &u.Name, &u.SysFields); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// DeleteUser removes a user by id. Deleting an absent id is not an error.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, s.conn, "users", id)
}

// DeleteUser is the transactional variant of Store.DeleteUser.
func (t *Tx) DeleteUser(ctx context.Context, id string) error {
	return deleteByID(ctx, t.tx, "users", id)
}

// CountUsers returns the number of stored users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	return countTable(ctx, s.conn, "users")
}
