package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jarnaez728/swimsync/internal/record"
)

// dateFormat is how swim dates are stored; lexicographic order matches
// chronological order.
const dateFormat = time.RFC3339

// SwimTimeFilter narrows ListSwimTimes. Zero values match everything.
type SwimTimeFilter struct {
	UserID string
	Stroke record.Stroke
	Since  time.Time
}

// InsertSwimTime adds a brand-new swim time.
func (s *Store) InsertSwimTime(ctx context.Context, st *record.SwimTime) error {
	return insertSwimTime(ctx, s.conn, st)
}

// InsertSwimTime is the transactional variant of Store.InsertSwimTime.
func (t *Tx) InsertSwimTime(ctx context.Context, st *record.SwimTime) error {
	return insertSwimTime(ctx, t.tx, st)
}

func insertSwimTime(ctx context.Context, q querier, st *record.SwimTime) error {
	if err := st.Validate(); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO swim_times (id, user_id, date, distance_meters, stroke, elapsed_seconds, sys_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.UserID, st.Date.UTC().Format(dateFormat),
		st.Distance, string(st.Stroke), st.Elapsed, st.SysFields)
	if err != nil {
		return fmt.Errorf("failed to insert swim time %s: %w", st.ID, err)
	}
	return nil
}

// UpdateSwimTime updates business fields only; sys_fields is untouched.
func (s *Store) UpdateSwimTime(ctx context.Context, st *record.SwimTime) error {
	return updateSwimTime(ctx, s.conn, st)
}

// UpdateSwimTime is the transactional variant of Store.UpdateSwimTime.
func (t *Tx) UpdateSwimTime(ctx context.Context, st *record.SwimTime) error {
	return updateSwimTime(ctx, t.tx, st)
}

func updateSwimTime(ctx context.Context, q querier, st *record.SwimTime) error {
	if err := st.Validate(); err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE swim_times
		SET user_id = ?, date = ?, distance_meters = ?, stroke = ?, elapsed_seconds = ?
		WHERE id = ?`,
		st.UserID, st.Date.UTC().Format(dateFormat),
		st.Distance, string(st.Stroke), st.Elapsed, st.ID)
	if err != nil {
		return fmt.Errorf("failed to update swim time %s: %w", st.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertSwimTimeRemote writes a remote-authoritative swim time state,
// replacing all business fields and sys_fields.
func (s *Store) UpsertSwimTimeRemote(ctx context.Context, st *record.SwimTime) error {
	return upsertSwimTimeRemote(ctx, s.conn, st)
}

// UpsertSwimTimeRemote is the transactional variant of Store.UpsertSwimTimeRemote.
func (t *Tx) UpsertSwimTimeRemote(ctx context.Context, st *record.SwimTime) error {
	return upsertSwimTimeRemote(ctx, t.tx, st)
}

func upsertSwimTimeRemote(ctx context.Context, q querier, st *record.SwimTime) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO swim_times (id, user_id, date, distance_meters, stroke, elapsed_seconds, sys_fields)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			date = excluded.date,
			distance_meters = excluded.distance_meters,
			stroke = excluded.stroke,
			elapsed_seconds = excluded.elapsed_seconds,
			sys_fields = excluded.sys_fields`,
		st.ID, st.UserID, st.Date.UTC().Format(dateFormat),
		st.Distance, string(st.Stroke), st.Elapsed, st.SysFields)
	if err != nil {
		return fmt.Errorf("failed to upsert swim time %s: %w", st.ID, err)
	}
	return nil
}

// GetSwimTime fetches one swim time by id. Returns ErrNotFound if absent.
func (s *Store) GetSwimTime(ctx context.Context, id string) (*record.SwimTime, error) {
	return getSwimTime(ctx, s.conn, id)
}

// GetSwimTime is the transactional variant of Store.GetSwimTime.
func (t *Tx) GetSwimTime(ctx context.Context, id string) (*record.SwimTime, error) {
	return getSwimTime(ctx, t.tx, id)
}

func getSwimTime(ctx context.Context, q querier, id string) (*record.SwimTime, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, user_id, date, distance_meters, stroke, elapsed_seconds, sys_fields
		FROM swim_times WHERE id = ?`, id)
	st, err := scanSwimTime(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch swim time %s: %w", id, err)
	}
	return st, nil
}

// ListSwimTimes returns swim times matching the filter, newest first.
func (s *Store) ListSwimTimes(ctx context.Context, filter SwimTimeFilter) ([]*record.SwimTime, error) {
	query := `
		SELECT id, user_id, date, distance_meters, stroke, elapsed_seconds, sys_fields
		FROM swim_times WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Stroke != "" {
		query += " AND stroke = ?"
		args = append(args, string(filter.Stroke))
	}
	if !filter.Since.IsZero() {
		query += " AND date >= ?"
		args = append(args, filter.Since.UTC().Format(dateFormat))
	}
	query += " ORDER BY date DESC, id"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list swim times: %w", err)
	}
	defer rows.Close()

	var times []*record.SwimTime
	for rows.Next() {
		st, err := scanSwimTime(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan swim time: %w", err)
		}
		times = append(times, st)
	}
	return times, rows.Err()
}

func scanSwimTime(scan func(dest ...any) error) (*record.SwimTime, error) {
	var st record.SwimTime
	var date, stroke string
	if err := scan(&st.ID, &st.UserID, &date, &st.Distance, &stroke, &st.Elapsed, &st.SysFields); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(dateFormat, date)
	if err != nil {
		return nil, fmt.Errorf("malformed swim date %q: %w", date, err)
	}
	st.Date = parsed
	st.Stroke = record.Stroke(stroke)
	return &st, nil
}

// DeleteSwimTime removes a swim time by id. Deleting an absent id is not an error.
func (s *Store) DeleteSwimTime(ctx context.Context, id string) error {
	return deleteByID(ctx, s.conn, "swim_times", id)
}

// DeleteSwimTime is the transactional variant of Store.DeleteSwimTime.
func (t *Tx) DeleteSwimTime(ctx context.Context, id string) error {
	return deleteByID(ctx, t.tx, "swim_times", id)
}

// CountSwimTimes returns the number of stored swim times.
func (s *Store) CountSwimTimes(ctx context.Context) (int, error) {
	return countTable(ctx, s.conn, "swim_times")
}
