// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cityops/data-api/internal/model"
)

// OccurrenceRepo persists occurrence records.
type OccurrenceRepo struct {
	db *sql.DB
}

// occurrenceColumns is shared by every SELECT. Location round-trips through
// ST_X/ST_Y so the driver never sees raw geometry.
const occurrenceColumns = `id, type_tag, description, resume, active,
	ST_X(location::geometry), ST_Y(location::geometry), register_at, update_at`

func scanOccurrence(row interface{ Scan(...any) error }) (model.Occurrence, error) {
	var (
		occ      model.Occurrence
		lon, lat sql.NullFloat64
	)
	err := row.Scan(
		&occ.ID, &occ.TypeTag, &occ.Description, &occ.Resume, &occ.Active,
		&lon, &lat, &occ.RegisterAt, &occ.UpdateAt,
	)
	if err != nil {
		return model.Occurrence{}, err
	}
	if lon.Valid && lat.Valid {
		occ.Location = &model.Point{Lat: lat.Float64, Lon: lon.Float64}
	}
	return occ, nil
}

// locationArgs splits an optional point into lon/lat SQL arguments.
func locationArgs(p *model.Point) (lon, lat any) {
	if p == nil {
		return nil, nil
	}
	return p.Lon, p.Lat
}

// Create inserts a new occurrence and returns it with its assigned ID.
func (r *OccurrenceRepo) Create(ctx context.Context, occ model.Occurrence) (model.Occurrence, error) {
	defer observe("occurrence_create", time.Now())

	const q = `
		INSERT INTO occurrence (type_tag, description, resume, active, location, register_at, update_at)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326), $7, $8)
		RETURNING id`

	lon, lat := locationArgs(occ.Location)
	if err := r.db.QueryRowContext(ctx, q,
		occ.TypeTag, occ.Description, occ.Resume, occ.Active, lon, lat, occ.RegisterAt, occ.UpdateAt,
	).Scan(&occ.ID); err != nil {
		return model.Occurrence{}, fmt.Errorf("insert occurrence: %w", err)
	}
	return occ, nil
}

// GetByID fetches one occurrence. Returns ErrNotFound for missing rows.
func (r *OccurrenceRepo) GetByID(ctx context.Context, id int64) (model.Occurrence, error) {
	defer observe("occurrence_get", time.Now())

	q := `SELECT ` + occurrenceColumns + ` FROM occurrence WHERE id = $1`
	occ, err := scanOccurrence(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Occurrence{}, fmt.Errorf("occurrence %d: %w", id, ErrNotFound)
		}
		return model.Occurrence{}, fmt.Errorf("query occurrence %d: %w", id, err)
	}
	return occ, nil
}

// List returns occurrences matching the filter, newest first.
func (r *OccurrenceRepo) List(ctx context.Context, filter model.OccurrenceFilter) ([]model.Occurrence, error) {
	defer observe("occurrence_list", time.Now())

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + occurrenceColumns + ` FROM occurrence
		WHERE ($1 = '' OR type_tag = $1)
		ORDER BY register_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, q, filter.TypeTag, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]model.Occurrence, 0, limit)
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		out = append(out, occ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate occurrences: %w", err)
	}
	return out, nil
}

// Update persists the full state of an already-merged occurrence.
func (r *OccurrenceRepo) Update(ctx context.Context, occ model.Occurrence) error {
	defer observe("occurrence_update", time.Now())

	const q = `
		UPDATE occurrence
		SET type_tag = $2, description = $3, resume = $4, active = $5,
			location = ST_SetSRID(ST_MakePoint($6, $7), 4326),
			update_at = $8
		WHERE id = $1`

	lon, lat := locationArgs(occ.Location)
	res, err := r.db.ExecContext(ctx, q,
		occ.ID, occ.TypeTag, occ.Description, occ.Resume, occ.Active, lon, lat, occ.UpdateAt)
	if err != nil {
		return fmt.Errorf("update occurrence %d: %w", occ.ID, err)
	}
	return requireRow(res, occ.ID)
}

// Deactivate soft-deletes an occurrence by clearing its active flag.
func (r *OccurrenceRepo) Deactivate(ctx context.Context, id int64, now time.Time) error {
	defer observe("occurrence_deactivate", time.Now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE occurrence SET active = FALSE, update_at = $2 WHERE id = $1`, id, now)
	if err != nil {
		return fmt.Errorf("deactivate occurrence %d: %w", id, err)
	}
	return requireRow(res, id)
}

// requireRow maps zero affected rows to ErrNotFound.
func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("id %d: %w", id, ErrNotFound)
	}
	return nil
}
