// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/cityops/data-api/internal/model"
)

// ErrDuplicateTag is returned when an analysis type tag already exists.
var ErrDuplicateTag = errors.New("tag already exists")

// AnalysisTypeRepo persists the analysis type catalog.
type AnalysisTypeRepo struct {
	db *sql.DB
}

const analysisTypeColumns = `id, name, tag, description, metadata, is_active, icon`

func scanAnalysisType(row interface{ Scan(...any) error }) (model.AnalysisType, error) {
	var at model.AnalysisType
	err := row.Scan(&at.ID, &at.Name, &at.Tag, &at.Description, &at.Metadata, &at.IsActive, &at.Icon)
	return at, err
}

// uniqueViolation is the Postgres SQLSTATE for unique constraint errors.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Create inserts a new analysis type and returns it with its assigned ID.
func (r *AnalysisTypeRepo) Create(ctx context.Context, at model.AnalysisType) (model.AnalysisType, error) {
	defer observe("analysis_type_create", time.Now())

	const q = `
		INSERT INTO analysis_type (name, tag, description, metadata, is_active, icon)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if err := r.db.QueryRowContext(ctx, q,
		at.Name, at.Tag, at.Description, at.Metadata, at.IsActive, at.Icon,
	).Scan(&at.ID); err != nil {
		if isUniqueViolation(err) {
			return model.AnalysisType{}, fmt.Errorf("tag %q: %w", at.Tag, ErrDuplicateTag)
		}
		return model.AnalysisType{}, fmt.Errorf("insert analysis type: %w", err)
	}
	return at, nil
}

// GetByID fetches one analysis type. Returns ErrNotFound for missing rows.
func (r *AnalysisTypeRepo) GetByID(ctx context.Context, id int64) (model.AnalysisType, error) {
	defer observe("analysis_type_get", time.Now())

	q := `SELECT ` + analysisTypeColumns + ` FROM analysis_type WHERE id = $1`
	at, err := scanAnalysisType(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AnalysisType{}, fmt.Errorf("analysis type %d: %w", id, ErrNotFound)
		}
		return model.AnalysisType{}, fmt.Errorf("query analysis type %d: %w", id, err)
	}
	return at, nil
}

// GetByTag fetches one analysis type by its unique tag.
func (r *AnalysisTypeRepo) GetByTag(ctx context.Context, tag string) (model.AnalysisType, error) {
	defer observe("analysis_type_get_by_tag", time.Now())

	q := `SELECT ` + analysisTypeColumns + ` FROM analysis_type WHERE tag = $1`
	at, err := scanAnalysisType(r.db.QueryRowContext(ctx, q, tag))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AnalysisType{}, fmt.Errorf("analysis type %q: %w", tag, ErrNotFound)
		}
		return model.AnalysisType{}, fmt.Errorf("query analysis type %q: %w", tag, err)
	}
	return at, nil
}

// List returns the catalog ordered by name.
func (r *AnalysisTypeRepo) List(ctx context.Context) ([]model.AnalysisType, error) {
	defer observe("analysis_type_list", time.Now())

	q := `SELECT ` + analysisTypeColumns + ` FROM analysis_type ORDER BY name, id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list analysis types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.AnalysisType
	for rows.Next() {
		at, err := scanAnalysisType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis type: %w", err)
		}
		out = append(out, at)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis types: %w", err)
	}
	return out, nil
}

// Update persists the full state of an already-merged analysis type.
func (r *AnalysisTypeRepo) Update(ctx context.Context, at model.AnalysisType) error {
	defer observe("analysis_type_update", time.Now())

	const q = `
		UPDATE analysis_type
		SET name = $2, tag = $3, description = $4, metadata = $5, is_active = $6, icon = $7
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, q,
		at.ID, at.Name, at.Tag, at.Description, at.Metadata, at.IsActive, at.Icon)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tag %q: %w", at.Tag, ErrDuplicateTag)
		}
		return fmt.Errorf("update analysis type %d: %w", at.ID, err)
	}
	return requireRow(res, at.ID)
}

// Deactivate soft-deletes an analysis type.
func (r *AnalysisTypeRepo) Deactivate(ctx context.Context, id int64) error {
	defer observe("analysis_type_deactivate", time.Now())

	res, err := r.db.ExecContext(ctx,
		`UPDATE analysis_type SET is_active = FALSE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate analysis type %d: %w", id, err)
	}
	return requireRow(res, id)
}
