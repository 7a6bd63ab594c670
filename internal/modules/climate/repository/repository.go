package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"climap-server/internal/modules/climate/types"
)

//go:embed sql/insert-session.sql
var insertSessionSQL string

//go:embed sql/get-session.sql
var getSessionSQL string

//go:embed sql/update-session-month.sql
var updateSessionMonthSQL string

//go:embed sql/update-session-selection.sql
var updateSessionSelectionSQL string

//go:embed sql/delete-stale-sessions.sql
var deleteStaleSessionsSQL string

var ErrSessionNotFound = errors.New("session not found")

// fixed width so updated_at compares correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SessionRepository interface {
	CreateSession(ctx context.Context, s types.Session) error
	GetSession(ctx context.Context, id string) (types.Session, error)
	// UpdateMonth and UpdateSelection each write only their own columns, so a slider
	// move and a click on the same session never overwrite each other.
	UpdateMonth(ctx context.Context, id string, month int, updatedAt time.Time) error
	UpdateSelection(ctx context.Context, id string, sel *types.Selection, updatedAt time.Time) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) SessionRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) CreateSession(ctx context.Context, s types.Session) error {
	layer, feature := selectionColumns(s.Selection)
	_, err := r.db.ExecContext(ctx, insertSessionSQL,
		s.ID,
		s.Dataset,
		s.Month,
		layer,
		feature,
		s.CreatedAt.UTC().Format(timeLayout),
		s.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

func (r *repositoryImpl) GetSession(ctx context.Context, id string) (types.Session, error) {
	var (
		s                  types.Session
		layer, feature     sql.NullString
		createdAt, updated string
	)
	err := r.db.QueryRowContext(ctx, getSessionSQL, id).Scan(
		&s.ID, &s.Dataset, &s.Month, &layer, &feature, &createdAt, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return types.Session{}, err
	}
	if layer.Valid && feature.Valid {
		s.Selection = &types.Selection{Layer: types.Layer(layer.String), FeatureID: feature.String}
	}
	if s.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return types.Session{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if s.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return types.Session{}, fmt.Errorf("parse updated_at %q: %w", updated, err)
	}
	return s, nil
}

func (r *repositoryImpl) UpdateMonth(ctx context.Context, id string, month int, updatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, updateSessionMonthSQL,
		month,
		updatedAt.UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("update session %s month: %w", id, err)
	}
	return expectOneRow(res, id)
}

func (r *repositoryImpl) UpdateSelection(ctx context.Context, id string, sel *types.Selection, updatedAt time.Time) error {
	layer, feature := selectionColumns(sel)
	res, err := r.db.ExecContext(ctx, updateSessionSelectionSQL,
		layer,
		feature,
		updatedAt.UTC().Format(timeLayout),
		id,
	)
	if err != nil {
		return fmt.Errorf("update session %s selection: %w", id, err)
	}
	return expectOneRow(res, id)
}

func expectOneRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return nil
}

func (r *repositoryImpl) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteStaleSessionsSQL, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("delete stale sessions: %w", err)
	}
	return res.RowsAffected()
}

func selectionColumns(sel *types.Selection) (sql.NullString, sql.NullString) {
	if sel == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: string(sel.Layer), Valid: true},
		sql.NullString{String: sel.FeatureID, Valid: true}
}
