package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
)

// Repository persists pipeline stages.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, agencyID uuid.UUID) ([]Stage, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (*Stage, error)
	Create(ctx context.Context, stage Stage) (*Stage, error)
	Update(ctx context.Context, stage Stage) (*Stage, error)
	Delete(ctx context.Context, agencyID, id uuid.UUID) error
	SetOrder(ctx context.Context, agencyID, id uuid.UUID, order int) error
	NextOrder(ctx context.Context, agencyID uuid.UUID) (int, error)
}

type repository struct {
	db   db.DBTX
	pool *pgxpool.Pool
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const stageColumns = `id, agency_id, name, "order", color, is_closed, is_lost, sla_minutes, message_templates, created_at, updated_at`

func scanStage(row pgx.Row) (*Stage, error) {
	var s Stage
	if err := row.Scan(&s.ID, &s.AgencyID, &s.Name, &s.Order, &s.Color, &s.IsClosed, &s.IsLost,
		&s.SLAMinutes, &s.MessageTemplates, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if s.MessageTemplates == nil {
		s.MessageTemplates = []string{}
	}
	return &s, nil
}

func (r *repository) List(ctx context.Context, agencyID uuid.UUID) ([]Stage, error) {
	rows, err := r.db.Query(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE agency_id = $1 ORDER BY "order", created_at`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var stages []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, *s)
	}
	return stages, rows.Err()
}

func (r *repository) Get(ctx context.Context, agencyID, id uuid.UUID) (*Stage, error) {
	row := r.db.QueryRow(ctx, `SELECT `+stageColumns+` FROM pipeline_stages WHERE agency_id = $1 AND id = $2`, agencyID, id)
	s, err := scanStage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repository) Create(ctx context.Context, stage Stage) (*Stage, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO pipeline_stages (id, agency_id, name, "order", color, is_closed, is_lost, sla_minutes, message_templates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+stageColumns,
		uuid.New(), stage.AgencyID, stage.Name, stage.Order, stage.Color, stage.IsClosed, stage.IsLost, stage.SLAMinutes, templates(stage.MessageTemplates))
	s, err := scanStage(row)
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicateOrder
	}
	return s, err
}

func (r *repository) Update(ctx context.Context, stage Stage) (*Stage, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE pipeline_stages
		SET name = $3, "order" = $4, color = $5, is_closed = $6, is_lost = $7, sla_minutes = $8,
		    message_templates = $9, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2
		RETURNING `+stageColumns,
		stage.AgencyID, stage.ID, stage.Name, stage.Order, stage.Color, stage.IsClosed, stage.IsLost, stage.SLAMinutes, templates(stage.MessageTemplates))
	s, err := scanStage(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case db.IsUniqueViolation(err):
		return nil, ErrDuplicateOrder
	}
	return s, err
}

func (r *repository) Delete(ctx context.Context, agencyID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM pipeline_stages WHERE agency_id = $1 AND id = $2`, agencyID, id)
	if db.IsForeignKeyViolation(err) {
		return ErrStageInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetOrder(ctx context.Context, agencyID, id uuid.UUID, order int) error {
	tag, err := r.db.Exec(ctx, `UPDATE pipeline_stages SET "order" = $3, updated_at = NOW() WHERE agency_id = $1 AND id = $2`, agencyID, id, order)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) NextOrder(ctx context.Context, agencyID uuid.UUID) (int, error) {
	var next int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX("order"), 0) + 1 FROM pipeline_stages WHERE agency_id = $1`, agencyID).Scan(&next)
	return next, err
}

func templates(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
