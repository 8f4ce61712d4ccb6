package collaborators

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
)

// Repository persists collaborators.
type Repository interface {
	List(ctx context.Context, agencyID uuid.UUID, activeOnly bool) ([]Collaborator, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (*Collaborator, error)
	FindByUser(ctx context.Context, agencyID, userID uuid.UUID) (*Collaborator, error)
	Create(ctx context.Context, c Collaborator) (*Collaborator, error)
	Update(ctx context.Context, c Collaborator) (*Collaborator, error)
}

type repository struct {
	db db.DBTX
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const columns = `id, agency_id, user_id, name, email, phone, commission_percentage, commission_base, active, created_at, updated_at`

func scan(row pgx.Row) (*Collaborator, error) {
	var c Collaborator
	err := row.Scan(&c.ID, &c.AgencyID, &c.UserID, &c.Name, &c.Email, &c.Phone,
		&c.CommissionPercentage, &c.CommissionBase, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) List(ctx context.Context, agencyID uuid.UUID, activeOnly bool) ([]Collaborator, error) {
	rows, err := r.db.Query(ctx, `SELECT `+columns+` FROM collaborators
		WHERE agency_id = $1 AND (NOT $2 OR active) ORDER BY name`, agencyID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Collaborator
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, agencyID, id uuid.UUID) (*Collaborator, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM collaborators WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

func (r *repository) FindByUser(ctx context.Context, agencyID, userID uuid.UUID) (*Collaborator, error) {
	return scan(r.db.QueryRow(ctx, `SELECT `+columns+` FROM collaborators
		WHERE agency_id = $1 AND user_id = $2 ORDER BY created_at LIMIT 1`, agencyID, userID))
}

func (r *repository) Create(ctx context.Context, c Collaborator) (*Collaborator, error) {
	created, err := scan(r.db.QueryRow(ctx, `
		INSERT INTO collaborators (id, agency_id, user_id, name, email, phone, commission_percentage, commission_base, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+columns,
		uuid.New(), c.AgencyID, c.UserID, c.Name, c.Email, c.Phone, c.CommissionPercentage, c.CommissionBase, c.Active))
	if db.IsUniqueViolation(err) {
		return nil, ErrUserLinked
	}
	return created, err
}

func (r *repository) Update(ctx context.Context, c Collaborator) (*Collaborator, error) {
	updated, err := scan(r.db.QueryRow(ctx, `
		UPDATE collaborators SET user_id = $3, name = $4, email = $5, phone = $6, commission_percentage = $7,
		       commission_base = $8, active = $9, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2
		RETURNING `+columns,
		c.AgencyID, c.ID, c.UserID, c.Name, c.Email, c.Phone, c.CommissionPercentage, c.CommissionBase, c.Active))
	if db.IsUniqueViolation(err) {
		return nil, ErrUserLinked
	}
	return updated, err
}
