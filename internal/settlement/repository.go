package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/pricing"
)

// Repository is the data access settlement needs.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Proposal(ctx context.Context, id uuid.UUID) (*Proposal, error)
	ServiceLines(ctx context.Context, proposalID uuid.UUID) ([]pricing.Line, error)
	// Collaborator returns nil without error when id does not resolve.
	Collaborator(ctx context.Context, agencyID, id uuid.UUID) (*Collaborator, error)
	// CollaboratorByUser returns nil without error when the user has no collaborator.
	CollaboratorByUser(ctx context.Context, agencyID, userID uuid.UUID) (*Collaborator, error)
	IncomeExists(ctx context.Context, proposalID uuid.UUID) (bool, error)
	// InsertIncome reports false when a concurrent writer already created the row.
	InsertIncome(ctx context.Context, in Income) (bool, error)
	CommissionExists(ctx context.Context, proposalID, collaboratorID uuid.UUID) (bool, error)
	InsertCommission(ctx context.Context, c Commission) (bool, error)
	ClosedProposalIDs(ctx context.Context, agencyID *uuid.UUID) ([]uuid.UUID, error)
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

func (r *repository) Proposal(ctx context.Context, id uuid.UUID) (*Proposal, error) {
	var p Proposal
	err := r.db.QueryRow(ctx, `
		SELECT id, agency_id, client_id, assigned_collaborator_id, created_by, number, title, created_at
		FROM proposals WHERE id = $1`, id).
		Scan(&p.ID, &p.AgencyID, &p.ClientID, &p.AssignedCollaboratorID, &p.CreatedBy, &p.Number, &p.Title, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProposalNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ServiceLines(ctx context.Context, proposalID uuid.UUID) ([]pricing.Line, error) {
	rows, err := r.db.Query(ctx, `
		SELECT value, commission_type, commission_value
		FROM proposal_services WHERE proposal_id = $1`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []pricing.Line
	for rows.Next() {
		var l pricing.Line
		if err := rows.Scan(&l.Value, &l.CommissionType, &l.CommissionValue); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const collaboratorColumns = `id, name, email, commission_percentage, commission_base`

func scanCollaborator(row pgx.Row) (*Collaborator, error) {
	var c Collaborator
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.CommissionPercentage, &c.CommissionBase)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Collaborator(ctx context.Context, agencyID, id uuid.UUID) (*Collaborator, error) {
	return scanCollaborator(r.db.QueryRow(ctx, `SELECT `+collaboratorColumns+`
		FROM collaborators WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

func (r *repository) CollaboratorByUser(ctx context.Context, agencyID, userID uuid.UUID) (*Collaborator, error) {
	return scanCollaborator(r.db.QueryRow(ctx, `SELECT `+collaboratorColumns+`
		FROM collaborators WHERE agency_id = $1 AND user_id = $2 ORDER BY created_at LIMIT 1`, agencyID, userID))
}

func (r *repository) IncomeExists(ctx context.Context, proposalID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM financial_transactions WHERE proposal_id = $1 AND type = 'income')`, proposalID).Scan(&exists)
	return exists, err
}

func (r *repository) InsertIncome(ctx context.Context, in Income) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO financial_transactions
			(id, agency_id, proposal_id, client_id, type, description, total_value, profit_value, status, launch_date)
		VALUES ($1, $2, $3, $4, 'income', $5, $6, $7, 'pending', $8)
		ON CONFLICT (proposal_id) WHERE type = 'income' DO NOTHING`,
		uuid.New(), in.AgencyID, in.ProposalID, in.ClientID, in.Description, in.TotalValue, in.ProfitValue, in.LaunchDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) CommissionExists(ctx context.Context, proposalID, collaboratorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM collaborator_commissions WHERE proposal_id = $1 AND collaborator_id = $2)`,
		proposalID, collaboratorID).Scan(&exists)
	return exists, err
}

func (r *repository) InsertCommission(ctx context.Context, c Commission) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO collaborator_commissions
			(id, agency_id, collaborator_id, proposal_id, sale_value, profit_value, commission_percentage,
			 commission_base, commission_amount, period_month, period_year)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (proposal_id, collaborator_id) DO NOTHING`,
		uuid.New(), c.AgencyID, c.CollaboratorID, c.ProposalID, c.SaleValue, c.ProfitValue, c.CommissionPercentage,
		c.CommissionBase, c.CommissionAmount, c.PeriodMonth, c.PeriodYear)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) ClosedProposalIDs(ctx context.Context, agencyID *uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id FROM proposals p
		JOIN pipeline_stages s ON s.id = p.stage_id
		WHERE s.is_closed AND ($1::uuid IS NULL OR p.agency_id = $1)
		ORDER BY p.created_at, p.number`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
