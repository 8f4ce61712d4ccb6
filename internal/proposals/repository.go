package proposals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Repository persists proposals, their services and stage history.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Proposal, int, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (*Proposal, error)
	GetByToken(ctx context.Context, token string) (*Proposal, error)
	// Create assigns the next per-agency sequence number. Must run inside WithTx.
	Create(ctx context.Context, p Proposal) (*Proposal, error)
	Update(ctx context.Context, p Proposal) (*Proposal, error)
	SetStage(ctx context.Context, agencyID, id, stageID uuid.UUID, enteredAt time.Time) error
	SetTotal(ctx context.Context, id uuid.UUID) error
	SetPublicLink(ctx context.Context, agencyID, id uuid.UUID, token string, expiresAt *time.Time) error
	AddHistory(ctx context.Context, change StageChange) error
	History(ctx context.Context, proposalID uuid.UUID) ([]StageChange, error)

	ListServices(ctx context.Context, proposalID uuid.UUID) ([]ServiceLine, error)
	GetService(ctx context.Context, agencyID, id uuid.UUID) (*ServiceLine, error)
	CreateService(ctx context.Context, s ServiceLine) (*ServiceLine, error)
	UpdateService(ctx context.Context, s ServiceLine) (*ServiceLine, error)
	DeleteService(ctx context.Context, id uuid.UUID) error
}

var listColumns = shared.Columns{
	"stageId":                "p.stage_id",
	"clientId":               "p.client_id",
	"assignedCollaboratorId": "p.assigned_collaborator_id",
	"createdBy":              "p.created_by",
	"number":                 "p.number",
	"title":                  "p.title",
	"total":                  "p.total",
	"createdAt":              "p.created_at",
	"updatedAt":              "p.updated_at",
	"stageEnteredAt":         "p.stage_entered_at",
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

const proposalColumns = `p.id, p.agency_id, p.client_id, p.stage_id, p.assigned_collaborator_id, p.created_by,
	p.number, p.title, p.total, p.discount, p.commission_type, p.commission_value, p.notes,
	p.stage_entered_at, p.public_token, p.public_expires_at, p.created_at, p.updated_at,
	(SELECT MAX(h.changed_at) FROM proposal_stage_history h WHERE h.proposal_id = p.id)`

func scanProposal(row pgx.Row) (*Proposal, error) {
	var p Proposal
	err := row.Scan(&p.ID, &p.AgencyID, &p.ClientID, &p.StageID, &p.AssignedCollaboratorID, &p.CreatedBy,
		&p.Number, &p.Title, &p.Total, &p.Discount, &p.CommissionType, &p.CommissionValue, &p.Notes,
		&p.StageEnteredAt, &p.PublicToken, &p.PublicExpiresAt, &p.CreatedAt, &p.UpdatedAt, &p.LastStageChange)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Proposal, int, error) {
	conds, args, err := q.Filter(listColumns, 2)
	if err != nil {
		return nil, 0, err
	}
	order, err := q.OrderClause(listColumns, "p.created_at DESC")
	if err != nil {
		return nil, 0, err
	}
	conds = append([]string{"p.agency_id = $1"}, conds...)
	args = append([]any{agencyID}, args...)
	where := shared.WhereSQL(conds)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM proposals p `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	args = append(args, q.Limit(), q.Offset())
	sql := fmt.Sprintf(`SELECT %s FROM proposals p %s %s LIMIT $%d OFFSET $%d`,
		proposalColumns, where, order, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *p)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, agencyID, id uuid.UUID) (*Proposal, error) {
	return scanProposal(r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals p
		WHERE p.agency_id = $1 AND p.id = $2`, agencyID, id))
}

func (r *repository) GetByToken(ctx context.Context, token string) (*Proposal, error) {
	return scanProposal(r.db.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals p
		WHERE p.public_token = $1`, token))
}

func (r *repository) Create(ctx context.Context, p Proposal) (*Proposal, error) {
	// Serialises numbering per agency until the transaction ends.
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, p.AgencyID); err != nil {
		return nil, fmt.Errorf("lock proposal numbering: %w", err)
	}
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO proposals (id, agency_id, client_id, stage_id, assigned_collaborator_id, created_by, number,
			title, total, discount, commission_type, commission_value, notes, stage_entered_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			(SELECT COALESCE(MAX(number), 0) + 1 FROM proposals WHERE agency_id = $2),
			$7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		uuid.New(), p.AgencyID, p.ClientID, p.StageID, p.AssignedCollaboratorID, p.CreatedBy,
		p.Title, p.Total, p.Discount, p.CommissionType, p.CommissionValue, p.Notes, p.StageEnteredAt).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, p.AgencyID, id)
}

func (r *repository) Update(ctx context.Context, p Proposal) (*Proposal, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE proposals SET client_id = $3, assigned_collaborator_id = $4, title = $5, discount = $6,
			commission_type = $7, commission_value = $8, notes = $9, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2`,
		p.AgencyID, p.ID, p.ClientID, p.AssignedCollaboratorID, p.Title, p.Discount,
		p.CommissionType, p.CommissionValue, p.Notes)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, p.AgencyID, p.ID)
}

func (r *repository) SetStage(ctx context.Context, agencyID, id, stageID uuid.UUID, enteredAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE proposals SET stage_id = $3, stage_entered_at = $4, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2`, agencyID, id, stageID, enteredAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetTotal(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE proposals
		SET total = COALESCE((SELECT SUM(value) FROM proposal_services WHERE proposal_id = $1), 0), updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repository) SetPublicLink(ctx context.Context, agencyID, id uuid.UUID, token string, expiresAt *time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE proposals SET public_token = $3, public_expires_at = $4, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2`, agencyID, id, token, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) AddHistory(ctx context.Context, c StageChange) error {
	_, err := r.db.Exec(ctx, `INSERT INTO proposal_stage_history (id, proposal_id, from_stage_id, to_stage_id, changed_by, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, uuid.New(), c.ProposalID, c.FromStageID, c.ToStageID, c.ChangedBy, c.ChangedAt)
	return err
}

func (r *repository) History(ctx context.Context, proposalID uuid.UUID) ([]StageChange, error) {
	rows, err := r.db.Query(ctx, `SELECT id, proposal_id, from_stage_id, to_stage_id, changed_by, changed_at
		FROM proposal_stage_history WHERE proposal_id = $1 ORDER BY changed_at`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageChange
	for rows.Next() {
		var c StageChange
		if err := rows.Scan(&c.ID, &c.ProposalID, &c.FromStageID, &c.ToStageID, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const serviceColumns = `s.id, s.proposal_id, s.partner_id, s.type, s.description, s.value, s.commission_type,
	s.commission_value, s.starts_at, s.ends_at, s.details, s.created_at, s.updated_at`

func scanService(row pgx.Row) (*ServiceLine, error) {
	var s ServiceLine
	err := row.Scan(&s.ID, &s.ProposalID, &s.PartnerID, &s.Type, &s.Description, &s.Value, &s.CommissionType,
		&s.CommissionValue, &s.StartsAt, &s.EndsAt, &s.Details, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrServiceNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.Details == nil {
		s.Details = map[string]any{}
	}
	return &s, nil
}

func (r *repository) ListServices(ctx context.Context, proposalID uuid.UUID) ([]ServiceLine, error) {
	rows, err := r.db.Query(ctx, `SELECT `+serviceColumns+` FROM proposal_services s
		WHERE s.proposal_id = $1 ORDER BY s.starts_at NULLS LAST, s.created_at`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceLine
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *repository) GetService(ctx context.Context, agencyID, id uuid.UUID) (*ServiceLine, error) {
	return scanService(r.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM proposal_services s
		JOIN proposals p ON p.id = s.proposal_id
		WHERE p.agency_id = $1 AND s.id = $2`, agencyID, id))
}

func (r *repository) CreateService(ctx context.Context, s ServiceLine) (*ServiceLine, error) {
	return scanService(r.db.QueryRow(ctx, `
		INSERT INTO proposal_services AS s (id, proposal_id, partner_id, type, description, value, commission_type,
			commission_value, starts_at, ends_at, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+serviceColumns,
		uuid.New(), s.ProposalID, s.PartnerID, s.Type, s.Description, s.Value, s.CommissionType,
		s.CommissionValue, s.StartsAt, s.EndsAt, details(s.Details)))
}

func (r *repository) UpdateService(ctx context.Context, s ServiceLine) (*ServiceLine, error) {
	return scanService(r.db.QueryRow(ctx, `
		UPDATE proposal_services AS s SET partner_id = $2, type = $3, description = $4, value = $5,
			commission_type = $6, commission_value = $7, starts_at = $8, ends_at = $9, details = $10, updated_at = NOW()
		WHERE s.id = $1
		RETURNING `+serviceColumns,
		s.ID, s.PartnerID, s.Type, s.Description, s.Value, s.CommissionType,
		s.CommissionValue, s.StartsAt, s.EndsAt, details(s.Details)))
}

func (r *repository) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM proposal_services WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func details(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return in
}
