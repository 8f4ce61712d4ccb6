package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/voyager-crm/voyager/internal/platform/db"
	"github.com/voyager-crm/voyager/internal/shared"
)

// Repository persists transactions and reads commissions.
type Repository interface {
	List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Transaction, int, error)
	Get(ctx context.Context, agencyID, id uuid.UUID) (*Transaction, error)
	Create(ctx context.Context, tx Transaction) (*Transaction, error)
	Update(ctx context.Context, tx Transaction) (*Transaction, error)
	// SetStatus only applies when the stored status still equals from.
	SetStatus(ctx context.Context, agencyID, id uuid.UUID, from, to Status, paymentDate *time.Time) (*Transaction, error)
	MarkOverdue(ctx context.Context, agencyID *uuid.UUID, asOf time.Time) (int64, error)

	ListCommissions(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Commission, int, error)
	GetCommission(ctx context.Context, agencyID, id uuid.UUID) (*Commission, error)

	PeriodTotals(ctx context.Context, agencyID uuid.UUID, p Period) (Totals, error)
	PeriodCommissions(ctx context.Context, agencyID uuid.UUID, p Period) (decimal.Decimal, error)
	PeriodStatusCounts(ctx context.Context, agencyID uuid.UUID, p Period) (StatusCounts, error)
}

var transactionColumnsMap = shared.Columns{
	"type":        "type",
	"status":      "status",
	"proposalId":  "proposal_id",
	"clientId":    "client_id",
	"launchDate":  "launch_date",
	"dueDate":     "due_date",
	"paymentDate": "payment_date",
	"totalValue":  "total_value",
	"description": "description",
	"createdAt":   "created_at",
}

var commissionColumnsMap = shared.Columns{
	"collaboratorId": "c.collaborator_id",
	"proposalId":     "c.proposal_id",
	"periodMonth":    "c.period_month",
	"periodYear":     "c.period_year",
	"commissionBase": "c.commission_base",
	"createdAt":      "c.created_at",
}

type repository struct {
	db db.DBTX
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const transactionColumns = `id, agency_id, proposal_id, client_id, type, description, total_value, profit_value,
	status, launch_date, due_date, payment_date, installments, current_installment, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.AgencyID, &t.ProposalID, &t.ClientID, &t.Type, &t.Description, &t.TotalValue,
		&t.ProfitValue, &t.Status, &t.LaunchDate, &t.DueDate, &t.PaymentDate, &t.Installments,
		&t.CurrentInstallment, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Transaction, int, error) {
	conds, args, err := q.Filter(transactionColumnsMap, 2)
	if err != nil {
		return nil, 0, err
	}
	order, err := q.OrderClause(transactionColumnsMap, "launch_date DESC, created_at DESC")
	if err != nil {
		return nil, 0, err
	}
	where := shared.WhereSQL(append([]string{"agency_id = $1"}, conds...))
	args = append([]any{agencyID}, args...)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM financial_transactions `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	args = append(args, q.Limit(), q.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM financial_transactions %s %s LIMIT $%d OFFSET $%d`,
		transactionColumns, where, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, agencyID, id uuid.UUID) (*Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM financial_transactions
		WHERE agency_id = $1 AND id = $2`, agencyID, id))
}

func (r *repository) Create(ctx context.Context, t Transaction) (*Transaction, error) {
	created, err := scanTransaction(r.db.QueryRow(ctx, `
		INSERT INTO financial_transactions (id, agency_id, proposal_id, client_id, type, description, total_value,
			profit_value, status, launch_date, due_date, installments, current_installment)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+transactionColumns,
		uuid.New(), t.AgencyID, t.ProposalID, t.ClientID, t.Type, t.Description, t.TotalValue, t.ProfitValue,
		t.Status, t.LaunchDate, t.DueDate, t.Installments, t.CurrentInstallment))
	if db.IsUniqueViolation(err) {
		return nil, ErrDuplicateIncome
	}
	return created, err
}

func (r *repository) Update(ctx context.Context, t Transaction) (*Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `
		UPDATE financial_transactions SET client_id = $3, description = $4, total_value = $5, profit_value = $6,
			launch_date = $7, due_date = $8, installments = $9, current_installment = $10, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2
		RETURNING `+transactionColumns,
		t.AgencyID, t.ID, t.ClientID, t.Description, t.TotalValue, t.ProfitValue, t.LaunchDate, t.DueDate,
		t.Installments, t.CurrentInstallment))
}

func (r *repository) SetStatus(ctx context.Context, agencyID, id uuid.UUID, from, to Status, paymentDate *time.Time) (*Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `
		UPDATE financial_transactions SET status = $4, payment_date = $5, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2 AND status = $3
		RETURNING `+transactionColumns, agencyID, id, from, to, paymentDate))
	if errors.Is(err, ErrNotFound) {
		// Either gone or changed concurrently.
		return nil, ErrInvalidTransition
	}
	return t, err
}

func (r *repository) MarkOverdue(ctx context.Context, agencyID *uuid.UUID, asOf time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE financial_transactions SET status = 'overdue', updated_at = NOW()
		WHERE status = 'pending' AND due_date IS NOT NULL AND due_date < $1
		  AND ($2::uuid IS NULL OR agency_id = $2)`, asOf, agencyID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const commissionColumns = `c.id, c.agency_id, c.collaborator_id, col.name, c.proposal_id, p.number, c.sale_value,
	c.profit_value, c.commission_percentage, c.commission_base, c.commission_amount, c.period_month,
	c.period_year, c.created_at`

const commissionFrom = `FROM collaborator_commissions c
	JOIN collaborators col ON col.id = c.collaborator_id
	JOIN proposals p ON p.id = c.proposal_id`

func scanCommission(row pgx.Row) (*Commission, error) {
	var c Commission
	err := row.Scan(&c.ID, &c.AgencyID, &c.CollaboratorID, &c.CollaboratorName, &c.ProposalID, &c.ProposalNumber,
		&c.SaleValue, &c.ProfitValue, &c.CommissionPercentage, &c.CommissionBase, &c.CommissionAmount,
		&c.PeriodMonth, &c.PeriodYear, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) ListCommissions(ctx context.Context, agencyID uuid.UUID, q shared.ListQuery) ([]Commission, int, error) {
	conds, args, err := q.Filter(commissionColumnsMap, 2)
	if err != nil {
		return nil, 0, err
	}
	order, err := q.OrderClause(commissionColumnsMap, "c.period_year DESC, c.period_month DESC, c.created_at DESC")
	if err != nil {
		return nil, 0, err
	}
	where := shared.WhereSQL(append([]string{"c.agency_id = $1"}, conds...))
	args = append([]any{agencyID}, args...)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM collaborator_commissions c `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count commissions: %w", err)
	}
	args = append(args, q.Limit(), q.Offset())
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s %s %s %s LIMIT $%d OFFSET $%d`,
		commissionColumns, commissionFrom, where, order, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) GetCommission(ctx context.Context, agencyID, id uuid.UUID) (*Commission, error) {
	return scanCommission(r.db.QueryRow(ctx, `SELECT `+commissionColumns+` `+commissionFrom+`
		WHERE c.agency_id = $1 AND c.id = $2`, agencyID, id))
}

func (r *repository) PeriodTotals(ctx context.Context, agencyID uuid.UUID, p Period) (Totals, error) {
	start, end := p.Bounds()
	var t Totals
	err := r.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_value) FILTER (WHERE type = 'income'), 0),
			COALESCE(SUM(total_value) FILTER (WHERE type = 'expense'), 0),
			COALESCE(SUM(profit_value) FILTER (WHERE type = 'income'), 0),
			COALESCE(SUM(total_value) FILTER (WHERE type = 'income' AND status = 'paid'), 0)
		FROM financial_transactions
		WHERE agency_id = $1 AND status <> 'cancelled' AND launch_date >= $2 AND launch_date < $3`,
		agencyID, start, end).Scan(&t.Income, &t.Expenses, &t.Profit, &t.Received)
	return t, err
}

func (r *repository) PeriodCommissions(ctx context.Context, agencyID uuid.UUID, p Period) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(commission_amount), 0)
		FROM collaborator_commissions
		WHERE agency_id = $1 AND period_month = $2 AND period_year = $3`,
		agencyID, p.Month, p.Year).Scan(&total)
	return total, err
}

func (r *repository) PeriodStatusCounts(ctx context.Context, agencyID uuid.UUID, p Period) (StatusCounts, error) {
	start, end := p.Bounds()
	rows, err := r.db.Query(ctx, `
		SELECT status, COUNT(*) FROM financial_transactions
		WHERE agency_id = $1 AND launch_date >= $2 AND launch_date < $3
		GROUP BY status`, agencyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := StatusCounts{}
	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
