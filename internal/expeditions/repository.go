package expeditions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyager-crm/voyager/internal/platform/db"
)

// Repository persists groups and registrations.
type Repository interface {
	ListGroups(ctx context.Context, agencyID uuid.UUID) ([]Group, error)
	GetGroup(ctx context.Context, agencyID, id uuid.UUID) (*Group, error)
	GetGroupByToken(ctx context.Context, token string) (*Group, error)
	CreateGroup(ctx context.Context, g Group) (*Group, error)
	UpdateGroup(ctx context.Context, g Group) (*Group, error)
	DeleteGroup(ctx context.Context, agencyID, id uuid.UUID) error

	CountConfirmed(ctx context.Context, groupID uuid.UUID) (int, error)
	ListRegistrations(ctx context.Context, groupID uuid.UUID) ([]Registration, error)
	GetRegistration(ctx context.Context, agencyID, id uuid.UUID) (*Registration, error)
	CreateRegistration(ctx context.Context, r Registration) (*Registration, error)
	UpdateRegistration(ctx context.Context, r Registration) (*Registration, error)
	DeleteRegistration(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db db.DBTX
}

// NewRepository builds a Postgres-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const groupColumns = `g.id, g.agency_id, g.name, g.destination, g.description, g.start_date, g.end_date,
	g.max_participants, g.public_token, g.active, g.created_at, g.updated_at,
	(SELECT COUNT(*) FROM expedition_registrations r WHERE r.group_id = g.id AND NOT r.is_waitlist),
	(SELECT COUNT(*) FROM expedition_registrations r WHERE r.group_id = g.id AND r.is_waitlist)`

func scanGroup(row pgx.Row) (*Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.AgencyID, &g.Name, &g.Destination, &g.Description, &g.StartDate, &g.EndDate,
		&g.MaxParticipants, &g.PublicToken, &g.Active, &g.CreatedAt, &g.UpdatedAt, &g.ConfirmedCount, &g.WaitlistCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repository) ListGroups(ctx context.Context, agencyID uuid.UUID) ([]Group, error) {
	rows, err := r.db.Query(ctx, `SELECT `+groupColumns+` FROM expedition_groups g
		WHERE g.agency_id = $1 ORDER BY g.start_date NULLS LAST, g.name`, agencyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *repository) GetGroup(ctx context.Context, agencyID, id uuid.UUID) (*Group, error) {
	return scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM expedition_groups g
		WHERE g.agency_id = $1 AND g.id = $2`, agencyID, id))
}

func (r *repository) GetGroupByToken(ctx context.Context, token string) (*Group, error) {
	return scanGroup(r.db.QueryRow(ctx, `SELECT `+groupColumns+` FROM expedition_groups g
		WHERE g.public_token = $1`, token))
}

func (r *repository) CreateGroup(ctx context.Context, g Group) (*Group, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO expedition_groups (id, agency_id, name, destination, description, start_date, end_date,
			max_participants, public_token, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		uuid.New(), g.AgencyID, g.Name, g.Destination, g.Description, g.StartDate, g.EndDate,
		g.MaxParticipants, g.PublicToken, g.Active).Scan(&id)
	if err != nil {
		return nil, err
	}
	return r.GetGroup(ctx, g.AgencyID, id)
}

func (r *repository) UpdateGroup(ctx context.Context, g Group) (*Group, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE expedition_groups SET name = $3, destination = $4, description = $5, start_date = $6,
			end_date = $7, max_participants = $8, active = $9, updated_at = NOW()
		WHERE agency_id = $1 AND id = $2`,
		g.AgencyID, g.ID, g.Name, g.Destination, g.Description, g.StartDate, g.EndDate, g.MaxParticipants, g.Active)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrGroupNotFound
	}
	return r.GetGroup(ctx, g.AgencyID, g.ID)
}

func (r *repository) DeleteGroup(ctx context.Context, agencyID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expedition_groups WHERE agency_id = $1 AND id = $2`, agencyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGroupNotFound
	}
	return nil
}

func (r *repository) CountConfirmed(ctx context.Context, groupID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM expedition_registrations
		WHERE group_id = $1 AND NOT is_waitlist`, groupID).Scan(&n)
	return n, err
}

const registrationColumns = `r.id, r.group_id, r.name, r.email, r.phone, r.is_waitlist, r.status, r.notes, r.created_at, r.updated_at`

func scanRegistration(row pgx.Row) (*Registration, error) {
	var reg Registration
	err := row.Scan(&reg.ID, &reg.GroupID, &reg.Name, &reg.Email, &reg.Phone, &reg.IsWaitlist, &reg.Status,
		&reg.Notes, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repository) ListRegistrations(ctx context.Context, groupID uuid.UUID) ([]Registration, error) {
	rows, err := r.db.Query(ctx, `SELECT `+registrationColumns+` FROM expedition_registrations r
		WHERE r.group_id = $1 ORDER BY r.created_at`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

func (r *repository) GetRegistration(ctx context.Context, agencyID, id uuid.UUID) (*Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx, `SELECT `+registrationColumns+` FROM expedition_registrations r
		JOIN expedition_groups g ON g.id = r.group_id
		WHERE g.agency_id = $1 AND r.id = $2`, agencyID, id))
}

func (r *repository) CreateRegistration(ctx context.Context, reg Registration) (*Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx, `
		INSERT INTO expedition_registrations AS r (id, group_id, name, email, phone, is_waitlist, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+registrationColumns,
		uuid.New(), reg.GroupID, reg.Name, reg.Email, reg.Phone, reg.IsWaitlist, reg.Status, reg.Notes))
}

func (r *repository) UpdateRegistration(ctx context.Context, reg Registration) (*Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx, `
		UPDATE expedition_registrations AS r SET name = $2, email = $3, phone = $4, is_waitlist = $5,
			status = $6, notes = $7, updated_at = NOW()
		WHERE r.id = $1
		RETURNING `+registrationColumns,
		reg.ID, reg.Name, reg.Email, reg.Phone, reg.IsWaitlist, reg.Status, reg.Notes))
}

func (r *repository) DeleteRegistration(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM expedition_registrations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
