package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"appointment-booking-api/internal/model"
)

// requester display name prefers the linked user's full name
const appointmentSelect = `
	SELECT a.id, a.branch_id, b.name, b.location,
	       COALESCE(u.full_name, a.requested_by), a.requested_by_id,
	       a.title, a.date, a.start_time, a.end_time,
	       COALESCE(a.description, ''), a.status, COALESCE(a.admin_comment, ''),
	       a.version, a.created_at, a.updated_at
	FROM appointments a
	JOIN branches b ON b.id = a.branch_id
	LEFT JOIN users u ON u.id = a.requested_by_id`

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a          model.Appointment
		date       time.Time
		start, end pgtype.Time
	)
	err := row.Scan(
		&a.ID, &a.BranchID, &a.BranchName, &a.BranchLocation,
		&a.RequestedBy, &a.RequestedByID,
		&a.Title, &date, &start, &end,
		&a.Description, &a.Status, &a.AdminComment,
		&a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	a.Date = model.DateOf(date)
	a.StartTime = model.TimeOfDayFromMicros(start.Microseconds)
	a.EndTime = model.TimeOfDayFromMicros(end.Microseconds)
	return &a, nil
}

func pgTime(t model.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Micros(), Valid: true}
}

// CreateAppointment inserts a and its first audit row in one transaction.
func (s *Store) CreateAppointment(ctx context.Context, a *model.Appointment, audit *model.AppointmentAudit) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO appointments
			   (branch_id, requested_by, requested_by_id, title, date, start_time, end_time,
			    description, status, admin_comment)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),$9,NULLIF($10,''))
			 RETURNING id, version, created_at, updated_at`,
			a.BranchID, a.RequestedBy, a.RequestedByID, a.Title, a.Date.Time,
			pgTime(a.StartTime), pgTime(a.EndTime), a.Description, a.Status, a.AdminComment,
		).Scan(&a.ID, &a.Version, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return err
		}
		if audit == nil {
			return nil
		}
		audit.AppointmentID = a.ID
		return insertAudit(ctx, tx, audit)
	})
}

func (s *Store) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return scanAppointment(s.pool.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
}

// ListAppointments returns one page of matches plus the unpaged match count.
func (s *Store) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.Appointment, int, error) {
	f.Normalize()
	where, args := appointmentWhere(f)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	q := appointmentSelect + where + appointmentOrder(f) +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, q, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, mapErr(rows.Err())
}

func appointmentWhere(f model.AppointmentFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("a.status = $%d", string(*f.Status))
	}
	if f.BranchID != nil {
		add("a.branch_id = $%d", *f.BranchID)
	}
	if f.RequestedByID != nil {
		add("a.requested_by_id = $%d", *f.RequestedByID)
	}
	if f.StartDate != nil {
		add("a.date >= $%d", f.StartDate.Time)
	}
	if f.EndDate != nil {
		add("a.date <= $%d", f.EndDate.Time)
	}
	if f.SearchText != "" {
		add("(a.title ILIKE $%[1]d OR a.requested_by ILIKE $%[1]d)", "%"+EscapeLike(f.SearchText)+"%")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func appointmentOrder(f model.AppointmentFilter) string {
	key, desc := f.Order()
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	switch key {
	case model.SortByStatus:
		return ` ORDER BY array_position(ARRAY['Draft','Pending','Approved','Rejected']::text[], a.status::text)` + dir + `, a.id` + dir
	case model.SortByRequestedBy:
		return ` ORDER BY lower(a.requested_by)` + dir + `, a.id` + dir
	default:
		return ` ORDER BY a.date` + dir + `, a.start_time` + dir + `, a.id` + dir
	}
}

// EscapeLike makes LIKE wildcards in s match literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// UpdateAppointment rewrites the editable fields of a, provided a.Version
// still matches the stored row. The requester is fixed at creation and
// admin comments belong to Transition. audit may be nil.
func (s *Store) UpdateAppointment(ctx context.Context, a *model.Appointment, audit *model.AppointmentAudit) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE appointments
			 SET branch_id=$1, title=$2, date=$3, start_time=$4, end_time=$5,
			     description=NULLIF($6,''), status=$7,
			     version = version + 1, updated_at = NOW()
			 WHERE id=$8 AND version=$9
			 RETURNING version, updated_at`,
			a.BranchID, a.Title, a.Date.Time, pgTime(a.StartTime), pgTime(a.EndTime),
			a.Description, a.Status, a.ID, a.Version,
		).Scan(&a.Version, &a.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return missingOrConflict(ctx, tx, a.ID)
		}
		if err != nil {
			return err
		}
		if audit == nil {
			return nil
		}
		audit.AppointmentID = a.ID
		return insertAudit(ctx, tx, audit)
	})
}

// Transition moves an appointment to a new status if its version is still
// version. A non-nil adminComment replaces the stored comment.
func (s *Store) Transition(ctx context.Context, id int64, version int, to model.Status, adminComment *string, audit *model.AppointmentAudit) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE appointments
			 SET status = $1,
			     admin_comment = CASE WHEN $2::boolean THEN NULLIF($3, '') ELSE admin_comment END,
			     version = version + 1, updated_at = NOW()
			 WHERE id = $4 AND version = $5`,
			to, adminComment != nil, deref(adminComment), id, version,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return missingOrConflict(ctx, tx, id)
		}
		if audit == nil {
			return nil
		}
		audit.AppointmentID = id
		return insertAudit(ctx, tx, audit)
	})
}

func missingOrConflict(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return &DBError{Sentinel: ErrNotFound, Cause: pgx.ErrNoRows}
	}
	return &DBError{Sentinel: ErrConflict, Cause: fmt.Errorf("appointment %d version changed", id)}
}

func insertAudit(ctx context.Context, tx pgx.Tx, au *model.AppointmentAudit) error {
	return tx.QueryRow(ctx,
		`INSERT INTO appointment_audits (appointment_id, from_status, to_status, action_by, comment)
		 VALUES ($1,$2,$3,$4,NULLIF($5,''))
		 RETURNING id, action_at`,
		au.AppointmentID, au.FromStatus, au.ToStatus, au.ActionBy, au.Comment,
	).Scan(&au.ID, &au.ActionAt)
}

// ListAudits returns an appointment's history, newest first.
func (s *Store) ListAudits(ctx context.Context, appointmentID int64) ([]model.AppointmentAudit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, appointment_id, from_status, to_status, action_by, action_at, COALESCE(comment, '')
		 FROM appointment_audits
		 WHERE appointment_id = $1
		 ORDER BY action_at DESC, id DESC`, appointmentID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := []model.AppointmentAudit{}
	for rows.Next() {
		var au model.AppointmentAudit
		if err := rows.Scan(&au.ID, &au.AppointmentID, &au.FromStatus, &au.ToStatus, &au.ActionBy, &au.ActionAt, &au.Comment); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, au)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) CountAppointments(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`).Scan(&n)
	return n, mapErr(err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
