package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/barberline/barbershop/libs/db"
	"github.com/barberline/barbershop/services/booking-service/internal/calendar"
	"github.com/barberline/barbershop/services/booking-service/internal/model"
	"github.com/barberline/barbershop/services/booking-service/internal/outbox"
	"github.com/barberline/barbershop/services/booking-service/internal/slots"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded schema migrations.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewPostgres(pool *db.Pool, outboxRepo *outbox.Repository) *Postgres {
	return &Postgres{pool: pool, outbox: outboxRepo}
}

var _ Store = (*Postgres)(nil)

func (p *Postgres) Migrate(ctx context.Context) (int, error) {
	return db.Migrate(ctx, p.pool, Migrations())
}

// classify maps Postgres failures onto the package errors. Other errors pass through.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrDuplicate, db.ConstraintName(err))
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %s", ErrReferenced, db.ConstraintName(err))
	default:
		return err
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (p *Postgres) BlockedDay(ctx context.Context, d calendar.Date) (model.BlockedDay, bool, error) {
	b, err := scanBlockedDay(p.pool.QueryRow(ctx, `
		SELECT id::text, date, reason, created_at
		FROM blocked_days
		WHERE date = $1
	`, d.UTC()))
	if db.IsNoRows(err) {
		return model.BlockedDay{}, false, nil
	}
	if err != nil {
		return model.BlockedDay{}, false, err
	}
	return b, true, nil
}

func (p *Postgres) BlockedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BlockedTimeSlot, error) {
	return p.ListBlockedSlots(ctx, d, d)
}

func (p *Postgres) BookedSlotsForDate(ctx context.Context, d calendar.Date) ([]model.BookedSlot, error) {
	byDate, err := p.BookedSlotsBetween(ctx, d, d)
	if err != nil {
		return nil, err
	}
	return byDate[d], nil
}

func (p *Postgres) ListBlockedDays(ctx context.Context, from, to calendar.Date) ([]model.BlockedDay, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, date, reason, created_at
		FROM blocked_days
		WHERE date BETWEEN $1 AND $2
		ORDER BY date
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedDay
	for rows.Next() {
		b, err := scanBlockedDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) ListBlockedSlots(ctx context.Context, from, to calendar.Date) ([]model.BlockedTimeSlot, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, date, time, reason, created_at
		FROM blocked_slots
		WHERE date BETWEEN $1 AND $2
		ORDER BY date, slot_minute
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BlockedTimeSlot
	for rows.Next() {
		b, err := scanBlockedSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Postgres) BookedSlotsBetween(ctx context.Context, from, to calendar.Date) (map[calendar.Date][]model.BookedSlot, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, date, time
		FROM appointments
		WHERE status = 'booked' AND date BETWEEN $1 AND $2
		ORDER BY date, slot_minute
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[calendar.Date][]model.BookedSlot{}
	for rows.Next() {
		var (
			id    string
			date  time.Time
			label string
		)
		if err := rows.Scan(&id, &date, &label); err != nil {
			return nil, err
		}
		d := calendar.DateOf(date, time.UTC)
		out[d] = append(out[d], model.BookedSlot{AppointmentID: id, Time: slots.Slot(label)})
	}
	return out, rows.Err()
}

func (p *Postgres) AddBlockedDay(ctx context.Context, b model.BlockedDay) (model.BlockedDay, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO blocked_days (id, date, reason, created_at)
		VALUES ($1, $2, $3, $4)
	`, b.ID, b.Date.UTC(), b.Reason, b.CreatedAt)
	if err != nil {
		return model.BlockedDay{}, classify(err)
	}
	return b, nil
}

func (p *Postgres) RemoveBlockedDay(ctx context.Context, d calendar.Date) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM blocked_days WHERE date = $1`, d.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) AddBlockedSlot(ctx context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO blocked_slots (id, date, time, slot_minute, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Date.UTC(), string(b.Time), b.Time.Minutes(), b.Reason, b.CreatedAt)
	if err != nil {
		return model.BlockedTimeSlot{}, classify(err)
	}
	return b, nil
}

func (p *Postgres) RemoveBlockedSlot(ctx context.Context, d calendar.Date, s slots.Slot) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM blocked_slots WHERE date = $1 AND time = $2`, d.UTC(), string(s))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) BlockedDayByID(ctx context.Context, id string) (model.BlockedDay, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.BlockedDay{}, ErrNotFound
	}
	b, err := scanBlockedDay(p.pool.QueryRow(ctx, `
		SELECT id::text, date, reason, created_at
		FROM blocked_days
		WHERE id = $1
	`, id))
	if err != nil {
		return model.BlockedDay{}, classify(err)
	}
	return b, nil
}

func (p *Postgres) UpdateBlockedDay(ctx context.Context, b model.BlockedDay) (model.BlockedDay, error) {
	if _, err := uuid.Parse(b.ID); err != nil {
		return model.BlockedDay{}, ErrNotFound
	}
	out, err := scanBlockedDay(p.pool.QueryRow(ctx, `
		UPDATE blocked_days
		SET date = $2, reason = $3
		WHERE id = $1
		RETURNING id::text, date, reason, created_at
	`, b.ID, b.Date.UTC(), b.Reason))
	if err != nil {
		return model.BlockedDay{}, classify(err)
	}
	return out, nil
}

func (p *Postgres) BlockedSlotByID(ctx context.Context, id string) (model.BlockedTimeSlot, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.BlockedTimeSlot{}, ErrNotFound
	}
	b, err := scanBlockedSlot(p.pool.QueryRow(ctx, `
		SELECT id::text, date, time, reason, created_at
		FROM blocked_slots
		WHERE id = $1
	`, id))
	if err != nil {
		return model.BlockedTimeSlot{}, classify(err)
	}
	return b, nil
}

func (p *Postgres) UpdateBlockedSlot(ctx context.Context, b model.BlockedTimeSlot) (model.BlockedTimeSlot, error) {
	if _, err := uuid.Parse(b.ID); err != nil {
		return model.BlockedTimeSlot{}, ErrNotFound
	}
	out, err := scanBlockedSlot(p.pool.QueryRow(ctx, `
		UPDATE blocked_slots
		SET date = $2, time = $3, slot_minute = $4, reason = $5
		WHERE id = $1
		RETURNING id::text, date, time, reason, created_at
	`, b.ID, b.Date.UTC(), string(b.Time), b.Time.Minutes(), b.Reason))
	if err != nil {
		return model.BlockedTimeSlot{}, classify(err)
	}
	return out, nil
}

func (p *Postgres) CreateBooking(ctx context.Context, nb NewBooking, events EventsFunc) (model.AppointmentView, error) {
	var view model.AppointmentView
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		cust, _, err := upsertCustomer(ctx, tx, nb.Customer, nb.At)
		if err != nil {
			return err
		}

		appt := model.Appointment{
			ID:         uuid.NewString(),
			CustomerID: cust.ID,
			Date:       nb.Date,
			Time:       nb.Time,
			Service:    nb.Service,
			Status:     model.StatusBooked,
			Notes:      nb.Notes,
			CreatedAt:  nb.At,
			UpdatedAt:  nb.At,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO appointments (id, customer_id, date, time, slot_minute, service, status, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		`, appt.ID, appt.CustomerID, appt.Date.UTC(), string(appt.Time), appt.Time.Minutes(), appt.Service, string(appt.Status), appt.Notes, nb.At)
		if err != nil {
			return err
		}

		view = model.AppointmentView{Appointment: appt, Customer: cust}
		return p.insertEvents(ctx, tx, events, view)
	})
	if err != nil {
		return model.AppointmentView{}, classify(err)
	}
	return view, nil
}

func (p *Postgres) UpdateAppointment(ctx context.Context, id string, mutate Mutation) (model.AppointmentView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.AppointmentView{}, ErrNotFound
	}
	var view model.AppointmentView
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanAppointmentView(tx.QueryRow(ctx, selectAppointmentView+`
			WHERE a.id = $1
			FOR UPDATE OF a
		`, id))
		if err != nil {
			return err
		}

		next, evts, err := mutate(cur)
		if err != nil {
			return err
		}
		next.ID = cur.ID
		next.CustomerID = cur.CustomerID
		next.CreatedAt = cur.CreatedAt

		_, err = tx.Exec(ctx, `
			UPDATE appointments
			SET date = $2,
				time = $3,
				slot_minute = $4,
				service = $5,
				status = $6,
				notes = $7,
				updated_at = $8
			WHERE id = $1
		`, id, next.Date.UTC(), string(next.Time), next.Time.Minutes(), next.Service, string(next.Status), next.Notes, next.UpdatedAt)
		if err != nil {
			return err
		}
		for _, evt := range evts {
			if err := p.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		view = model.AppointmentView{Appointment: next, Customer: cur.Customer}
		return nil
	})
	if err != nil {
		return model.AppointmentView{}, classify(err)
	}
	return view, nil
}

func (p *Postgres) DeleteAppointment(ctx context.Context, id string, events EventsFunc) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	err := p.pool.InTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanAppointmentView(tx.QueryRow(ctx, selectAppointmentView+`
			WHERE a.id = $1
			FOR UPDATE OF a
		`, id))
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
			return err
		}
		return p.insertEvents(ctx, tx, events, cur)
	})
	return classify(err)
}

func (p *Postgres) GetAppointment(ctx context.Context, id string) (model.AppointmentView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.AppointmentView{}, ErrNotFound
	}
	v, err := scanAppointmentView(p.pool.QueryRow(ctx, selectAppointmentView+` WHERE a.id = $1`, id))
	if err != nil {
		return model.AppointmentView{}, classify(err)
	}
	return v, nil
}

func (p *Postgres) ListAppointments(ctx context.Context, f model.AppointmentFilter) ([]model.AppointmentView, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.date >= $%d", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("a.date <= $%d", f.To.UTC())
	}
	if f.Status != "" {
		add("a.status = $%d", string(f.Status))
	}
	if f.CustomerID != "" {
		if _, err := uuid.Parse(f.CustomerID); err != nil {
			return nil, nil
		}
		add("a.customer_id = $%d", f.CustomerID)
	}

	query := selectAppointmentView
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, clampLimit(f.Limit))
	query += fmt.Sprintf(" ORDER BY a.date, a.slot_minute, a.created_at LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AppointmentView
	for rows.Next() {
		v, err := scanAppointmentView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (p *Postgres) GetCustomer(ctx context.Context, id string) (model.Customer, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Customer{}, ErrNotFound
	}
	var c model.Customer
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, name, email, phone, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return model.Customer{}, classify(err)
	}
	return c, nil
}

func (p *Postgres) ListCustomers(ctx context.Context, f model.CustomerFilter) ([]model.Customer, error) {
	search := strings.TrimSpace(f.Search)
	pattern := "%" + escapeLike(search) + "%"
	rows, err := p.pool.Query(ctx, `
		SELECT id::text, name, email, phone, created_at, updated_at
		FROM customers
		WHERE $1 = '' OR name ILIKE $2 OR email ILIKE $2 OR phone ILIKE $2
		ORDER BY name, email
		LIMIT $3
	`, search, pattern, clampLimit(f.Limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) UpsertCustomer(ctx context.Context, c model.Customer, at time.Time) (model.Customer, bool, error) {
	cust, created, err := upsertCustomer(ctx, p.pool, c, at)
	if err != nil {
		return model.Customer{}, false, classify(err)
	}
	return cust, created, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// upsertCustomer is keyed on email. Last write wins on name and phone; xmax = 0 only for
// a freshly inserted row.
func upsertCustomer(ctx context.Context, q queryRower, c model.Customer, at time.Time) (model.Customer, bool, error) {
	var created bool
	err := q.QueryRow(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (email) DO UPDATE
		SET name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			updated_at = EXCLUDED.updated_at
		RETURNING id::text, created_at, updated_at, (xmax = 0)
	`, uuid.NewString(), c.Name, c.Email, c.Phone, at).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &created)
	if err != nil {
		return model.Customer{}, false, err
	}
	return c, created, nil
}

func (p *Postgres) UpdateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	if _, err := uuid.Parse(c.ID); err != nil {
		return model.Customer{}, ErrNotFound
	}
	err := p.pool.QueryRow(ctx, `
		UPDATE customers
		SET name = $2, email = $3, phone = $4, updated_at = $5
		WHERE id = $1
		RETURNING created_at
	`, c.ID, c.Name, c.Email, c.Phone, c.UpdatedAt).Scan(&c.CreatedAt)
	if err != nil {
		return model.Customer{}, classify(err)
	}
	return c, nil
}

func (p *Postgres) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := p.pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) CreateAdmin(ctx context.Context, a model.Admin) (model.Admin, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO admins (id, email, name, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.Role, a.CreatedAt)
	if err != nil {
		return model.Admin{}, classify(err)
	}
	return a, nil
}

func (p *Postgres) AdminByEmail(ctx context.Context, email string) (model.Admin, error) {
	var a model.Admin
	err := p.pool.QueryRow(ctx, `
		SELECT id::text, email, name, password_hash, role, created_at
		FROM admins
		WHERE email = $1
	`, strings.ToLower(email)).Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return model.Admin{}, classify(err)
	}
	return a, nil
}

func (p *Postgres) insertEvents(ctx context.Context, tx pgx.Tx, events EventsFunc, v model.AppointmentView) error {
	evts, err := collect(events, v)
	if err != nil {
		return err
	}
	for _, evt := range evts {
		if err := p.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return nil
}

const selectAppointmentView = `
	SELECT a.id::text, a.customer_id::text, a.date, a.time, a.service, a.status, a.notes, a.created_at, a.updated_at,
		c.id::text, c.name, c.email, c.phone, c.created_at, c.updated_at
	FROM appointments a
	JOIN customers c ON c.id = a.customer_id`

func scanAppointmentView(row rowScanner) (model.AppointmentView, error) {
	var (
		v      model.AppointmentView
		date   time.Time
		label  string
		status string
	)
	err := row.Scan(
		&v.ID, &v.CustomerID, &date, &label, &v.Service, &status, &v.Notes, &v.CreatedAt, &v.UpdatedAt,
		&v.Customer.ID, &v.Customer.Name, &v.Customer.Email, &v.Customer.Phone, &v.Customer.CreatedAt, &v.Customer.UpdatedAt,
	)
	if err != nil {
		return model.AppointmentView{}, err
	}
	v.Date = calendar.DateOf(date, time.UTC)
	v.Time = slots.Slot(label)
	v.Status = model.Status(status)
	return v, nil
}

func scanBlockedDay(row rowScanner) (model.BlockedDay, error) {
	var (
		b    model.BlockedDay
		date time.Time
	)
	if err := row.Scan(&b.ID, &date, &b.Reason, &b.CreatedAt); err != nil {
		return model.BlockedDay{}, err
	}
	b.Date = calendar.DateOf(date, time.UTC)
	return b, nil
}

func scanBlockedSlot(row rowScanner) (model.BlockedTimeSlot, error) {
	var (
		b     model.BlockedTimeSlot
		date  time.Time
		label string
	)
	if err := row.Scan(&b.ID, &date, &label, &b.Reason, &b.CreatedAt); err != nil {
		return model.BlockedTimeSlot{}, err
	}
	b.Date = calendar.DateOf(date, time.UTC)
	b.Time = slots.Slot(label)
	return b, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
