package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	pnr           CHAR(10) PRIMARY KEY,
	train_number  TEXT NOT NULL,
	doj           TEXT NOT NULL,
	source        TEXT NOT NULL,
	destination   TEXT NOT NULL,
	coach_code    TEXT NOT NULL,
	quota_code    TEXT NOT NULL,
	fare          JSONB NOT NULL,
	mobile        TEXT NOT NULL,
	email         TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	departure_at  TIMESTAMPTZ NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS bookings_doj_status_idx ON bookings (doj, status);

CREATE TABLE IF NOT EXISTS booking_passengers (
	pnr             CHAR(10) NOT NULL REFERENCES bookings (pnr),
	passenger_id    INT NOT NULL,
	name            TEXT NOT NULL,
	age             INT NOT NULL,
	gender          TEXT NOT NULL,
	is_pwd          BOOLEAN NOT NULL DEFAULT false,
	booking_status  TEXT NOT NULL,
	status          TEXT NOT NULL,
	allocation_id   TEXT NOT NULL UNIQUE,
	seat            JSONB NOT NULL,
	fare            NUMERIC(12,2) NOT NULL,
	refund          NUMERIC(12,2) NOT NULL DEFAULT 0,
	cancelled_at    TIMESTAMPTZ,
	PRIMARY KEY (pnr, passenger_id)
);
`

const uniqueViolation = "23505"

// DB is the part of *pgxpool.Pool the registry uses.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PGBookingRepository struct {
	db DB
}

func NewBookingRepository(db DB) BookingRepository {
	return &PGBookingRepository{db: db}
}

// Migrate creates the registry tables when they do not exist yet.
func Migrate(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate bookings schema: %w", err)
	}
	return nil
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	fare, err := json.Marshal(booking.Fare)
	if err != nil {
		return fmt.Errorf("encode fare: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := tx.QueryRow(ctx, `INSERT INTO bookings (pnr, train_number, doj, source, destination, coach_code, quota_code, fare, mobile, email, status, departure_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		booking.PNR, booking.TrainNumber, booking.DOJ, booking.Source, booking.Destination, booking.CoachCode, booking.QuotaCode,
		fare, booking.Contact.Mobile, booking.Contact.Email, booking.Status, booking.DepartureAt).
		Scan(&booking.CreatedAt, &booking.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("create booking %s: %w", booking.PNR, domain.ErrDuplicatePNR)
		}
		return err
	}

	for _, p := range booking.Passengers {
		seat, err := json.Marshal(p.Seat)
		if err != nil {
			return fmt.Errorf("encode seat: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO booking_passengers (pnr, passenger_id, name, age, gender, is_pwd, booking_status, status, allocation_id, seat, fare, refund)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::text::numeric, $12::text::numeric)`,
			booking.PNR, p.ID, p.Name, p.Age, p.Gender, p.IsPWD, p.BookingStatus, p.Status, p.Seat.AllocationID, seat,
			p.Fare.StringFixed(2), p.Refund.StringFixed(2)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *PGBookingRepository) GetByPNR(ctx context.Context, pnr string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT pnr, train_number, doj, source, destination, coach_code, quota_code, fare, mobile, email, status, departure_at, created_at, updated_at
		FROM bookings WHERE pnr=$1`, pnr)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pnr %s: %w", pnr, domain.ErrNotFound)
		}
		return nil, err
	}

	passengers, err := r.loadPassengers(ctx, []string{pnr})
	if err != nil {
		return nil, err
	}
	b.Passengers = passengers[pnr]
	return b, nil
}

func (r *PGBookingRepository) ApplyCancellation(ctx context.Context, pnr string, cancelled []domain.Passenger) (*domain.Booking, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM bookings WHERE pnr=$1 FOR UPDATE`, pnr).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pnr %s: %w", pnr, domain.ErrNotFound)
		}
		return nil, err
	}

	for _, p := range cancelled {
		at := time.Now()
		if p.CancelledAt != nil {
			at = *p.CancelledAt
		}
		if _, err := tx.Exec(ctx, `UPDATE booking_passengers
			SET status=$1, seat=jsonb_set(seat, '{status}', to_jsonb($1::text)), refund=$2::text::numeric, cancelled_at=$3
			WHERE pnr=$4 AND passenger_id=$5 AND status <> $1`,
			domain.SeatStatusCancelled, p.Refund.StringFixed(2), at, pnr, p.ID); err != nil {
			return nil, err
		}
	}
	if err := refreshStatus(ctx, tx, pnr); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByPNR(ctx, pnr)
}

func (r *PGBookingRepository) ApplyAssignments(ctx context.Context, assignments []domain.SeatAssignment) ([]string, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	changed := make(map[string]bool)
	var pnrs []string
	for _, a := range assignments {
		seat, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("encode seat: %w", err)
		}
		var pnr string
		err = tx.QueryRow(ctx, `UPDATE booking_passengers SET status=$1, seat=$2
			WHERE allocation_id=$3 AND status <> $4 RETURNING pnr`,
			a.Status, seat, a.AllocationID, domain.SeatStatusCancelled).Scan(&pnr)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !changed[pnr] {
			changed[pnr] = true
			pnrs = append(pnrs, pnr)
		}
	}

	for _, pnr := range pnrs {
		if err := refreshStatus(ctx, tx, pnr); err != nil {
			return nil, err
		}
	}
	return pnrs, tx.Commit(ctx)
}

func (r *PGBookingRepository) ListActive(ctx context.Context, fromDOJ string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT pnr, train_number, doj, source, destination, coach_code, quota_code, fare, mobile, email, status, departure_at, created_at, updated_at
		FROM bookings WHERE doj >= $1 AND status <> $2 ORDER BY created_at`, fromDOJ, domain.PNRStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	var pnrs []string
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
		pnrs = append(pnrs, b.PNR)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pnrs) == 0 {
		return nil, nil
	}

	passengers, err := r.loadPassengers(ctx, pnrs)
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		bookings[i].Passengers = passengers[bookings[i].PNR]
	}
	return bookings, nil
}

func (r *PGBookingRepository) loadPassengers(ctx context.Context, pnrs []string) (map[string][]domain.Passenger, error) {
	rows, err := r.db.Query(ctx, `SELECT pnr, passenger_id, name, age, gender, is_pwd, booking_status, status, seat, fare::text, refund::text, cancelled_at
		FROM booking_passengers WHERE pnr = ANY($1) ORDER BY pnr, passenger_id`, pnrs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]domain.Passenger, len(pnrs))
	for rows.Next() {
		var (
			pnr          string
			p            domain.Passenger
			seat         []byte
			fare, refund string
			cancelledAt  *time.Time
		)
		if err := rows.Scan(&pnr, &p.ID, &p.Name, &p.Age, &p.Gender, &p.IsPWD, &p.BookingStatus, &p.Status, &seat, &fare, &refund, &cancelledAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(seat, &p.Seat); err != nil {
			return nil, fmt.Errorf("decode seat of %s/%d: %w", pnr, p.ID, err)
		}
		if p.Fare, err = decimal.NewFromString(fare); err != nil {
			return nil, fmt.Errorf("decode fare of %s/%d: %w", pnr, p.ID, err)
		}
		if p.Refund, err = decimal.NewFromString(refund); err != nil {
			return nil, fmt.Errorf("decode refund of %s/%d: %w", pnr, p.ID, err)
		}
		p.CancelledAt = cancelledAt
		out[pnr] = append(out[pnr], p)
	}
	return out, rows.Err()
}

// refreshStatus recomputes the aggregate status of a PNR inside tx.
func refreshStatus(ctx context.Context, tx pgx.Tx, pnr string) error {
	rows, err := tx.Query(ctx, `SELECT status FROM booking_passengers WHERE pnr=$1`, pnr)
	if err != nil {
		return err
	}
	passengers, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Passenger, error) {
		var p domain.Passenger
		err := row.Scan(&p.Status)
		return p, err
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE pnr=$2`, domain.DerivePNRStatus(passengers), pnr)
	return err
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b    domain.Booking
		fare []byte
	)
	if err := row.Scan(&b.PNR, &b.TrainNumber, &b.DOJ, &b.Source, &b.Destination, &b.CoachCode, &b.QuotaCode, &fare,
		&b.Contact.Mobile, &b.Contact.Email, &b.Status, &b.DepartureAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fare, &b.Fare); err != nil {
		return nil, fmt.Errorf("decode fare of %s: %w", b.PNR, err)
	}
	return &b, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
