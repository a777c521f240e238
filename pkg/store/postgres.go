package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const storeTimeout = 3 * time.Second

// Postgres implements Store on PostgreSQL via pgx. Version conflicts are
// enforced with a conditional UPDATE on the version column.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	s := &Postgres{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			account_id TEXT PRIMARY KEY,
			guest_name TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'Active'
		);
		CREATE TABLE IF NOT EXISTS reservations (
			reservation_id SERIAL PRIMARY KEY,
			account_id     TEXT NOT NULL REFERENCES accounts(account_id),
			guest_name     TEXT NOT NULL,
			check_in_date  TEXT NOT NULL,
			room_type      TEXT NOT NULL,
			status         TEXT NOT NULL,
			version        INT NOT NULL DEFAULT 1,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS reservations_account_idx ON reservations(account_id);
	`)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// SeedAccount inserts an account if it does not exist yet.
func (s *Postgres) SeedAccount(ctx context.Context, a Account) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (account_id, guest_name, status) VALUES ($1, $2, $3)
		 ON CONFLICT (account_id) DO NOTHING`,
		a.ID, a.GuestName, a.Status)
	return wrapUnavailable(err)
}

// SeedReservation inserts a reservation with an explicit ID if missing.
func (s *Postgres) SeedReservation(ctx context.Context, r Reservation) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reservations (reservation_id, account_id, guest_name, check_in_date, room_type, status, version)
		 VALUES ($1, $2, $3, $4, $5, $6, 1)
		 ON CONFLICT (reservation_id) DO NOTHING`,
		r.ID, r.AccountID, r.GuestName, r.CheckIn, r.RoomType, string(r.Status))
	return wrapUnavailable(err)
}

// GetAccount looks up an account by ID.
func (s *Postgres) GetAccount(ctx context.Context, id string) (*Account, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, guest_name, status FROM accounts WHERE account_id = $1`, id).
		Scan(&a.ID, &a.GuestName, &a.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return &a, nil
}

// FindReservations returns all reservations for an account, oldest first.
func (s *Postgres) FindReservations(ctx context.Context, accountID string) ([]Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT reservation_id, account_id, guest_name, check_in_date, room_type, status, version, updated_at
		 FROM reservations WHERE account_id = $1 ORDER BY reservation_id`, accountID)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		var r Reservation
		var status string
		if err := rows.Scan(&r.ID, &r.AccountID, &r.GuestName, &r.CheckIn, &r.RoomType, &status, &r.Version, &r.UpdatedAt); err != nil {
			return nil, wrapUnavailable(err)
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapUnavailable(err)
	}
	return out, nil
}

// CreateReservation books a new reservation for an account.
func (s *Postgres) CreateReservation(ctx context.Context, accountID string, d Details) (*Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	var r Reservation
	var status string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reservations (account_id, guest_name, check_in_date, room_type, status, version)
		 VALUES ($1, $2, $3, $4, $5, 1)
		 RETURNING reservation_id, account_id, guest_name, check_in_date, room_type, status, version, updated_at`,
		accountID, d.GuestName, d.CheckIn, d.RoomType, string(StatusConfirmed)).
		Scan(&r.ID, &r.AccountID, &r.GuestName, &r.CheckIn, &r.RoomType, &status, &r.Version, &r.UpdatedAt)
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	r.Status = Status(status)
	return &r, nil
}

// CancelReservation marks a reservation cancelled.
func (s *Postgres) CancelReservation(ctx context.Context, id int) (*Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var r Reservation
	var status string
	err := s.pool.QueryRow(ctx,
		`UPDATE reservations
		 SET status = $2, version = version + 1, updated_at = now()
		 WHERE reservation_id = $1 AND status <> $2
		 RETURNING reservation_id, account_id, guest_name, check_in_date, room_type, status, version, updated_at`,
		id, string(StatusCancelled)).
		Scan(&r.ID, &r.AccountID, &r.GuestName, &r.CheckIn, &r.RoomType, &status, &r.Version, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or already cancelled; return the row if it exists.
		return s.getReservation(ctx, id)
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	r.Status = Status(status)
	return &r, nil
}

// EditReservation applies changes under an optimistic version check.
func (s *Postgres) EditReservation(ctx context.Context, id int, c Changes, expectedVersion int) (*Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var r Reservation
	var status string
	err := s.pool.QueryRow(ctx,
		`UPDATE reservations
		 SET check_in_date = COALESCE(NULLIF($3, ''), check_in_date),
		     room_type     = COALESCE(NULLIF($4, ''), room_type),
		     status        = $5,
		     version       = version + 1,
		     updated_at    = now()
		 WHERE reservation_id = $1 AND version = $2
		 RETURNING reservation_id, account_id, guest_name, check_in_date, room_type, status, version, updated_at`,
		id, expectedVersion, c.CheckIn, c.RoomType, string(StatusModified)).
		Scan(&r.ID, &r.AccountID, &r.GuestName, &r.CheckIn, &r.RoomType, &status, &r.Version, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a stale version from a missing record.
		if _, lookupErr := s.getReservation(ctx, id); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *Postgres) getReservation(ctx context.Context, id int) (*Reservation, error) {
	var r Reservation
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT reservation_id, account_id, guest_name, check_in_date, room_type, status, version, updated_at
		 FROM reservations WHERE reservation_id = $1`, id).
		Scan(&r.ID, &r.AccountID, &r.GuestName, &r.CheckIn, &r.RoomType, &status, &r.Version, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrReservationNotFound
	}
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	r.Status = Status(status)
	return &r, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func wrapUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Ensure Postgres implements Store
var _ Store = (*Postgres)(nil)
