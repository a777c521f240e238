// Package store provides the reservation persistence contract and its
// backends. The store is the single shared mutable resource in the system:
// conflicting writes to the same reservation are serialized with per-record
// optimistic version checks, so concurrent edits from two calls never
// silently clobber each other.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store lookups and conflicts.
var (
	// ErrAccountNotFound is returned when no account matches the ID.
	ErrAccountNotFound = errors.New("store: account not found")

	// ErrReservationNotFound is returned when no reservation matches the ID.
	ErrReservationNotFound = errors.New("store: reservation not found")

	// ErrVersionConflict is returned when an edit's expected version is stale.
	ErrVersionConflict = errors.New("store: reservation version conflict")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// AccountStatus values as stored.
const (
	AccountActive   = "Active"
	AccountInactive = "Inactive"
)

// Account is a hotel guest account. Read-only from the core's perspective.
type Account struct {
	ID        string `json:"account_id"`
	GuestName string `json:"guest_name"`
	Status    string `json:"status"`
}

// Active reports whether the account may be verified against.
func (a *Account) Active() bool {
	return a != nil && a.Status == AccountActive
}

// Status values for a reservation.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusModified  Status = "modified"
)

// Reservation is a booking record. Mutated only through the tool gateway.
type Reservation struct {
	ID        int       `json:"reservation_id"`
	AccountID string    `json:"account_id"`
	GuestName string    `json:"guest_name"`
	CheckIn   string    `json:"check_in_date"` // YYYY-MM-DD
	RoomType  string    `json:"room_type"`
	Status    Status    `json:"status"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Details describes a new reservation.
type Details struct {
	GuestName string
	CheckIn   string // YYYY-MM-DD
	RoomType  string
}

// Changes describes an edit. Empty fields are left unchanged.
type Changes struct {
	CheckIn  string
	RoomType string
}

// Empty reports whether the edit changes nothing.
func (c Changes) Empty() bool {
	return c.CheckIn == "" && c.RoomType == ""
}

// Store is the reservation persistence contract consumed by the tool gateway.
type Store interface {
	// GetAccount looks up an account by ID.
	GetAccount(ctx context.Context, id string) (*Account, error)

	// FindReservations returns all reservations for an account, oldest first.
	FindReservations(ctx context.Context, accountID string) ([]Reservation, error)

	// CreateReservation books a new reservation for an account.
	CreateReservation(ctx context.Context, accountID string, d Details) (*Reservation, error)

	// CancelReservation marks a reservation cancelled. Cancelling an
	// already-cancelled reservation returns it unchanged.
	CancelReservation(ctx context.Context, id int) (*Reservation, error)

	// EditReservation applies changes iff expectedVersion matches the
	// current record version; otherwise it returns ErrVersionConflict.
	EditReservation(ctx context.Context, id int, c Changes, expectedVersion int) (*Reservation, error)

	// Close releases backend resources.
	Close() error
}
