package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store used for local runs and tests.
// All mutations go through one mutex; version checks still apply so the
// conflict behavior matches the SQL backend.
type Memory struct {
	mu           sync.Mutex
	accounts     map[string]Account
	reservations map[int]Reservation
	nextID       int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]Account),
		reservations: make(map[int]Reservation),
		nextID:       1000,
	}
}

// NewSeededMemory creates an in-memory store preloaded with the demo
// accounts used by local testing and the end-to-end scenarios.
func NewSeededMemory() *Memory {
	m := NewMemory()
	m.AddAccount(Account{ID: "10001", GuestName: "John Smith", Status: AccountActive})
	m.AddAccount(Account{ID: "10002", GuestName: "Jane Doe", Status: AccountActive})
	m.AddAccount(Account{ID: "10003", GuestName: "Test User", Status: AccountActive})
	m.AddReservation(Reservation{
		ID: 555, AccountID: "10001", GuestName: "John Smith",
		CheckIn: "2025-12-15", RoomType: "King", Status: StatusConfirmed, Version: 1,
	})
	m.AddReservation(Reservation{
		ID: 666, AccountID: "10002", GuestName: "Jane Doe",
		CheckIn: "2025-12-16", RoomType: "Queen", Status: StatusCancelled, Version: 1,
	})
	return m
}

// AddAccount inserts or replaces an account.
func (m *Memory) AddAccount(a Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
}

// AddReservation inserts or replaces a reservation.
func (m *Memory) AddReservation(r Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	m.reservations[r.ID] = r
	if r.ID >= m.nextID {
		m.nextID = r.ID + 1
	}
}

// GetAccount looks up an account by ID.
func (m *Memory) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := a
	return &out, nil
}

// FindReservations returns all reservations for an account, oldest first.
func (m *Memory) FindReservations(ctx context.Context, accountID string) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	var out []Reservation
	for _, r := range m.reservations {
		if r.AccountID == accountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateReservation books a new reservation for an account.
func (m *Memory) CreateReservation(ctx context.Context, accountID string, d Details) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}
	r := Reservation{
		ID:        m.nextID,
		AccountID: accountID,
		GuestName: d.GuestName,
		CheckIn:   d.CheckIn,
		RoomType:  d.RoomType,
		Status:    StatusConfirmed,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	m.nextID++
	m.reservations[r.ID] = r
	out := r
	return &out, nil
}

// CancelReservation marks a reservation cancelled.
func (m *Memory) CancelReservation(ctx context.Context, id int) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	if r.Status != StatusCancelled {
		r.Status = StatusCancelled
		r.Version++
		r.UpdatedAt = time.Now()
		m.reservations[id] = r
	}
	out := r
	return &out, nil
}

// EditReservation applies changes under an optimistic version check.
func (m *Memory) EditReservation(ctx context.Context, id int, c Changes, expectedVersion int) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	if r.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	if c.CheckIn != "" {
		r.CheckIn = c.CheckIn
	}
	if c.RoomType != "" {
		r.RoomType = c.RoomType
	}
	r.Status = StatusModified
	r.Version++
	r.UpdatedAt = time.Now()
	m.reservations[id] = r
	out := r
	return &out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// Ensure Memory implements Store
var _ Store = (*Memory)(nil)
