package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryAccounts(t *testing.T) {
	m := NewSeededMemory()
	ctx := context.Background()

	t.Run("known account", func(t *testing.T) {
		a, err := m.GetAccount(ctx, "10001")
		if err != nil {
			t.Fatalf("get account: %v", err)
		}
		if a.GuestName != "John Smith" {
			t.Errorf("expected John Smith, got %s", a.GuestName)
		}
		if !a.Active() {
			t.Error("expected active account")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		if _, err := m.GetAccount(ctx, "99999"); !errors.Is(err, ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})
}

func TestMemoryReservations(t *testing.T) {
	ctx := context.Background()

	t.Run("find seeded reservation", func(t *testing.T) {
		m := NewSeededMemory()
		rs, err := m.FindReservations(ctx, "10001")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(rs) != 1 || rs[0].ID != 555 || rs[0].Status != StatusConfirmed {
			t.Errorf("unexpected reservations: %+v", rs)
		}
	})

	t.Run("empty account has no reservations", func(t *testing.T) {
		m := NewSeededMemory()
		rs, err := m.FindReservations(ctx, "10003")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(rs) != 0 {
			t.Errorf("expected none, got %d", len(rs))
		}
	})

	t.Run("create assigns id and confirmed status", func(t *testing.T) {
		m := NewSeededMemory()
		r, err := m.CreateReservation(ctx, "10003", Details{
			GuestName: "Test User", CheckIn: "2026-01-10", RoomType: "Suite",
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if r.Status != StatusConfirmed || r.Version != 1 {
			t.Errorf("unexpected reservation: %+v", r)
		}
		rs, _ := m.FindReservations(ctx, "10003")
		if len(rs) != 1 {
			t.Errorf("expected 1 reservation, got %d", len(rs))
		}
	})

	t.Run("cancel bumps version once", func(t *testing.T) {
		m := NewSeededMemory()
		r, err := m.CancelReservation(ctx, 555)
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if r.Status != StatusCancelled || r.Version != 2 {
			t.Errorf("unexpected: %+v", r)
		}
		// Second cancel is a no-op
		r2, err := m.CancelReservation(ctx, 555)
		if err != nil {
			t.Fatalf("second cancel: %v", err)
		}
		if r2.Version != 2 {
			t.Errorf("expected version 2 after repeat cancel, got %d", r2.Version)
		}
	})

	t.Run("cancel missing reservation", func(t *testing.T) {
		m := NewSeededMemory()
		if _, err := m.CancelReservation(ctx, 9999); !errors.Is(err, ErrReservationNotFound) {
			t.Errorf("expected ErrReservationNotFound, got %v", err)
		}
	})
}

func TestMemoryEditVersioning(t *testing.T) {
	ctx := context.Background()

	t.Run("edit with matching version", func(t *testing.T) {
		m := NewSeededMemory()
		r, err := m.EditReservation(ctx, 555, Changes{CheckIn: "2025-12-20"}, 1)
		if err != nil {
			t.Fatalf("edit: %v", err)
		}
		if r.CheckIn != "2025-12-20" || r.Status != StatusModified || r.Version != 2 {
			t.Errorf("unexpected: %+v", r)
		}
		// Room type untouched
		if r.RoomType != "King" {
			t.Errorf("room type changed unexpectedly: %s", r.RoomType)
		}
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		m := NewSeededMemory()
		if _, err := m.EditReservation(ctx, 555, Changes{RoomType: "Suite"}, 1); err != nil {
			t.Fatalf("first edit: %v", err)
		}
		_, err := m.EditReservation(ctx, 555, Changes{RoomType: "Queen"}, 1)
		if !errors.Is(err, ErrVersionConflict) {
			t.Errorf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("concurrent edits have exactly one winner", func(t *testing.T) {
		m := NewSeededMemory()
		var wg sync.WaitGroup
		results := make([]error, 2)
		rooms := []string{"Suite", "Queen"}
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = m.EditReservation(ctx, 555, Changes{RoomType: rooms[i]}, 1)
			}(i)
		}
		wg.Wait()

		var wins, conflicts int
		for _, err := range results {
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrVersionConflict):
				conflicts++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if wins != 1 || conflicts != 1 {
			t.Errorf("expected 1 winner and 1 conflict, got %d/%d", wins, conflicts)
		}

		rs, _ := m.FindReservations(ctx, "10001")
		if rs[0].Version != 2 {
			t.Errorf("expected version 2 after winning edit, got %d", rs[0].Version)
		}
	})
}
