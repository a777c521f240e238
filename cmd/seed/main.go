// seed loads the demo guest accounts and reservations into the
// PostgreSQL reservation store. Safe to run repeatedly; existing rows
// are left alone.
package main

import (
	"context"
	"os"
	"time"

	"github.com/harborview/voicedesk/internal/config"
	"github.com/harborview/voicedesk/internal/log"
	"github.com/harborview/voicedesk/pkg/store"
)

func main() {
	log.Init(config.Env("LOG_LEVEL", "info"))
	logger := log.L()

	dsn := config.PostgresDSN()
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.NewPostgres(ctx, dsn)
	if err != nil {
		logger.Error("store connection failed", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	accounts := []store.Account{
		{ID: "10001", GuestName: "John Smith", Status: store.AccountActive},
		{ID: "10002", GuestName: "Jane Doe", Status: store.AccountActive},
		{ID: "10003", GuestName: "Test User", Status: store.AccountActive},
	}
	reservations := []store.Reservation{
		{
			ID: 555, AccountID: "10001", GuestName: "John Smith",
			CheckIn: "2025-12-15", RoomType: "King", Status: store.StatusConfirmed, Version: 1,
		},
		{
			ID: 666, AccountID: "10002", GuestName: "Jane Doe",
			CheckIn: "2025-12-16", RoomType: "Queen", Status: store.StatusCancelled, Version: 1,
		},
	}

	for _, a := range accounts {
		if err := st.SeedAccount(ctx, a); err != nil {
			logger.Error("account seed failed", "account", a.ID, "error", err)
			os.Exit(1)
		}
		logger.Info("account seeded", "account", a.ID, "guest", a.GuestName)
	}
	for _, r := range reservations {
		if err := st.SeedReservation(ctx, r); err != nil {
			logger.Error("reservation seed failed", "reservation", r.ID, "error", err)
			os.Exit(1)
		}
		logger.Info("reservation seeded", "reservation", r.ID, "status", string(r.Status))
	}

	logger.Info("seed complete", "accounts", len(accounts), "reservations", len(reservations))
}
