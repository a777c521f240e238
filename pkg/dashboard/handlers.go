package dashboard

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/harborview/voicedesk/pkg/hub"
	"github.com/harborview/voicedesk/pkg/store"
)

// SessionView is the wire shape of one live call.
type SessionView struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	State        string `json:"state"`
	AccountID    string `json:"account_id,omitempty"`
	GuestName    string `json:"guest_name,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastActivity string `json:"last_activity"`
}

// ReservationView is the wire shape of one reservation.
type ReservationView struct {
	ID        int    `json:"id"`
	AccountID string `json:"account_id"`
	GuestName string `json:"guest_name"`
	CheckIn   string `json:"check_in_date"`
	RoomType  string `json:"room_type"`
	Status    string `json:"status"`
	Version   int    `json:"version"`
}

// handleSessions returns a snapshot of the live call sessions.
func (s *Server) handleSessions(c *fiber.Ctx) error {
	views := []SessionView{}
	if s.sessions != nil {
		for _, sess := range s.sessions.Sessions() {
			views = append(views, SessionView{
				ID:           sess.ID(),
				Kind:         string(sess.Kind()),
				State:        sess.State().String(),
				AccountID:    sess.AccountID(),
				GuestName:    sess.GuestName(),
				CreatedAt:    sess.CreatedAt().UTC().Format(time.RFC3339),
				LastActivity: sess.LastActivity().UTC().Format(time.RFC3339),
			})
		}
	}
	return c.JSON(views)
}

// handleReservations returns an account's reservations.
func (s *Server) handleReservations(c *fiber.Ctx) error {
	accountID := c.Params("id")

	reservations, err := s.store.FindReservations(c.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "account not found",
			})
		}
		s.logger.Error("reservation snapshot failed", "account", accountID, "error", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "store unavailable",
		})
	}

	views := make([]ReservationView, 0, len(reservations))
	for _, r := range reservations {
		views = append(views, ReservationView{
			ID:        r.ID,
			AccountID: r.AccountID,
			GuestName: r.GuestName,
			CheckIn:   r.CheckIn,
			RoomType:  r.RoomType,
			Status:    string(r.Status),
			Version:   r.Version,
		})
	}
	return c.JSON(views)
}

// handleRecentEvents returns the buffered change events, oldest first.
func (s *Server) handleRecentEvents(c *fiber.Ctx) error {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()
	out := make([]ChangeView, len(s.recent))
	copy(out, s.recent)
	return c.JSON(out)
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleEventsWS streams change events to a dashboard client.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.eventsHub, c)
	client.Run()
}
