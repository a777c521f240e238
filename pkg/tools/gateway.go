package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/harborview/voicedesk/pkg/notify"
	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/store"
)

// Gateway dispatches model tool calls against the reservation store.
// One gateway serves all sessions; per-session state (the idempotency
// cache and the in-flight slot) is keyed by session ID.
type Gateway struct {
	store    store.Store
	notifier *notify.Notifier
	logger   *slog.Logger

	mu    sync.Mutex
	cache map[string]map[string]Result // session ID → correlation ID → first result
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l.With("component", "tools.gateway") }
}

// NewGateway creates a tool gateway over the given store and notifier.
func NewGateway(st store.Store, n *notify.Notifier, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store:    st,
		notifier: n,
		logger:   slog.Default().With("component", "tools.gateway"),
		cache:    make(map[string]map[string]Result),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Dispatch runs one tool call for a session and returns its speakable
// result. A replayed correlation ID returns the cached first result
// without touching the store; mutations publish their change event
// before the result is returned.
func (g *Gateway) Dispatch(ctx context.Context, sess *session.Session, call reasoning.ToolCall) Result {
	if !Known(call.Name) {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			fmt.Sprintf("Unknown tool %q.", call.Name))
	}

	if cached, ok := g.lookup(sess.ID(), call.ID); ok {
		g.logger.Info("tool replay served from cache",
			"session", sess.ID(), "tool", call.Name, "correlation_id", call.ID)
		cached.Cached = true
		return cached
	}

	if Restricted(call.Name) && !sess.Verified() {
		g.logger.Warn("restricted tool blocked before verification",
			"session", sess.ID(), "tool", call.Name)
		return errResult(call.ID, call.Name, KindNotVerified,
			"The caller's account has not been verified yet. Verify the account number first.")
	}

	if err := sess.BeginTool(call.ID); err != nil {
		switch {
		case errors.Is(err, session.ErrToolBusy):
			return errResult(call.ID, call.Name, KindToolBusy,
				"Another request is still being processed. Ask the caller to wait a moment.")
		default:
			return errResult(call.ID, call.Name, KindCancelled,
				"The call has ended; this request was not processed.")
		}
	}
	defer sess.EndTool(call.ID)

	res := g.execute(ctx, sess, call)
	g.remember(sess.ID(), call.ID, res)
	return res
}

// RecordCancelled marks a pending tool call as cancelled in the cache
// so a late replay does not re-execute after disconnect.
func (g *Gateway) RecordCancelled(sessionID, correlationID string) {
	if correlationID == "" {
		return
	}
	g.remember(sessionID, correlationID, Result{
		CorrelationID: correlationID,
		Kind:          KindCancelled,
		Payload: map[string]interface{}{
			"error": "The request was cancelled because the call ended.",
		},
	})
	g.logger.Info("pending tool call recorded cancelled",
		"session", sessionID, "correlation_id", correlationID)
}

// Forget drops a session's idempotency cache after teardown.
func (g *Gateway) Forget(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.cache, sessionID)
}

// execute validates arguments and runs the store operation.
func (g *Gateway) execute(ctx context.Context, sess *session.Session, call reasoning.ToolCall) Result {
	switch call.Name {
	case ToolCheckAccountStatus:
		return g.checkAccountStatus(ctx, call)
	case ToolGetGuestReservation:
		return g.getGuestReservation(ctx, call)
	case ToolMakeNewReservation:
		return g.makeNewReservation(ctx, call)
	case ToolCancelGuestReservation:
		return g.cancelGuestReservation(ctx, call)
	case ToolEditGuestReservation:
		return g.editGuestReservation(ctx, call)
	}
	return errResult(call.ID, call.Name, KindInvalidArguments, "Unknown tool.")
}

type checkAccountArgs struct {
	AccountID string `json:"account_id"`
}

func (g *Gateway) checkAccountStatus(ctx context.Context, call reasoning.ToolCall) Result {
	var args checkAccountArgs
	if err := decodeArgs(call.Arguments, &args); err != nil || args.AccountID == "" {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"An account_id is required.")
	}

	acct, err := g.store.GetAccount(ctx, args.AccountID)
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return Result{
			CorrelationID: call.ID,
			Tool:          call.Name,
			Kind:          KindOK,
			Payload:       map[string]interface{}{"active": false},
		}
	case err != nil:
		return g.storeFailure(call, err)
	}

	return Result{
		CorrelationID: call.ID,
		Tool:          call.Name,
		Kind:          KindOK,
		Payload:       map[string]interface{}{"active": acct.Active()},
	}
}

type getReservationArgs struct {
	AccountID  string `json:"account_id"`
	SearchName string `json:"search_name"`
}

func (g *Gateway) getGuestReservation(ctx context.Context, call reasoning.ToolCall) Result {
	var args getReservationArgs
	if err := decodeArgs(call.Arguments, &args); err != nil || args.AccountID == "" || args.SearchName == "" {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"Both account_id and search_name are required.")
	}

	if _, err := g.store.GetAccount(ctx, args.AccountID); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return errResult(call.ID, call.Name, KindAccountNotFound, "Account not found.")
		}
		return g.storeFailure(call, err)
	}

	reservations, err := g.store.FindReservations(ctx, args.AccountID)
	if err != nil {
		return g.storeFailure(call, err)
	}

	if len(reservations) == 0 {
		return Result{
			CorrelationID: call.ID,
			Tool:          call.Name,
			Kind:          KindOK,
			Payload: map[string]interface{}{
				"result": fmt.Sprintf("No reservations found for %s.", args.SearchName),
			},
		}
	}

	return Result{
		CorrelationID: call.ID,
		Tool:          call.Name,
		Kind:          KindOK,
		Payload:       map[string]interface{}{"reservations": reservations},
	}
}

type makeReservationArgs struct {
	AccountID   string `json:"account_id"`
	GuestName   string `json:"guest_name"`
	CheckInDate string `json:"check_in_date"`
	RoomType    string `json:"room_type"`
}

func (g *Gateway) makeNewReservation(ctx context.Context, call reasoning.ToolCall) Result {
	var args makeReservationArgs
	if err := decodeArgs(call.Arguments, &args); err != nil ||
		args.AccountID == "" || args.GuestName == "" || args.CheckInDate == "" || args.RoomType == "" {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"account_id, guest_name, check_in_date and room_type are all required.")
	}

	res, err := g.store.CreateReservation(ctx, args.AccountID, store.Details{
		GuestName: args.GuestName,
		CheckIn:   args.CheckInDate,
		RoomType:  args.RoomType,
	})
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		return errResult(call.ID, call.Name, KindAccountNotFound, "Account not found.")
	case err != nil:
		return g.storeFailure(call, err)
	}

	g.publish(ctx, res)

	return Result{
		CorrelationID: call.ID,
		Tool:          call.Name,
		Kind:          KindOK,
		Payload: map[string]interface{}{
			"result": fmt.Sprintf("New reservation confirmed for %s on %s. Reservation ID: %d",
				args.GuestName, args.CheckInDate, res.ID),
			"reservation_id": res.ID,
		},
	}
}

type cancelReservationArgs struct {
	AccountID     string `json:"account_id"`
	ReservationID int    `json:"reservation_id"`
}

func (g *Gateway) cancelGuestReservation(ctx context.Context, call reasoning.ToolCall) Result {
	var args cancelReservationArgs
	if err := decodeArgs(call.Arguments, &args); err != nil || args.AccountID == "" || args.ReservationID == 0 {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"Both account_id and reservation_id are required.")
	}

	res, err := g.store.CancelReservation(ctx, args.ReservationID)
	switch {
	case errors.Is(err, store.ErrReservationNotFound):
		return errResult(call.ID, call.Name, KindReservationNotFound,
			fmt.Sprintf("Reservation %d not found.", args.ReservationID))
	case err != nil:
		return g.storeFailure(call, err)
	}

	g.publish(ctx, res)

	return Result{
		CorrelationID: call.ID,
		Tool:          call.Name,
		Kind:          KindOK,
		Payload: map[string]interface{}{
			"result": fmt.Sprintf("Reservation %d has been cancelled.", args.ReservationID),
		},
	}
}

type editReservationArgs struct {
	AccountID      string `json:"account_id"`
	ReservationID  int    `json:"reservation_id"`
	NewCheckInDate string `json:"new_check_in_date"`
	NewRoomType    string `json:"new_room_type"`
}

func (g *Gateway) editGuestReservation(ctx context.Context, call reasoning.ToolCall) Result {
	var args editReservationArgs
	if err := decodeArgs(call.Arguments, &args); err != nil || args.AccountID == "" || args.ReservationID == 0 {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"Both account_id and reservation_id are required.")
	}

	changes := store.Changes{CheckIn: args.NewCheckInDate, RoomType: args.NewRoomType}
	if changes.Empty() {
		return errResult(call.ID, call.Name, KindInvalidArguments,
			"No changes provided. Specify new_check_in_date and/or new_room_type.")
	}

	// Read the current version for the optimistic check. A concurrent
	// editor landing between this read and the write loses the race and
	// gets a version conflict.
	current, err := g.findReservation(ctx, args.AccountID, args.ReservationID)
	switch {
	case errors.Is(err, store.ErrReservationNotFound):
		return errResult(call.ID, call.Name, KindReservationNotFound,
			fmt.Sprintf("Reservation %d not found.", args.ReservationID))
	case err != nil:
		return g.storeFailure(call, err)
	}

	res, err := g.store.EditReservation(ctx, args.ReservationID, changes, current.Version)
	switch {
	case errors.Is(err, store.ErrVersionConflict):
		return errResult(call.ID, call.Name, KindVersionConflict,
			"The reservation was changed by another request just now. Re-check the details and try again.")
	case errors.Is(err, store.ErrReservationNotFound):
		return errResult(call.ID, call.Name, KindReservationNotFound,
			fmt.Sprintf("Reservation %d not found.", args.ReservationID))
	case err != nil:
		return g.storeFailure(call, err)
	}

	g.publish(ctx, res)

	var parts []string
	if args.NewCheckInDate != "" {
		parts = append(parts, fmt.Sprintf("date to %s", args.NewCheckInDate))
	}
	if args.NewRoomType != "" {
		parts = append(parts, fmt.Sprintf("room type to %s", args.NewRoomType))
	}

	return Result{
		CorrelationID: call.ID,
		Tool:          call.Name,
		Kind:          KindOK,
		Payload: map[string]interface{}{
			"result": fmt.Sprintf("Reservation %d updated: %s.", args.ReservationID, strings.Join(parts, ", ")),
		},
	}
}

// findReservation locates one reservation within an account.
func (g *Gateway) findReservation(ctx context.Context, accountID string, id int) (*store.Reservation, error) {
	reservations, err := g.store.FindReservations(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range reservations {
		if reservations[i].ID == id {
			return &reservations[i], nil
		}
	}
	return nil, store.ErrReservationNotFound
}

// publish emits the change event. This happens before the result is
// returned to the reasoning engine, so the dashboard never lags behind
// what the caller has been told.
func (g *Gateway) publish(ctx context.Context, res *store.Reservation) {
	if g.notifier == nil {
		return
	}
	g.notifier.Publish(ctx, notify.Event{
		ReservationID: res.ID,
		NewStatus:     string(res.Status),
	})
}

// storeFailure maps backend failures to the speakable unavailable kind.
func (g *Gateway) storeFailure(call reasoning.ToolCall, err error) Result {
	g.logger.Error("store operation failed",
		"tool", call.Name, "correlation_id", call.ID, "error", err)
	return errResult(call.ID, call.Name, KindStoreUnavailable,
		"The reservation system is temporarily unavailable. Apologize and offer to try again shortly.")
}

func (g *Gateway) lookup(sessionID, correlationID string) (Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if m, ok := g.cache[sessionID]; ok {
		if r, ok := m[correlationID]; ok {
			return r, true
		}
	}
	return Result{}, false
}

func (g *Gateway) remember(sessionID, correlationID string, r Result) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.cache[sessionID]
	if !ok {
		m = make(map[string]Result)
		g.cache[sessionID] = m
	}
	// First write wins; a cached entry is never overwritten.
	if _, exists := m[correlationID]; !exists {
		m[correlationID] = r
	}
}

func decodeArgs(raw string, v interface{}) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("empty arguments")
	}
	return json.Unmarshal([]byte(raw), v)
}
