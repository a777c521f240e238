// Package session tracks per-call state: verification, the single
// in-flight tool call, and lifecycle. The session is the authority for
// what the agent is allowed to do next; the tool gateway consults it
// before touching the reservation store.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State int

const (
	// StateConnecting means the transport is still being established.
	StateConnecting State = iota

	// StateUnverified means the caller has not proven account ownership.
	StateUnverified

	// StateVerifying means an account check is in progress.
	StateVerifying

	// StateVerified means the caller proved account ownership.
	StateVerified

	// StateToolInFlight means a tool call is being dispatched.
	StateToolInFlight

	// StateClosing means the session is being torn down.
	StateClosing

	// StateClosed is terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateUnverified:
		return "unverified"
	case StateVerifying:
		return "verifying"
	case StateVerified:
		return "verified"
	case StateToolInFlight:
		return "tool_in_flight"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Kind identifies the transport a session arrived over.
type Kind string

const (
	KindWebRTC    Kind = "webrtc"
	KindTelephony Kind = "telephony"
)

// MaxVerifyAttempts is the verification budget per session.
// After this many mismatches the session is forced toward Closing.
const MaxVerifyAttempts = 3

// Errors returned by session operations.
var (
	// ErrClosed guards against late operations on a torn-down session.
	ErrClosed = errors.New("session: closed")

	// ErrToolBusy is returned when a second tool call arrives while one
	// is in flight. Callers reject, never queue.
	ErrToolBusy = errors.New("session: tool call already in flight")

	// ErrNotVerified is returned when a restricted operation is
	// attempted before verification.
	ErrNotVerified = errors.New("session: caller not verified")

	// ErrAlreadyVerified is returned when verification is attempted
	// twice; re-verification requires a new session.
	ErrAlreadyVerified = errors.New("session: already verified")

	// ErrVerifyExhausted is returned when the attempt budget is spent.
	ErrVerifyExhausted = errors.New("session: verification attempts exhausted")
)

// Session is one live call. Owned by the turn orchestrator for its
// lifetime; destroyed on transport disconnect or explicit hangup.
type Session struct {
	id   string
	kind Kind

	mu             sync.Mutex
	state          State
	accountID      string
	guestName      string
	verifyAttempts int
	pendingTool    string // correlation ID of the in-flight tool call
	createdAt      time.Time
	lastActivity   time.Time
	closeReason    string
}

// New creates a session in the Connecting state.
func New(kind Kind) *Session {
	now := time.Now()
	return &Session{
		id:           uuid.NewString(),
		kind:         kind,
		state:        StateConnecting,
		createdAt:    now,
		lastActivity: now,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Kind returns the transport kind.
func (s *Session) Kind() Kind { return s.kind }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AccountID returns the verified account, or "" before verification.
func (s *Session) AccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID
}

// GuestName returns the verified guest name, or "" before verification.
func (s *Session) GuestName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guestName
}

// Verified reports whether the caller has proven account ownership.
func (s *Session) Verified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accountID != ""
}

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastActivity returns the time of the most recent Touch.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Touch records caller or agent activity.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Connect transitions Connecting → Unverified once the transport is up.
func (s *Session) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked() {
		return ErrClosed
	}
	if s.state == StateConnecting {
		s.state = StateUnverified
	}
	return nil
}

// BeginVerification marks the account check as in progress.
// A verified session cannot re-verify; a new session is required.
func (s *Session) BeginVerification() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked() {
		return ErrClosed
	}
	if s.accountID != "" {
		return ErrAlreadyVerified
	}
	if s.verifyAttempts >= MaxVerifyAttempts {
		return ErrVerifyExhausted
	}
	s.state = StateVerifying
	return nil
}

// CompleteVerification records the account check outcome. On a match the
// session becomes Verified; on a mismatch it returns to Unverified, and
// once the attempt budget is spent it moves to Closing and reports
// ErrVerifyExhausted so the caller can speak an explanation and hang up.
func (s *Session) CompleteVerification(ok bool, accountID, guestName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked() {
		return ErrClosed
	}
	if ok {
		s.state = StateVerified
		s.accountID = accountID
		s.guestName = guestName
		return nil
	}
	s.verifyAttempts++
	if s.verifyAttempts >= MaxVerifyAttempts {
		s.state = StateClosing
		s.closeReason = "verification attempts exhausted"
		return ErrVerifyExhausted
	}
	s.state = StateUnverified
	return nil
}

// AbortVerification returns to Unverified without spending an attempt.
// Used when the check itself failed (store outage) rather than the caller.
func (s *Session) AbortVerification() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateVerifying {
		s.state = StateUnverified
	}
}

// VerifyAttempts returns how many verification attempts failed so far.
func (s *Session) VerifyAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyAttempts
}

// BeginTool atomically claims the single tool-call slot. A second call
// while one is in flight is rejected with ErrToolBusy, never queued.
func (s *Session) BeginTool(correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalLocked() {
		return ErrClosed
	}
	if s.pendingTool != "" {
		return ErrToolBusy
	}
	s.pendingTool = correlationID
	if s.state == StateVerified {
		s.state = StateToolInFlight
	}
	return nil
}

// EndTool releases the tool-call slot once a result (success, failure,
// timeout, or cancellation) has been recorded.
func (s *Session) EndTool(correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingTool != correlationID {
		return
	}
	s.pendingTool = ""
	if s.state == StateToolInFlight {
		s.state = StateVerified
	}
}

// PendingTool returns the in-flight correlation ID, or "".
func (s *Session) PendingTool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingTool
}

// Close moves the session to Closing and returns the correlation ID of
// any tool call that was in flight so the caller can record it as
// cancelled (not committed, not retried).
func (s *Session) Close(reason string) (cancelledTool string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return ""
	}
	cancelledTool = s.pendingTool
	s.pendingTool = ""
	if s.state != StateClosing {
		s.state = StateClosing
		s.closeReason = reason
	}
	return cancelledTool
}

// MarkClosed finalizes teardown. Terminal.
func (s *Session) MarkClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// CloseReason returns why the session was closed, if it was.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeReason
}

func (s *Session) terminalLocked() bool {
	return s.state == StateClosing || s.state == StateClosed
}
