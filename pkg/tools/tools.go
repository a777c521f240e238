// Package tools is the gateway between the reasoning engine and the
// reservation store. Every tool call the model emits passes through
// Dispatch, which validates arguments, enforces the verification gate
// and the single-in-flight rule, deduplicates retries by correlation
// ID, executes against the store, and publishes change events for
// mutations. The model never touches the store directly.
//
// Results are always speakable: failures come back as structured
// payloads the model can explain to the caller, never as raw errors.
package tools

import "encoding/json"

// Tool names. The set is closed; anything else is rejected.
const (
	ToolCheckAccountStatus     = "check_account_status"
	ToolGetGuestReservation    = "get_guest_reservation"
	ToolMakeNewReservation     = "make_new_reservation"
	ToolCancelGuestReservation = "cancel_guest_reservation"
	ToolEditGuestReservation   = "edit_guest_reservation"
)

// Kind classifies a tool result.
type Kind string

const (
	// KindOK is a successful execution.
	KindOK Kind = "ok"

	// KindAccountNotFound means no account matched the given ID.
	KindAccountNotFound Kind = "account_not_found"

	// KindReservationNotFound means no reservation matched the given ID.
	KindReservationNotFound Kind = "reservation_not_found"

	// KindNotVerified means a restricted tool was called before the
	// caller proved account ownership.
	KindNotVerified Kind = "not_verified"

	// KindToolBusy means another tool call was already in flight.
	KindToolBusy Kind = "tool_busy"

	// KindVersionConflict means a concurrent edit won the race.
	KindVersionConflict Kind = "version_conflict"

	// KindStoreUnavailable means the store could not be reached in time.
	KindStoreUnavailable Kind = "store_unavailable"

	// KindInvalidArguments means the call failed validation.
	KindInvalidArguments Kind = "invalid_arguments"

	// KindCancelled means the session ended while the call was pending.
	KindCancelled Kind = "cancelled"
)

// OK reports whether the kind is a success.
func (k Kind) OK() bool { return k == KindOK }

// Result is the outcome of one tool dispatch.
type Result struct {
	// CorrelationID is the tool call ID this result answers.
	CorrelationID string

	// Tool is the tool name.
	Tool string

	// Kind classifies the outcome.
	Kind Kind

	// Payload is the speakable content handed back to the model.
	Payload map[string]interface{}

	// Cached is true when this result was served from the idempotency
	// cache instead of re-executing.
	Cached bool
}

// Content renders the payload as the tool message body for the model.
func (r Result) Content() string {
	if r.Payload == nil {
		return "{}"
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return `{"error": "internal result encoding failure"}`
	}
	return string(b)
}

// errResult builds a failure result with a speakable explanation.
func errResult(corrID, tool string, kind Kind, spoken string) Result {
	return Result{
		CorrelationID: corrID,
		Tool:          tool,
		Kind:          kind,
		Payload: map[string]interface{}{
			"error": spoken,
		},
	}
}
