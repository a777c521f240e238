package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/harborview/voicedesk/pkg/notify"
	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/store"
)

func newTestGateway(t *testing.T) (*Gateway, *store.Memory, <-chan notify.Event) {
	t.Helper()
	mem := store.NewSeededMemory()
	notifier := notify.New()
	events, cancel := notifier.Subscribe()
	t.Cleanup(cancel)
	return NewGateway(mem, notifier), mem, events
}

func verifiedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(session.KindWebRTC)
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := sess.BeginVerification(); err != nil {
		t.Fatalf("BeginVerification: %v", err)
	}
	if err := sess.CompleteVerification(true, "10001", "John Smith"); err != nil {
		t.Fatalf("CompleteVerification: %v", err)
	}
	return sess
}

func unverifiedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(session.KindWebRTC)
	if err := sess.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return sess
}

func call(id, name, args string) reasoning.ToolCall {
	return reasoning.ToolCall{ID: id, Name: name, Arguments: args}
}

func TestVerificationGate(t *testing.T) {
	ctx := context.Background()

	t.Run("account check allowed before verification", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := unverifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolCheckAccountStatus, `{"account_id":"10001"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s, want ok", res.Kind)
		}
		if res.Payload["active"] != true {
			t.Errorf("active = %v, want true", res.Payload["active"])
		}
	})

	t.Run("unknown account reports inactive", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := unverifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolCheckAccountStatus, `{"account_id":"99999"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s, want ok", res.Kind)
		}
		if res.Payload["active"] != false {
			t.Errorf("active = %v, want false", res.Payload["active"])
		}
	})

	t.Run("every restricted tool blocked before verification", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := unverifiedSession(t)

		restricted := []struct {
			name string
			args string
		}{
			{ToolGetGuestReservation, `{"account_id":"10001","search_name":"John Smith"}`},
			{ToolMakeNewReservation, `{"account_id":"10001","guest_name":"John Smith","check_in_date":"2026-01-01","room_type":"King"}`},
			{ToolCancelGuestReservation, `{"account_id":"10001","reservation_id":555}`},
			{ToolEditGuestReservation, `{"account_id":"10001","reservation_id":555,"new_room_type":"Suite"}`},
		}
		for i, tc := range restricted {
			res := g.Dispatch(ctx, sess, call(fmt.Sprintf("c%d", i), tc.name, tc.args))
			if res.Kind != KindNotVerified {
				t.Errorf("%s: kind = %s, want not_verified", tc.name, res.Kind)
			}
		}
	})

	t.Run("unknown tool rejected", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", "drop_tables", `{}`))
		if res.Kind != KindInvalidArguments {
			t.Errorf("kind = %s, want invalid_arguments", res.Kind)
		}
	})
}

func TestGetGuestReservation(t *testing.T) {
	ctx := context.Background()

	t.Run("returns reservations", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolGetGuestReservation,
			`{"account_id":"10001","search_name":"John Smith"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s: %s", res.Kind, res.Content())
		}
		if !strings.Contains(res.Content(), "555") {
			t.Errorf("content missing reservation 555: %s", res.Content())
		}
	})

	t.Run("no reservations is a speakable result", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := session.New(session.KindWebRTC)
		sess.Connect()
		sess.BeginVerification()
		sess.CompleteVerification(true, "10003", "Test User")

		res := g.Dispatch(ctx, sess, call("c1", ToolGetGuestReservation,
			`{"account_id":"10003","search_name":"Test User"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s", res.Kind)
		}
		if !strings.Contains(res.Content(), "No reservations found for Test User") {
			t.Errorf("content = %s", res.Content())
		}
	})
}

func TestMutationsPublishBeforeReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("make publishes confirmed", func(t *testing.T) {
		g, _, events := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolMakeNewReservation,
			`{"account_id":"10001","guest_name":"John Smith","check_in_date":"2026-02-01","room_type":"Suite"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s: %s", res.Kind, res.Content())
		}

		// Publish happens before Dispatch returns, so the event is
		// already buffered.
		select {
		case e := <-events:
			if e.NewStatus != string(store.StatusConfirmed) {
				t.Errorf("status = %s", e.NewStatus)
			}
		default:
			t.Fatal("no change event published before result returned")
		}
	})

	t.Run("cancel publishes cancelled", func(t *testing.T) {
		g, _, events := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolCancelGuestReservation,
			`{"account_id":"10001","reservation_id":555}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s: %s", res.Kind, res.Content())
		}

		select {
		case e := <-events:
			if e.ReservationID != 555 || e.NewStatus != string(store.StatusCancelled) {
				t.Errorf("event = %+v", e)
			}
		default:
			t.Fatal("no change event published before result returned")
		}
	})

	t.Run("edit publishes modified", func(t *testing.T) {
		g, _, events := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolEditGuestReservation,
			`{"account_id":"10001","reservation_id":555,"new_room_type":"Suite"}`))
		if !res.Kind.OK() {
			t.Fatalf("kind = %s: %s", res.Kind, res.Content())
		}
		if !strings.Contains(res.Content(), "room type to Suite") {
			t.Errorf("content = %s", res.Content())
		}

		select {
		case e := <-events:
			if e.NewStatus != string(store.StatusModified) {
				t.Errorf("status = %s", e.NewStatus)
			}
		default:
			t.Fatal("no change event published before result returned")
		}
	})

	t.Run("edit without changes rejected", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolEditGuestReservation,
			`{"account_id":"10001","reservation_id":555}`))
		if res.Kind != KindInvalidArguments {
			t.Errorf("kind = %s, want invalid_arguments", res.Kind)
		}
	})

	t.Run("cancel missing reservation", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		res := g.Dispatch(ctx, sess, call("c1", ToolCancelGuestReservation,
			`{"account_id":"10001","reservation_id":9999}`))
		if res.Kind != KindReservationNotFound {
			t.Errorf("kind = %s, want reservation_not_found", res.Kind)
		}
	})
}

func TestIdempotencyCache(t *testing.T) {
	ctx := context.Background()

	t.Run("replay returns cached result without re-execute", func(t *testing.T) {
		g, mem, events := newTestGateway(t)
		sess := verifiedSession(t)

		args := `{"account_id":"10001","guest_name":"John Smith","check_in_date":"2026-03-01","room_type":"Queen"}`
		first := g.Dispatch(ctx, sess, call("c1", ToolMakeNewReservation, args))
		if !first.Kind.OK() {
			t.Fatalf("first dispatch: %s", first.Content())
		}
		<-events

		replay := g.Dispatch(ctx, sess, call("c1", ToolMakeNewReservation, args))
		if !replay.Cached {
			t.Error("replay not served from cache")
		}
		if replay.Content() != first.Content() {
			t.Errorf("replay content differs: %s vs %s", replay.Content(), first.Content())
		}

		// No second reservation and no second event.
		reservations, _ := mem.FindReservations(ctx, "10001")
		if len(reservations) != 2 { // seeded 555 + the one created
			t.Errorf("reservations = %d, want 2", len(reservations))
		}
		select {
		case e := <-events:
			t.Errorf("unexpected second event: %+v", e)
		default:
		}
	})

	t.Run("forget drops the session cache", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		g.Dispatch(ctx, sess, call("c1", ToolCheckAccountStatus, `{"account_id":"10001"}`))
		g.Forget(sess.ID())

		res := g.Dispatch(ctx, sess, call("c1", ToolCheckAccountStatus, `{"account_id":"10001"}`))
		if res.Cached {
			t.Error("result served from cache after Forget")
		}
	})

	t.Run("cancelled record blocks late replay", func(t *testing.T) {
		g, mem, _ := newTestGateway(t)
		sess := verifiedSession(t)

		g.RecordCancelled(sess.ID(), "c9")

		res := g.Dispatch(ctx, sess, call("c9", ToolCancelGuestReservation,
			`{"account_id":"10001","reservation_id":555}`))
		if res.Kind != KindCancelled || !res.Cached {
			t.Errorf("kind = %s cached = %v, want cancelled from cache", res.Kind, res.Cached)
		}

		reservations, _ := mem.FindReservations(ctx, "10001")
		if reservations[0].Status == store.StatusCancelled {
			t.Error("cancelled replay still executed against the store")
		}
	})
}

func TestToolBusy(t *testing.T) {
	ctx := context.Background()

	g, _, _ := newTestGateway(t)
	sess := verifiedSession(t)

	if err := sess.BeginTool("other"); err != nil {
		t.Fatalf("BeginTool: %v", err)
	}

	res := g.Dispatch(ctx, sess, call("c1", ToolCheckAccountStatus, `{"account_id":"10001"}`))
	if res.Kind != KindToolBusy {
		t.Errorf("kind = %s, want tool_busy", res.Kind)
	}
}

func TestVersionConflict(t *testing.T) {
	ctx := context.Background()

	g, mem, _ := newTestGateway(t)
	sess := verifiedSession(t)

	// Bump the version behind the gateway's back to simulate a
	// concurrent editor winning between read and write.
	st := &racingStore{Memory: mem}
	g.store = st

	res := g.Dispatch(ctx, sess, call("c1", ToolEditGuestReservation,
		`{"account_id":"10001","reservation_id":555,"new_room_type":"Suite"}`))
	if res.Kind != KindVersionConflict {
		t.Errorf("kind = %s, want version_conflict", res.Kind)
	}
}

// racingStore edits the reservation after every read so the gateway's
// expected version is always stale.
type racingStore struct {
	*store.Memory
}

func (r *racingStore) FindReservations(ctx context.Context, accountID string) ([]store.Reservation, error) {
	out, err := r.Memory.FindReservations(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for _, res := range out {
		_, _ = r.Memory.EditReservation(ctx, res.ID, store.Changes{RoomType: res.RoomType}, res.Version)
	}
	return out, nil
}

func TestVerifyCaller(t *testing.T) {
	ctx := context.Background()

	t.Run("substring match verifies", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := unverifiedSession(t)

		ok, err := g.VerifyCaller(ctx, sess, "10001", "john")
		if err != nil {
			t.Fatalf("VerifyCaller: %v", err)
		}
		if !ok || !sess.Verified() {
			t.Error("expected verified session")
		}
		if sess.AccountID() != "10001" || sess.GuestName() != "John Smith" {
			t.Errorf("account = %s guest = %s", sess.AccountID(), sess.GuestName())
		}
	})

	t.Run("wrong name spends budget then closes", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := unverifiedSession(t)

		for i := 0; i < session.MaxVerifyAttempts-1; i++ {
			ok, err := g.VerifyCaller(ctx, sess, "10001", "Alice")
			if err != nil || ok {
				t.Fatalf("attempt %d: ok=%v err=%v", i, ok, err)
			}
		}
		ok, err := g.VerifyCaller(ctx, sess, "10001", "Alice")
		if ok {
			t.Error("expected final attempt to fail")
		}
		if !errors.Is(err, session.ErrVerifyExhausted) {
			t.Errorf("err = %v, want ErrVerifyExhausted", err)
		}
		if sess.State() != session.StateClosing {
			t.Errorf("state = %s, want closing", sess.State())
		}
	})

	t.Run("inactive account never verifies", func(t *testing.T) {
		g, mem, _ := newTestGateway(t)
		mem.AddAccount(store.Account{ID: "20000", GuestName: "Old Guest", Status: store.AccountInactive})
		sess := unverifiedSession(t)

		ok, err := g.VerifyCaller(ctx, sess, "20000", "Old Guest")
		if err != nil {
			t.Fatalf("VerifyCaller: %v", err)
		}
		if ok {
			t.Error("inactive account verified")
		}
	})

	t.Run("verified session cannot re-verify", func(t *testing.T) {
		g, _, _ := newTestGateway(t)
		sess := verifiedSession(t)

		_, err := g.VerifyCaller(ctx, sess, "10002", "Jane Doe")
		if !errors.Is(err, session.ErrAlreadyVerified) {
			t.Errorf("err = %v, want ErrAlreadyVerified", err)
		}
	})
}

func TestNameMatches(t *testing.T) {
	cases := []struct {
		onFile, stated string
		want           bool
	}{
		{"John Smith", "john smith", true},
		{"John Smith", "JOHN", true},
		{"John Smith", "smith", true},
		{"John Smith", "Johnathan Smithers", false},
		{"John Smith", "", false},
		{"", "john", false},
		{"Jane Doe", "jane doe jr", true}, // stated contains on-file
	}
	for _, c := range cases {
		if got := nameMatches(c.onFile, c.stated); got != c.want {
			t.Errorf("nameMatches(%q, %q) = %v, want %v", c.onFile, c.stated, got, c.want)
		}
	}
}

func TestSchema(t *testing.T) {
	schema := Schema()
	if len(schema) != 5 {
		t.Fatalf("schema has %d tools, want 5", len(schema))
	}
	for _, tool := range schema {
		if !Known(tool.Function.Name) {
			t.Errorf("schema tool %q not in Known set", tool.Function.Name)
		}
		if tool.Function.Parameters["type"] != "object" {
			t.Errorf("tool %q parameters not an object schema", tool.Function.Name)
		}
	}
	if Restricted(ToolCheckAccountStatus) {
		t.Error("account status check should not be restricted")
	}
	for _, name := range []string{ToolGetGuestReservation, ToolMakeNewReservation,
		ToolCancelGuestReservation, ToolEditGuestReservation} {
		if !Restricted(name) {
			t.Errorf("%s should be restricted", name)
		}
	}
}
