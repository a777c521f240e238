package hub

import (
	"testing"
	"time"
)

// fakeClient builds a registered client without a real websocket; only
// the send channel matters for hub fan-out.
func fakeClient(h *Hub) *Client {
	c := &Client{hub: h, send: make(chan Message, 4)}
	h.register <- c
	return c
}

func waitCount(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if h.ClientCount() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", h.ClientCount(), want)
}

func TestHubBroadcast(t *testing.T) {
	h := New("test", nil)
	go h.Run()
	defer h.Stop()

	c1 := fakeClient(h)
	c2 := fakeClient(h)
	waitCount(t, h, 2)

	if err := h.BroadcastJSON(map[string]int{"reservation_id": 555}); err != nil {
		t.Fatalf("BroadcastJSON: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		select {
		case msg := <-c.send:
			if string(msg.Data) != `{"reservation_id":555}` {
				t.Errorf("payload = %s", msg.Data)
			}
		case <-time.After(time.Second):
			t.Fatal("client did not receive broadcast")
		}
	}
}

func TestHubUnregister(t *testing.T) {
	h := New("test", nil)
	go h.Run()
	defer h.Stop()

	c := fakeClient(h)
	waitCount(t, h, 1)

	h.unregister <- c
	waitCount(t, h, 0)

	if _, ok := <-c.send; ok {
		t.Error("send channel not closed on unregister")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	h := New("test", nil)
	go h.Run()
	defer h.Stop()

	c := &Client{hub: h, send: make(chan Message)} // no buffer, never drained
	h.register <- c
	waitCount(t, h, 1)

	h.Broadcast(NewJSONMessage([]byte(`{}`)))
	waitCount(t, h, 0)
}

func TestHubStop(t *testing.T) {
	h := New("test", nil)
	go h.Run()

	c := fakeClient(h)
	waitCount(t, h, 1)

	h.Stop()
	deadline := time.Now().Add(time.Second)
	for h.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if h.IsRunning() {
		t.Fatal("hub still running after Stop")
	}
	if _, ok := <-c.send; ok {
		t.Error("client send channel not closed on stop")
	}
	// Stop is idempotent.
	h.Stop()
}
