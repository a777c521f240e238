package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientChat(t *testing.T) {
	t.Run("text response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header: %q", got)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"model": "gpt-4o",
				"choices": []map[string]interface{}{
					{
						"message":       map[string]interface{}{"content": "Hello there"},
						"finish_reason": "stop",
					},
				},
				"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13},
			})
		}))
		defer srv.Close()

		client, err := NewClient(WithBaseURL(srv.URL), WithAPIKey("test-key"))
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		defer client.Close()

		resp, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Message.Content != "Hello there" {
			t.Errorf("content = %q, want %q", resp.Message.Content, "Hello there")
		}
		if resp.HasToolCalls() {
			t.Error("expected no tool calls")
		}
		if resp.Usage.TotalTokens != 13 {
			t.Errorf("total tokens = %d, want 13", resp.Usage.TotalTokens)
		}
	})

	t.Run("tool call response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"model": "gpt-4o",
				"choices": []map[string]interface{}{
					{
						"message": map[string]interface{}{
							"content": "",
							"tool_calls": []map[string]interface{}{
								{
									"id": "call_abc123",
									"function": map[string]string{
										"name":      "get_guest_reservation",
										"arguments": `{"account_number":"10001"}`,
									},
								},
							},
						},
						"finish_reason": "tool_calls",
					},
				},
			})
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		resp, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("look up my reservation")},
		})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if !resp.HasToolCalls() {
			t.Fatal("expected tool calls")
		}
		tc := resp.Message.ToolCalls[0]
		if tc.ID != "call_abc123" {
			t.Errorf("tool call ID = %q", tc.ID)
		}
		if tc.Name != "get_guest_reservation" {
			t.Errorf("tool name = %q", tc.Name)
		}
		if resp.FinishReason != "tool_calls" {
			t.Errorf("finish reason = %q", resp.FinishReason)
		}
	})

	t.Run("API error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"message": "rate limited", "code": "rate_limit_exceeded"},
			})
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsRateLimited() {
			t.Error("expected rate limited")
		}
		if !apiErr.IsRetryable() {
			t.Error("expected retryable")
		}
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		_, err := client.Chat(context.Background(), &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		})
		if err == nil {
			t.Fatal("expected error for empty choices")
		}
	})
}

func TestBuildChatPayload(t *testing.T) {
	client, _ := NewClient(WithModel("test-model"), WithMaxTokens(256))

	t.Run("includes tools", func(t *testing.T) {
		req := &ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
			Tools: []Tool{
				NewTool("check_account_status", "Check status", map[string]interface{}{
					"type": "object",
				}),
			},
			ToolChoice: "auto",
		}
		payload := client.buildChatPayload(req, "test-model")

		tools, ok := payload["tools"].([]map[string]interface{})
		if !ok || len(tools) != 1 {
			t.Fatalf("tools not in payload: %v", payload["tools"])
		}
		if payload["tool_choice"] != "auto" {
			t.Errorf("tool_choice = %v", payload["tool_choice"])
		}
	})

	t.Run("tool result round trip", func(t *testing.T) {
		req := &ChatRequest{
			Messages: []Message{
				{
					Role: RoleAssistant,
					ToolCalls: []ToolCall{
						{ID: "call_1", Name: "check_account_status", Arguments: `{"account_number":"10001"}`},
					},
				},
				NewToolMessage("call_1", `{"status":"Active"}`),
			},
		}
		payload := client.buildChatPayload(req, "test-model")

		messages := payload["messages"].([]map[string]interface{})
		if len(messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(messages))
		}
		if _, ok := messages[0]["tool_calls"]; !ok {
			t.Error("assistant message missing tool_calls")
		}
		if messages[1]["tool_call_id"] != "call_1" {
			t.Errorf("tool_call_id = %v", messages[1]["tool_call_id"])
		}
	})

	t.Run("falls back to config defaults", func(t *testing.T) {
		payload := client.buildChatPayload(&ChatRequest{
			Messages: []Message{NewUserMessage("hi")},
		}, "test-model")

		if payload["model"] != "test-model" {
			t.Errorf("model = %v", payload["model"])
		}
		if payload["max_tokens"] != 256 {
			t.Errorf("max_tokens = %v", payload["max_tokens"])
		}
	})
}

func TestClientHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/models" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		if err := client.Health(context.Background()); err != nil {
			t.Errorf("Health: %v", err)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		client, _ := NewClient(WithBaseURL(srv.URL))
		defer client.Close()

		if err := client.Health(context.Background()); err == nil {
			t.Error("expected health check failure")
		}
	})
}

func TestMock(t *testing.T) {
	t.Run("default response", func(t *testing.T) {
		m := NewMock()
		resp, err := m.Chat(context.Background(), &ChatRequest{})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if resp.Message.Content != "Mock response" {
			t.Errorf("content = %q", resp.Message.Content)
		}
	})

	t.Run("custom func and call tracking", func(t *testing.T) {
		m := NewMock()
		m.ChatFunc = func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			return nil, ErrProviderUnavailable
		}
		_, err := m.Chat(context.Background(), &ChatRequest{})
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("err = %v", err)
		}
		if m.CallCount("Chat") != 1 {
			t.Errorf("CallCount(Chat) = %d", m.CallCount("Chat"))
		}
	})
}
