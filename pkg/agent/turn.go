package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harborview/voicedesk/pkg/reasoning"
	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/tools"
)

// recentUserTurns is how many caller turns are kept as context for
// name verification.
const recentUserTurns = 3

// runTurn processes one finalized caller turn: reasoning, tool
// dispatch, and the spoken reply. It returns true when the session
// must end (verification exhausted, reasoning down).
func (c *call) runTurn(ctx context.Context, userText string) (done bool) {
	c.agent.metrics.turn()
	c.sess.Touch()
	c.logger.Info("caller turn", "text", userText)

	c.recentUser = append(c.recentUser, userText)
	if len(c.recentUser) > recentUserTurns {
		c.recentUser = c.recentUser[len(c.recentUser)-recentUserTurns:]
	}
	c.history = append(c.history, reasoning.NewUserMessage(userText))

	for round := 0; ; round++ {
		resp, err := c.chatWithRetry(ctx)
		if err != nil {
			c.logger.Error("reasoning unavailable", "error", err)
			c.sayAndWait(ctx, phraseReasoningDown)
			c.close("reasoning unavailable")
			return true
		}

		c.history = append(c.history, resp.Message)

		if !resp.HasToolCalls() {
			if resp.Message.Content != "" {
				if err := c.say(ctx, resp.Message.Content); err != nil {
					return c.degradeSynthesis(ctx)
				}
			}
			return false
		}

		if round >= c.agent.config.MaxToolRounds {
			c.logger.Warn("tool round budget spent", "rounds", round)
			if err := c.say(ctx, "I'm sorry, I wasn't able to complete that request. Could we try again?"); err != nil {
				return c.degradeSynthesis(ctx)
			}
			return false
		}

		for _, tc := range resp.Message.ToolCalls {
			content, exhausted := c.dispatch(ctx, tc)
			c.history = append(c.history, reasoning.NewToolMessage(tc.ID, content))
			if exhausted {
				c.sayAndWait(ctx, phraseVerifyExhausted)
				c.close("verification attempts exhausted")
				return true
			}
		}
	}
}

// degradeSynthesis ends the call once synthesis has stayed down through
// its retries. A silent open line is worse than a hangup, so the goodbye
// is attempted once more and the session closes either way.
func (c *call) degradeSynthesis(ctx context.Context) bool {
	c.sayAndWait(ctx, phraseGoodbye)
	c.close("synthesis unavailable")
	return true
}

// chatWithRetry runs one chat completion with the reasoning deadline.
// On failure the caller hears a holding message and the request is
// retried once.
func (c *call) chatWithRetry(ctx context.Context) (*reasoning.ChatResponse, error) {
	resp, err := c.chatOnce(ctx)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("reasoning request failed, retrying", "error", err)
	c.say(ctx, phraseHolding)
	return c.chatOnce(ctx)
}

func (c *call) chatOnce(ctx context.Context) (*reasoning.ChatResponse, error) {
	rctx, cancel := context.WithTimeout(ctx, c.agent.config.ReasoningTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.agent.engine.Chat(rctx, &reasoning.ChatRequest{
		Messages:   c.history,
		Tools:      tools.Schema(),
		ToolChoice: "auto",
	})
	c.agent.metrics.reasoningLatency(time.Since(start).Seconds())
	return resp, err
}

// dispatch runs one tool call. The first check_account_status on an
// unverified session drives caller verification; everything else goes
// straight through the gateway, which enforces the verification gate
// and idempotency on its own.
func (c *call) dispatch(ctx context.Context, tc reasoning.ToolCall) (content string, exhausted bool) {
	sctx, cancel := context.WithTimeout(ctx, c.agent.config.StoreTimeout)
	defer cancel()

	if tc.Name == tools.ToolCheckAccountStatus && !c.sess.Verified() {
		return c.verify(sctx, tc)
	}

	res := c.agent.gateway.Dispatch(sctx, c.sess, tc)
	c.agent.metrics.toolCall(tc.Name, string(res.Kind))
	return res.Content(), false
}

// verify drives an account check through the verification flow. The
// stated name is taken from the caller's recent turns; the substring
// match accepts the on-file name spoken anywhere in them.
func (c *call) verify(ctx context.Context, tc reasoning.ToolCall) (string, bool) {
	var args struct {
		AccountID string `json:"account_id"`
	}
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || args.AccountID == "" {
		c.agent.metrics.toolCall(tc.Name, string(tools.KindInvalidArguments))
		return toolJSON(map[string]interface{}{
			"verified": false,
			"error":    "An account_id is required.",
		}), false
	}

	stated := strings.Join(c.recentUser, " ")
	ok, err := c.agent.gateway.VerifyCaller(ctx, c.sess, args.AccountID, stated)
	switch {
	case errors.Is(err, session.ErrVerifyExhausted):
		c.agent.metrics.toolCall(tc.Name, "verify_exhausted")
		return toolJSON(map[string]interface{}{
			"verified": false,
			"error":    "Verification attempts exhausted. The call is ending.",
		}), true

	case errors.Is(err, session.ErrAlreadyVerified):
		c.agent.metrics.toolCall(tc.Name, string(tools.KindOK))
		return toolJSON(map[string]interface{}{"verified": true, "active": true}), false

	case err != nil:
		c.logger.Error("verification check failed", "error", err)
		c.agent.metrics.toolCall(tc.Name, string(tools.KindStoreUnavailable))
		return toolJSON(map[string]interface{}{
			"verified": false,
			"error":    "The reservation system is temporarily unavailable. Apologize and offer to try again shortly.",
		}), false

	case !ok:
		c.agent.metrics.toolCall(tc.Name, "verify_failed")
		return toolJSON(map[string]interface{}{
			"verified":           false,
			"active":             false,
			"attempts_remaining": session.MaxVerifyAttempts - c.sess.VerifyAttempts(),
		}), false
	}

	c.agent.metrics.toolCall(tc.Name, string(tools.KindOK))
	return toolJSON(map[string]interface{}{
		"verified":   true,
		"active":     true,
		"guest_name": c.sess.GuestName(),
	}), false
}

func toolJSON(payload map[string]interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}
