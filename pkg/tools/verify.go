package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/harborview/voicedesk/pkg/session"
	"github.com/harborview/voicedesk/pkg/store"
)

// VerifyCaller checks a stated account number and guest name against
// the store and records the outcome on the session. Matching is
// case-insensitive substring in either direction, so "john" verifies
// against "John Smith". Loose (non-exact) matches are accepted but
// logged, since a short fragment can be ambiguous across guests.
//
// On the final failed attempt the session moves to Closing and
// session.ErrVerifyExhausted is returned so the caller can speak an
// explanation before hanging up.
func (g *Gateway) VerifyCaller(ctx context.Context, sess *session.Session, accountID, statedName string) (bool, error) {
	if err := sess.BeginVerification(); err != nil {
		return false, err
	}

	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil && !errors.Is(err, store.ErrAccountNotFound) {
		// Store failure is not a failed attempt; the caller did nothing
		// wrong. Roll the state back without spending budget.
		sess.AbortVerification()
		return false, err
	}

	if acct == nil || !acct.Active() || !nameMatches(acct.GuestName, statedName) {
		g.logger.Info("verification attempt failed",
			"session", sess.ID(), "account", accountID, "attempt", sess.VerifyAttempts()+1)
		if err := sess.CompleteVerification(false, "", ""); err != nil {
			return false, err
		}
		return false, nil
	}

	if !strings.EqualFold(strings.TrimSpace(acct.GuestName), strings.TrimSpace(statedName)) {
		g.logger.Warn("loose name match accepted",
			"session", sess.ID(), "account", accountID, "stated", statedName)
	}

	if err := sess.CompleteVerification(true, acct.ID, acct.GuestName); err != nil {
		return false, err
	}
	g.logger.Info("caller verified",
		"session", sess.ID(), "account", acct.ID, "guest", acct.GuestName)
	return true, nil
}

// nameMatches applies the case-insensitive substring rule.
func nameMatches(onFile, stated string) bool {
	a := strings.ToLower(strings.TrimSpace(onFile))
	b := strings.ToLower(strings.TrimSpace(stated))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
