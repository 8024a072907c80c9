// Package authctx carries the authenticated account through request contexts.
package authctx

import (
	"context"
	"strings"

	"github.com/and161185/orderhub/internal/model"
)

type ctxKey string

const accountKey ctxKey = "orderhub.account"

// WithAccount stores the authenticated account in context.
func WithAccount(ctx context.Context, a *model.Account) context.Context {
	return context.WithValue(ctx, accountKey, a)
}

// AccountFromCtx fetches the authenticated account from context.
func AccountFromCtx(ctx context.Context) (*model.Account, bool) {
	a, ok := ctx.Value(accountKey).(*model.Account)
	return a, ok && a != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	if t == "" || strings.ContainsAny(t, " \t") {
		return "", false
	}
	return t, true
}
