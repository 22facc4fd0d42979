package auth

import (
	"context"
)

type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

func (i Identity) Anonymous() bool {
	return i.Subject == ""
}

// Actor returns the best attribution string for audit records.
func (i Identity) Actor() string {
	if i.Email != "" {
		return i.Email
	}
	if i.Subject != "" {
		return i.Subject
	}
	return "anonymous"
}

type ctxKeyIdentity struct{}

func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(ctxKeyIdentity{}).(Identity)
	return v, ok
}
