// Package auth acquires bearer tokens for the mail API and tracks which
// account is signed in.
package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Provider supplies bearer tokens for the active account.
type Provider interface {
	// Token returns a valid access token, acquiring one silently when
	// possible. Failures are *Error values.
	Token(ctx context.Context) (string, error)
	// Account returns the signed-in account, or nil.
	Account() *Account
	// SignIn runs interactive sign-in if no account is active.
	SignIn(ctx context.Context) (*Account, error)
	// SignOut forgets the active account and its cached tokens.
	SignOut(ctx context.Context) error
}

// Account describes a signed-in identity. ID is stable per account and
// tenant and keys the account's persisted state.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	TenantID string `json:"tenant_id,omitempty"`
}

// Identity returns the account ID, or "" for a nil account.
func (a *Account) Identity() string {
	if a == nil {
		return ""
	}
	return a.ID
}

// DisplayName returns the best human-readable label for the account.
func (a *Account) DisplayName() string {
	if a == nil {
		return ""
	}
	if a.Username != "" {
		return a.Username
	}
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

// AccountFromJWT extracts account details from an ID or access token.
// The signature is not verified: the claims only label local state.
// Returns nil if the token is not a JWT or carries no object ID.
func AccountFromJWT(token string) *Account {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	str := func(key string) string {
		if v, ok := claims[key].(string); ok {
			return v
		}
		return ""
	}

	oid := str("oid")
	if oid == "" {
		oid = str("sub")
	}
	if oid == "" {
		return nil
	}
	tid := str("tid")

	acct := &Account{
		ID:       oid,
		Username: str("preferred_username"),
		Name:     str("name"),
		TenantID: tid,
	}
	if acct.Username == "" {
		acct.Username = str("upn")
	}
	if tid != "" {
		acct.ID = oid + "." + tid
	}
	return acct
}
