package auth

import (
	"context"
	"sync"
)

// StaticProvider serves a fixed bearer token, for headless runs where a
// token is minted elsewhere (REDLINE_ACCESS_TOKEN).
type StaticProvider struct {
	mu       sync.Mutex
	token    string
	account  *Account
	signedIn bool
}

// NewStaticProvider wraps token. If the token is a JWT its claims name the
// account; otherwise the session is anonymous.
func NewStaticProvider(token string) *StaticProvider {
	return &StaticProvider{
		token:    token,
		account:  AccountFromJWT(token),
		signedIn: token != "",
	}
}

func (p *StaticProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.signedIn {
		return "", newError("static", ErrNotSignedIn)
	}
	return p.token, nil
}

func (p *StaticProvider) Account() *Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.signedIn || p.account == nil {
		return nil
	}
	acct := *p.account
	return &acct
}

// SignIn re-activates the configured token after a SignOut.
func (p *StaticProvider) SignIn(ctx context.Context) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" {
		return nil, newError("static", ErrNotSignedIn)
	}
	p.signedIn = true
	if p.account == nil {
		return nil, nil
	}
	acct := *p.account
	return &acct, nil
}

func (p *StaticProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signedIn = false
	return nil
}
