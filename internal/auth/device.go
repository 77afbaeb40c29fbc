package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/theirongolddev/redline/internal/kv"
)

// DefaultScopes are requested on sign-in. Mail.ReadBasic is the only
// mailbox permission used; the rest allow silent refresh and identity.
var DefaultScopes = []string{"Mail.ReadBasic", "offline_access", "openid", "profile"}

const (
	currentAccountKey = "auth:account"
	tokenKeyPrefix    = "auth:token:"
)

// DeviceCode is shown to the user during interactive sign-in.
type DeviceCode struct {
	UserCode        string
	VerificationURI string
	// VerificationURIComplete embeds the user code, when the server offers it.
	VerificationURIComplete string
	ExpiresAt               time.Time
}

// PromptFunc displays a device code. It must not block.
type PromptFunc func(DeviceCode)

// DeviceProvider acquires tokens with the OAuth 2.0 device authorization
// grant. Tokens are cached per account in a kv.Store and refreshed silently;
// the device prompt is the fallback when no usable refresh token exists.
type DeviceProvider struct {
	cfg         *oauth2.Config
	store       kv.Store
	prompt      PromptFunc
	interactive bool
	httpClient  *http.Client
	log         *logrus.Entry

	mu      sync.Mutex
	account *Account
	token   *oauth2.Token
	loaded  bool
}

// DeviceOption configures a DeviceProvider.
type DeviceOption func(*DeviceProvider)

// WithEndpoint overrides the identity endpoint (tests use httptest).
func WithEndpoint(ep oauth2.Endpoint) DeviceOption {
	return func(p *DeviceProvider) {
		p.cfg.Endpoint = ep
		p.cfg.Endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
}

// WithScopes overrides DefaultScopes.
func WithScopes(scopes []string) DeviceOption {
	return func(p *DeviceProvider) {
		if len(scopes) > 0 {
			p.cfg.Scopes = scopes
		}
	}
}

// WithPrompt sets the function that shows device codes.
func WithPrompt(fn PromptFunc) DeviceOption {
	return func(p *DeviceProvider) {
		p.prompt = fn
	}
}

// WithInteractiveFallback controls whether Token may start a device code
// flow when silent acquisition fails. SignIn always may.
func WithInteractiveFallback(enabled bool) DeviceOption {
	return func(p *DeviceProvider) {
		p.interactive = enabled
	}
}

// WithAuthHTTPClient sets the HTTP client used for identity endpoints.
func WithAuthHTTPClient(c *http.Client) DeviceOption {
	return func(p *DeviceProvider) {
		p.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(entry *logrus.Entry) DeviceOption {
	return func(p *DeviceProvider) {
		if entry != nil {
			p.log = entry
		}
	}
}

// NewDeviceProvider creates a provider for the given application (client)
// and tenant. An empty tenant selects "common".
func NewDeviceProvider(clientID, tenant string, store kv.Store, opts ...DeviceOption) *DeviceProvider {
	ep := microsoft.AzureADEndpoint(tenant)
	ep.AuthStyle = oauth2.AuthStyleInParams
	p := &DeviceProvider{
		cfg: &oauth2.Config{
			ClientID: clientID,
			Endpoint: ep,
			Scopes:   DefaultScopes,
		},
		store:       store,
		interactive: true,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		log:         logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithField("component", "auth")
	return p
}

func (p *DeviceProvider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Account returns the active account, loading the cached one on first use.
func (p *DeviceProvider) Account() *Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()
	if p.account == nil {
		return nil
	}
	acct := *p.account
	return &acct
}

// Token returns an access token for the active account.
func (p *DeviceProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()

	if p.token != nil {
		tok, err := p.refreshLocked(ctx)
		if err == nil {
			return tok.AccessToken, nil
		}
		p.log.WithError(err).Warn("silent token acquisition failed")
		if !p.interactive {
			return "", newError("silent", err)
		}
	} else if !p.interactive {
		return "", newError("silent", ErrNotSignedIn)
	}

	if _, err := p.deviceFlowLocked(ctx); err != nil {
		return "", err
	}
	return p.token.AccessToken, nil
}

// SignIn returns the active account, running the device code flow if no
// cached token can be refreshed.
func (p *DeviceProvider) SignIn(ctx context.Context) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()

	if p.token != nil && p.account != nil {
		if _, err := p.refreshLocked(ctx); err == nil {
			acct := *p.account
			return &acct, nil
		}
	}
	return p.deviceFlowLocked(ctx)
}

// SignOut drops the active account and deletes its cached token.
func (p *DeviceProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLocked()

	var errs []error
	if p.account != nil {
		if err := p.store.Delete(tokenKeyPrefix + p.account.ID); err != nil {
			errs = append(errs, err)
		}
		p.log.WithField("account", p.account.DisplayName()).Info("signed out")
	}
	if err := p.store.Delete(currentAccountKey); err != nil {
		errs = append(errs, err)
	}
	p.account = nil
	p.token = nil
	if err := errors.Join(errs...); err != nil {
		return newError("sign_out", err)
	}
	return nil
}

// loadLocked restores the cached account and token once (caller holds mu).
func (p *DeviceProvider) loadLocked() {
	if p.loaded {
		return
	}
	p.loaded = true

	raw, ok, err := p.store.Get(currentAccountKey)
	if err != nil || !ok {
		return
	}
	var acct Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil || acct.ID == "" {
		return
	}
	rawTok, ok, err := p.store.Get(tokenKeyPrefix + acct.ID)
	if err != nil || !ok {
		return
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(rawTok), &tok); err != nil {
		return
	}
	p.account = &acct
	p.token = &tok
}

// refreshLocked returns a valid token, exchanging the refresh token when the
// cached one has expired.
func (p *DeviceProvider) refreshLocked(ctx context.Context) (*oauth2.Token, error) {
	src := p.cfg.TokenSource(p.oauthContext(ctx), p.token)
	tok, err := src.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != p.token.AccessToken {
		if acct := accountFromToken(tok); acct != nil && p.account != nil && acct.ID != p.account.ID {
			p.log.WithField("account", acct.DisplayName()).Warn("refreshed token belongs to a different account")
			p.account = acct
		}
		p.token = tok
		p.persistLocked()
	}
	return tok, nil
}

func (p *DeviceProvider) deviceFlowLocked(ctx context.Context) (*Account, error) {
	if p.cfg.ClientID == "" {
		return nil, newError("device_code", ErrNoClientID)
	}

	octx := p.oauthContext(ctx)
	da, err := p.cfg.DeviceAuth(octx)
	if err != nil {
		return nil, newError("device_code", err)
	}

	if p.prompt != nil {
		p.prompt(DeviceCode{
			UserCode:                da.UserCode,
			VerificationURI:         da.VerificationURI,
			VerificationURIComplete: da.VerificationURIComplete,
			ExpiresAt:               da.Expiry,
		})
	}
	p.log.WithField("verification_uri", da.VerificationURI).Info("waiting for device code approval")

	tok, err := p.cfg.DeviceAccessToken(octx, da)
	if err != nil {
		return nil, newError("device_code", classifyDeviceError(err))
	}

	acct := accountFromToken(tok)
	if acct == nil {
		return nil, newError("device_code", fmt.Errorf("token response carried no usable identity"))
	}
	p.account = acct
	p.token = tok
	p.persistLocked()
	p.log.WithField("account", acct.DisplayName()).Info("signed in")

	out := *acct
	return &out, nil
}

func (p *DeviceProvider) persistLocked() {
	acctData, err := json.Marshal(p.account)
	if err != nil {
		return
	}
	tokData, err := json.Marshal(p.token)
	if err != nil {
		return
	}
	if err := p.store.Set(tokenKeyPrefix+p.account.ID, string(tokData)); err != nil {
		p.log.WithError(err).Warn("caching token failed")
		return
	}
	if err := p.store.Set(currentAccountKey, string(acctData)); err != nil {
		p.log.WithError(err).Warn("caching account failed")
	}
}

func accountFromToken(tok *oauth2.Token) *Account {
	if idToken, ok := tok.Extra("id_token").(string); ok {
		if acct := AccountFromJWT(idToken); acct != nil {
			return acct
		}
	}
	return AccountFromJWT(tok.AccessToken)
}

func classifyDeviceError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		switch re.ErrorCode {
		case "access_denied", "authorization_declined":
			return fmt.Errorf("%w: %s", ErrDeclined, strings.TrimSpace(re.ErrorDescription))
		case "expired_token", "code_expired":
			return ErrExpired
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrExpired
	}
	return err
}
