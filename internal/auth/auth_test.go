package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/theirongolddev/redline/internal/kv"
)

func makeJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestAccountFromJWT(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		wantID string
		user   string
	}{
		{"not a jwt", "opaque-token", "", ""},
		{"garbage segments", "a.b.c", "", ""},
		{"oid and tid", makeJWT(t, jwt.MapClaims{"oid": "o1", "tid": "t1", "preferred_username": "ana@example.com"}), "o1.t1", "ana@example.com"},
		{"sub fallback", makeJWT(t, jwt.MapClaims{"sub": "s1", "upn": "bo@example.com"}), "s1", "bo@example.com"},
		{"no subject", makeJWT(t, jwt.MapClaims{"name": "Nobody"}), "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acct := AccountFromJWT(tt.token)
			if acct.Identity() != tt.wantID {
				t.Errorf("expected identity %q, got %q", tt.wantID, acct.Identity())
			}
			if acct != nil && acct.Username != tt.user {
				t.Errorf("expected username %q, got %q", tt.user, acct.Username)
			}
		})
	}
}

func TestAccount_DisplayName(t *testing.T) {
	var nilAcct *Account
	if nilAcct.DisplayName() != "" {
		t.Error("expected empty display name for nil account")
	}
	if (&Account{ID: "x", Name: "Ana"}).DisplayName() != "Ana" {
		t.Error("expected name fallback")
	}
	if (&Account{ID: "x"}).DisplayName() != "x" {
		t.Error("expected ID fallback")
	}
}

func TestStaticProvider(t *testing.T) {
	ctx := context.Background()
	p := NewStaticProvider(makeJWT(t, jwt.MapClaims{"oid": "o", "tid": "t"}))

	tok, err := p.Token(ctx)
	if err != nil || tok == "" {
		t.Fatalf("expected token, got %q %v", tok, err)
	}
	if p.Account().Identity() != "o.t" {
		t.Errorf("expected identity from claims, got %q", p.Account().Identity())
	}

	p.SignOut(ctx)
	if _, err := p.Token(ctx); !errors.Is(err, ErrNotSignedIn) || !IsAuthError(err) {
		t.Errorf("expected ErrNotSignedIn auth error after sign-out, got %v", err)
	}
	if p.Account() != nil {
		t.Error("expected no account after sign-out")
	}

	if _, err := p.SignIn(ctx); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if _, err := p.Token(ctx); err != nil {
		t.Errorf("expected token after re-sign-in, got %v", err)
	}
}

func TestStaticProvider_Empty(t *testing.T) {
	p := NewStaticProvider("")
	if _, err := p.Token(context.Background()); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := p.SignIn(context.Background()); err == nil {
		t.Error("expected SignIn to fail without a token")
	}
}

// identityServer fakes the device code and token endpoints.
type identityServer struct {
	*httptest.Server
	idToken      string
	deviceResult string // "ok", "declined"
	tokenCalls   atomic.Int32
	refreshCalls atomic.Int32
}

func newIdentityServer(t *testing.T, idToken string) *identityServer {
	s := &identityServer{idToken: idToken, deviceResult: "ok"}
	mux := http.NewServeMux()
	mux.HandleFunc("/devicecode", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"device_code":"dev-123","user_code":"ABCD-EFGH","verification_uri":"https://microsoft.com/devicelogin","expires_in":30,"interval":1}`)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		switch r.Form.Get("grant_type") {
		case "refresh_token":
			s.refreshCalls.Add(1)
			fmt.Fprintf(w, `{"access_token":"access-refreshed","token_type":"Bearer","refresh_token":"refresh-2","expires_in":3600,"id_token":%q}`, s.idToken)
		default:
			s.tokenCalls.Add(1)
			if s.deviceResult == "declined" {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprint(w, `{"error":"authorization_declined","error_description":"user said no"}`)
				return
			}
			fmt.Fprintf(w, `{"access_token":"access-1","token_type":"Bearer","refresh_token":"refresh-1","expires_in":3600,"id_token":%q}`, s.idToken)
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *identityServer) endpoint() oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:       s.URL + "/authorize",
		TokenURL:      s.URL + "/token",
		DeviceAuthURL: s.URL + "/devicecode",
	}
}

func TestDeviceProvider_SignInAndCache(t *testing.T) {
	idToken := makeJWT(t, jwt.MapClaims{"oid": "o1", "tid": "t1", "preferred_username": "ana@example.com"})
	srv := newIdentityServer(t, idToken)
	store := kv.NewMemory()

	var prompted DeviceCode
	p := NewDeviceProvider("client", "", store,
		WithEndpoint(srv.endpoint()),
		WithPrompt(func(dc DeviceCode) { prompted = dc }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acct, err := p.SignIn(ctx)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if acct.ID != "o1.t1" || acct.Username != "ana@example.com" {
		t.Errorf("unexpected account %+v", acct)
	}
	if prompted.UserCode != "ABCD-EFGH" {
		t.Errorf("expected prompt with user code, got %+v", prompted)
	}

	tok, err := p.Token(ctx)
	if err != nil || tok != "access-1" {
		t.Errorf("expected cached access token, got %q %v", tok, err)
	}
	if srv.tokenCalls.Load() != 1 {
		t.Errorf("expected one device token exchange, got %d", srv.tokenCalls.Load())
	}

	raw, ok, _ := store.Get("auth:account")
	if !ok {
		t.Fatal("expected account to be cached")
	}
	var cached Account
	json.Unmarshal([]byte(raw), &cached)
	if cached.ID != "o1.t1" {
		t.Errorf("expected cached account id, got %q", cached.ID)
	}

	// A second provider over the same store signs in silently.
	p2 := NewDeviceProvider("client", "", store, WithEndpoint(srv.endpoint()), WithInteractiveFallback(false))
	if p2.Account().Identity() != "o1.t1" {
		t.Errorf("expected cached account to load, got %+v", p2.Account())
	}
	if tok, err := p2.Token(ctx); err != nil || tok != "access-1" {
		t.Errorf("expected silent token, got %q %v", tok, err)
	}
}

func TestDeviceProvider_RefreshesExpiredToken(t *testing.T) {
	idToken := makeJWT(t, jwt.MapClaims{"oid": "o1", "tid": "t1"})
	srv := newIdentityServer(t, idToken)
	store := kv.NewMemory()

	expired, _ := json.Marshal(&oauth2.Token{
		AccessToken:  "stale",
		TokenType:    "Bearer",
		RefreshToken: "refresh-1",
		Expiry:       time.Now().Add(-time.Hour),
	})
	store.Set("auth:account", `{"id":"o1.t1"}`)
	store.Set("auth:token:o1.t1", string(expired))

	p := NewDeviceProvider("client", "", store, WithEndpoint(srv.endpoint()), WithInteractiveFallback(false))
	tok, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "access-refreshed" {
		t.Errorf("expected refreshed token, got %q", tok)
	}
	if srv.refreshCalls.Load() != 1 {
		t.Errorf("expected one refresh, got %d", srv.refreshCalls.Load())
	}
	raw, _, _ := store.Get("auth:token:o1.t1")
	var saved oauth2.Token
	json.Unmarshal([]byte(raw), &saved)
	if saved.AccessToken != "access-refreshed" {
		t.Errorf("expected refreshed token persisted, got %q", saved.AccessToken)
	}
}

func TestDeviceProvider_NotSignedInWithoutFallback(t *testing.T) {
	p := NewDeviceProvider("client", "", kv.NewMemory(), WithInteractiveFallback(false))
	_, err := p.Token(context.Background())
	if !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("expected ErrNotSignedIn, got %v", err)
	}
	if !IsAuthError(err) {
		t.Error("expected *Error")
	}
}

func TestDeviceProvider_Declined(t *testing.T) {
	srv := newIdentityServer(t, "")
	srv.deviceResult = "declined"
	p := NewDeviceProvider("client", "", kv.NewMemory(), WithEndpoint(srv.endpoint()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := p.SignIn(ctx)
	if !errors.Is(err, ErrDeclined) {
		t.Errorf("expected ErrDeclined, got %v", err)
	}
	if p.Account() != nil {
		t.Error("expected no account after declined sign-in")
	}
}

func TestDeviceProvider_NoClientID(t *testing.T) {
	p := NewDeviceProvider("", "", kv.NewMemory())
	_, err := p.SignIn(context.Background())
	if !errors.Is(err, ErrNoClientID) {
		t.Errorf("expected ErrNoClientID, got %v", err)
	}
}

func TestDeviceProvider_SignOut(t *testing.T) {
	store := kv.NewMemory()
	tok, _ := json.Marshal(&oauth2.Token{AccessToken: "a", Expiry: time.Now().Add(time.Hour)})
	store.Set("auth:account", `{"id":"o1.t1"}`)
	store.Set("auth:token:o1.t1", string(tok))
	store.Set("baseline:o1.t1", `{"time":1,"counts":{}}`)

	p := NewDeviceProvider("client", "", store, WithInteractiveFallback(false))
	if p.Account() == nil {
		t.Fatal("expected cached account")
	}
	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if p.Account() != nil {
		t.Error("expected no account after sign-out")
	}
	if _, ok, _ := store.Get("auth:token:o1.t1"); ok {
		t.Error("expected token deleted")
	}
	if _, ok, _ := store.Get("baseline:o1.t1"); !ok {
		t.Error("expected baseline to survive sign-out")
	}
}
