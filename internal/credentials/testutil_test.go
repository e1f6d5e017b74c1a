package credentials

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testClientID     = "toolrouter-api"
	testClientSecret = "s3cr3t"
	testResource     = "api://map-service"
)

// MockIdentityProvider is a token endpoint that understands the jwt-bearer
// (on-behalf-of) and client_credentials grants.
//
// SECURITY NOTE: This is a TEST-ONLY implementation. It never validates
// assertion signatures.
type MockIdentityProvider struct {
	*httptest.Server
	t *testing.T

	mu            sync.Mutex
	tokenRequests int
	lastForm      map[string]string
	rejectCode    string
	expiresIn     int
	hold          map[string]chan struct{} // assertion -> released when closed
}

// NewMockIdentityProvider creates a running mock identity provider.
func NewMockIdentityProvider(t *testing.T) *MockIdentityProvider {
	t.Helper()

	idp := &MockIdentityProvider{
		t:         t,
		expiresIn: 3600,
		hold:      make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/tenant/v2.0/.well-known/openid-configuration", idp.handleMetadata)
	mux.HandleFunc("/token", idp.handleToken)
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)
	return idp
}

func (idp *MockIdentityProvider) handleMetadata(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":         idp.URL + "/tenant/v2.0",
		"token_endpoint": idp.URL + "/token",
	})
}

func (idp *MockIdentityProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	form := make(map[string]string)
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	idp.mu.Lock()
	idp.tokenRequests++
	idp.lastForm = form
	reject := idp.rejectCode
	expiresIn := idp.expiresIn
	hold := idp.hold[form["assertion"]]
	idp.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-r.Context().Done():
			return
		}
	}

	if form["client_id"] != testClientID || form["client_secret"] != testClientSecret {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "bad client credentials")
		return
	}
	if reject != "" {
		writeOAuthError(w, http.StatusBadRequest, reject, "AADSTS65001: The user has not consented")
		return
	}

	var access string
	switch form["grant_type"] {
	case grantTypeJWTBearer:
		if form["requested_token_use"] != requestedTokenUseOBO || form["assertion"] == "" {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "malformed obo request")
			return
		}
		access = "obo:" + form["assertion"] + ":" + form["scope"]
	case "client_credentials":
		access = "app:" + form["scope"]
	default:
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", form["grant_type"])
		return
	}

	body := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
	}
	if expiresIn > 0 {
		body["expires_in"] = expiresIn
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func writeOAuthError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

func (idp *MockIdentityProvider) TokenRequests() int {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.tokenRequests
}

func (idp *MockIdentityProvider) LastForm() map[string]string {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.lastForm
}

func (idp *MockIdentityProvider) Reject(code string) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.rejectCode = code
}

// SetExpiresIn changes the lifetime of issued tokens. 0 omits the expiry.
func (idp *MockIdentityProvider) SetExpiresIn(seconds int) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.expiresIn = seconds
}

// Hold blocks token requests for assertion until the returned func is called.
func (idp *MockIdentityProvider) Hold(assertion string) (release func()) {
	ch := make(chan struct{})
	idp.mu.Lock()
	idp.hold[assertion] = ch
	idp.mu.Unlock()
	var once sync.Once
	release = func() { once.Do(func() { close(ch) }) }
	idp.t.Cleanup(release)
	return release
}

func (idp *MockIdentityProvider) config() *Config {
	return &Config{
		TokenURL:     idp.URL + "/token",
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
	}
}

// callerJWT builds an unsigned-looking but parseable caller token.
func callerJWT(t *testing.T, oid string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": "https://login.example.com/tenant/v2.0",
		"tid": "tenant",
		"oid": oid,
		"sub": "sub-" + oid,
		"exp": exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign caller token: %v", err)
	}
	return signed
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
