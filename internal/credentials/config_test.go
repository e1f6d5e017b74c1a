package credentials

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:   "token URL",
			config: Config{TokenURL: "https://login.example.com/tenant/oauth2/v2.0/token", ClientID: "id", ClientSecret: "secret"},
		},
		{
			name:   "authority only",
			config: Config{Authority: "https://login.example.com/tenant/v2.0", ClientID: "id", ClientSecret: "secret"},
		},
		{
			name:   "localhost over HTTP",
			config: Config{TokenURL: "http://127.0.0.1:9000/token", ClientID: "id", ClientSecret: "secret"},
		},
		{
			name:    "missing client ID",
			config:  Config{TokenURL: "https://idp.example.com/token", ClientSecret: "secret"},
			wantErr: "client ID",
		},
		{
			name:    "missing client secret",
			config:  Config{TokenURL: "https://idp.example.com/token", ClientID: "id"},
			wantErr: "client secret",
		},
		{
			name:    "no endpoint",
			config:  Config{ClientID: "id", ClientSecret: "secret"},
			wantErr: "token URL or authority",
		},
		{
			name:    "remote HTTP",
			config:  Config{TokenURL: "http://idp.example.com/token", ClientID: "id", ClientSecret: "secret"},
			wantErr: "HTTPS",
		},
		{
			name:    "negative skew",
			config:  Config{TokenURL: "https://idp.example.com/token", ClientID: "id", ClientSecret: "secret", ExpirySkew: -time.Second},
			wantErr: "skew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	orig := &Config{ClientID: "id"}
	cfg := orig.WithDefaults()

	if cfg.ScopeSuffix != "/.default" {
		t.Errorf("ScopeSuffix = %q", cfg.ScopeSuffix)
	}
	if cfg.ExpirySkew != 2*time.Minute {
		t.Errorf("ExpirySkew = %v", cfg.ExpirySkew)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.HTTPRetries != 2 {
		t.Errorf("HTTPRetries = %d", cfg.HTTPRetries)
	}
	if orig.ScopeSuffix != "" {
		t.Error("WithDefaults modified the original")
	}

	custom := (&Config{ScopeSuffix: "/user_impersonation", ExpirySkew: time.Second}).WithDefaults()
	if custom.ScopeSuffix != "/user_impersonation" || custom.ExpirySkew != time.Second {
		t.Errorf("custom values overwritten: %+v", custom)
	}
}

func TestInspectCallerToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	a := inspectCallerToken(callerJWT(t, "user-1", exp))
	b := inspectCallerToken(callerJWT(t, "user-1", exp.Add(time.Minute)))
	opaque := inspectCallerToken("opaque-token")

	if a.key == b.key {
		t.Error("different tokens must have different cache keys")
	}
	if a.subject != b.subject {
		t.Error("tokens of the same user should share a log subject")
	}
	if !a.expiry.Equal(exp) {
		t.Errorf("expiry = %v, want %v", a.expiry, exp)
	}
	if !opaque.expiry.IsZero() || opaque.subject == "" {
		t.Errorf("unexpected opaque token info: %+v", opaque)
	}
	if strings.Contains(a.subject, "user-1") {
		t.Error("subject must be hashed")
	}
}

func TestTokenCachePrune(t *testing.T) {
	var c tokenCache
	now := time.Now()

	live := c.slot("live")
	c.store(live, &DelegatedToken{Token: "a", Expiry: now.Add(time.Hour)}, now)
	dead := c.slot("dead")
	c.store(dead, &DelegatedToken{Token: "b", Expiry: now.Add(-time.Hour)}, now)
	busy := c.slot("busy")
	if err := busy.lock(t.Context()); err != nil {
		t.Fatal(err)
	}
	defer busy.unlock()

	c.prune(now)

	if c.len() != 2 {
		t.Errorf("len = %d, want 2 (live and busy slots kept)", c.len())
	}
	if c.lookup("live", now, 0) == nil {
		t.Error("live entry was pruned")
	}
}
