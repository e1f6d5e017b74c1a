package agent

import (
	"net/http"
	"reflect"
	"testing"
)

func TestParseWWWAuthenticate(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    *Challenge
		wantErr bool
	}{
		{
			name:   "invalid token",
			header: `Bearer realm="maps", error="invalid_token", error_description="The access token expired"`,
			want: &Challenge{
				Scheme:           "Bearer",
				Realm:            "maps",
				Error:            "invalid_token",
				ErrorDescription: "The access token expired",
			},
		},
		{
			name:   "insufficient scope with resource metadata",
			header: `Bearer error="insufficient_scope", scope="orders:read orders:write", resource_metadata="https://erp.example.com/.well-known/oauth-protected-resource"`,
			want: &Challenge{
				Scheme:              "Bearer",
				Error:               "insufficient_scope",
				Scopes:              []string{"orders:read", "orders:write"},
				ResourceMetadataURL: "https://erp.example.com/.well-known/oauth-protected-resource",
			},
		},
		{
			name:   "quoted comma",
			header: `Bearer error_description="bad, very bad", error="invalid_token"`,
			want: &Challenge{
				Scheme:           "Bearer",
				Error:            "invalid_token",
				ErrorDescription: "bad, very bad",
			},
		},
		{
			name:   "scheme only",
			header: "Bearer",
			want:   &Challenge{Scheme: "Bearer"},
		},
		{
			name:    "empty",
			header:  "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWWWAuthenticate(tt.header)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSplitPreservingQuotes(t *testing.T) {
	got := splitPreservingQuotes(`a="1,2",b=3,c="x"`, ',')
	want := []string{`a="1,2"`, `b=3`, `c="x"`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAuthErrorFromResponse(t *testing.T) {
	tests := []struct {
		status        int
		header        string
		wantErr       bool
		wantStepUp    bool
		wantChallenge bool
	}{
		{status: http.StatusOK},
		{status: http.StatusInternalServerError},
		{status: http.StatusUnauthorized, wantErr: true},
		{status: http.StatusUnauthorized, header: `Bearer error="invalid_token"`, wantErr: true, wantChallenge: true},
		{status: http.StatusForbidden, header: `Bearer error="insufficient_scope", scope="x"`, wantErr: true, wantStepUp: true, wantChallenge: true},
	}

	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.status, Header: http.Header{}}
		if tt.header != "" {
			resp.Header.Set("WWW-Authenticate", tt.header)
		}
		got := authErrorFromResponse(resp)
		if (got != nil) != tt.wantErr {
			t.Errorf("status %d: got %v, want error %v", tt.status, got, tt.wantErr)
			continue
		}
		if got == nil {
			continue
		}
		if (got.Challenge != nil) != tt.wantChallenge {
			t.Errorf("status %d: challenge = %+v", tt.status, got.Challenge)
		}
		if got.InsufficientScope() != tt.wantStepUp {
			t.Errorf("status %d: InsufficientScope() = %v", tt.status, got.InsufficientScope())
		}
		if !IsDownstreamAuthError(got) {
			t.Error("IsDownstreamAuthError = false")
		}
	}
}
