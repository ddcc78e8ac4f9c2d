// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, and the admin and super admin gates

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoles struct {
	admins map[string]bool
	supers map[string]bool
}

func (f *fakeRoles) IsAdmin(ctx context.Context, uid string) (bool, error) {
	return f.admins[uid], nil
}

func (f *fakeRoles) IsSuperAdmin(uid string) bool {
	return f.supers[uid]
}

func okHandler(got **AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			*got = FromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, err := verifier.Generate("madeline", true, time.Hour)
	require.NoError(t, err)

	var gotAuth *AuthContext
	req := httptest.NewRequest(http.MethodGet, "/api/user/madeline", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	HTTPAuthMiddleware(verifier, nil)(okHandler(&gotAuth)).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gotAuth)
	assert.Equal(t, "madeline", gotAuth.UID)
	assert.True(t, gotAuth.IsAdmin)
}

func TestHTTPAuthMiddleware_Rejects(t *testing.T) {
	verifier := newTestVerifier(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/players", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			HTTPAuthMiddleware(verifier, nil)(okHandler(nil)).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body["status"] != "error" {
				t.Errorf("status field = %q, want error", body["status"])
			}
		})
	}
}

func TestRequireAdminHTTP(t *testing.T) {
	roles := &fakeRoles{admins: map[string]bool{"granny": true}}

	tests := []struct {
		name string
		auth *AuthContext
		want int
	}{
		{"no auth", nil, http.StatusUnauthorized},
		{"stale admin claim", &AuthContext{UID: "theo", IsAdmin: true}, http.StatusForbidden},
		{"live admin", &AuthContext{UID: "granny"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/ban", nil)
			if tt.auth != nil {
				req = req.WithContext(WithAuth(req.Context(), tt.auth))
			}
			rec := httptest.NewRecorder()
			RequireAdminHTTP(roles)(okHandler(nil)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireSuperAdminHTTP(t *testing.T) {
	roles := &fakeRoles{
		admins: map[string]bool{"granny": true, "theo": true},
		supers: map[string]bool{"granny": true, "oshiro": true},
	}

	tests := []struct {
		uid  string
		want int
	}{
		{"granny", http.StatusOK},
		{"theo", http.StatusForbidden},   // admin, not super
		{"oshiro", http.StatusForbidden}, // super, admin tag removed
	}

	for _, tt := range tests {
		t.Run(tt.uid, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/op", nil)
			req = req.WithContext(WithAuth(req.Context(), &AuthContext{UID: tt.uid}))
			rec := httptest.NewRecorder()
			RequireSuperAdminHTTP(roles)(okHandler(nil)).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
