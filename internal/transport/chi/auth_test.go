package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func testAuth() *Authenticator {
	return NewAuthenticator(AuthConfig{
		APIKeys:   []string{"static-key"},
		JWTSecret: testSecret,
		Issuer:    "kira-backend",
		Audience:  "kira-clients",
	})
}

func signToken(t *testing.T, secret, role, issuer string, exp time.Time) string {
	t.Helper()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{"kira-clients"},
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serveAuth(a *Authenticator, header string, roles ...string) *httptest.ResponseRecorder {
	handler := a.RequireRoles(roles...)(okHandler())
	req := httptest.NewRequest("GET", "/api/policies", http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return errResp
}

func TestAuth_NoCredentialsConfigured_PassThrough(t *testing.T) {
	a := NewAuthenticator(AuthConfig{APIKeys: []string{"", ""}})
	if !a.Disabled() {
		t.Fatal("expected auth to be disabled without keys or secret")
	}

	rr := serveAuth(a, "", RoleAdmin)
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_Disabled_AttachesDevPrincipal(t *testing.T) {
	a := NewAuthenticator(AuthConfig{JWTSecret: testSecret, Disabled: true})

	var got Principal
	handler := a.RequireRoles(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFromContext(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if got != devPrincipal {
		t.Errorf("principal: got %+v, want %+v", got, devPrincipal)
	}
}

func TestAuth_MissingHeader_401(t *testing.T) {
	rr := serveAuth(testAuth(), "", RoleUser)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	errResp := decodeError(t, rr)
	if errResp.Code != CodeUnauthorized || errResp.Message != "Missing bearer token" || !errResp.Error {
		t.Errorf("unexpected body: %+v", errResp)
	}
}

func TestAuth_BasicScheme_401(t *testing.T) {
	rr := serveAuth(testAuth(), "Basic dXNlcjpwYXNz", RoleUser)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuth_StaticAPIKey_200(t *testing.T) {
	rr := serveAuth(testAuth(), "Bearer static-key", RoleAdmin)
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_ValidJWT_200(t *testing.T) {
	token := signToken(t, testSecret, RoleAnalyst, "kira-backend", time.Now().Add(time.Hour))

	rr := serveAuth(testAuth(), "bearer "+token, RoleAdmin, RoleAnalyst)
	if rr.Code != http.StatusOK {
		t.Errorf("got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuth_WrongRole_403(t *testing.T) {
	token := signToken(t, testSecret, RoleUser, "kira-backend", time.Now().Add(time.Hour))

	rr := serveAuth(testAuth(), "Bearer "+token, RoleAdmin, RoleAnalyst)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if errResp := decodeError(t, rr); errResp.Message != "Insufficient role permissions" {
		t.Errorf("message: got %q", errResp.Message)
	}
}

func TestAuth_ExpiredJWT_401(t *testing.T) {
	token := signToken(t, testSecret, RoleUser, "kira-backend", time.Now().Add(-time.Hour))

	rr := serveAuth(testAuth(), "Bearer "+token, RoleUser)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if errResp := decodeError(t, rr); errResp.Message != "Token expired" {
		t.Errorf("message: got %q", errResp.Message)
	}
}

func TestAuth_InvalidJWT_401(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", signToken(t, "other", RoleUser, "kira-backend", time.Now().Add(time.Hour))},
		{"wrong issuer", signToken(t, testSecret, RoleUser, "someone-else", time.Now().Add(time.Hour))},
		{"unknown role", signToken(t, testSecret, "root", "kira-backend", time.Now().Add(time.Hour))},
		{"garbage", "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serveAuth(testAuth(), "Bearer "+tt.token, RoleUser)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if errResp := decodeError(t, rr); errResp.Message != "Invalid token" {
				t.Errorf("message: got %q", errResp.Message)
			}
		})
	}
}
