package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/cartcore-backend/pkg/auth"
	"github.com/angelmondragon/cartcore-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "identity"}

type seen struct {
	customer string
	service  string
	session  string
	kind     auth.Kind
}

func captureIdentity(dst *seen) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst.customer = CustomerIDFromContext(r.Context())
		dst.service = ServiceNameFromContext(r.Context())
		dst.session = SessionTokenFromContext(r.Context())
		dst.kind = ActorKindFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func mintTestToken(t *testing.T, kind auth.Kind, subject string) string {
	t.Helper()
	token, err := auth.Mint(testJWT, time.Now(), time.Hour, kind, subject, "")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestIdentifyGuestWithSession(t *testing.T) {
	var got seen
	handler := Identify(testJWT, nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(SessionHeader, " tok-1 ")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.session != "tok-1" || got.customer != "" || got.kind != "" {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestIdentifyCustomerToken(t *testing.T) {
	var got seen
	handler := Identify(testJWT, nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, auth.KindCustomer, "cust-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.customer != "cust-1" || got.kind != auth.KindCustomer {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestIdentifyRejectsInvalidToken(t *testing.T) {
	var got seen
	handler := Identify(testJWT, nil)(captureIdentity(&got))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	req.Header.Set(SessionHeader, "tok-1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if got.session != "" {
		t.Fatalf("handler should not run")
	}
}

func TestRequireCustomer(t *testing.T) {
	var got seen
	handler := Identify(testJWT, nil)(RequireCustomer(nil)(captureIdentity(&got)))

	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"service", mintTestToken(t, auth.KindService, "orders"), http.StatusForbidden},
		{"customer", mintTestToken(t, auth.KindCustomer, "cust-1"), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.status, resp.Code)
		}
	}
}

func TestRequireService(t *testing.T) {
	var got seen
	handler := Identify(testJWT, nil)(RequireService(nil)(captureIdentity(&got)))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, auth.KindCustomer, "cust-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mintTestToken(t, auth.KindService, "orders"))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.service != "orders" {
		t.Fatalf("expected service name, got %+v", got)
	}
}
