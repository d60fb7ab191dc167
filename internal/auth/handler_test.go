package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireRolesAllowsMatchingRole(t *testing.T) {
	mw := (&Handler{}).RequireRoles("admin")
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/questions/duplicates", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 1, Role: "admin"}))
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestRequireRolesRejectsOtherRole(t *testing.T) {
	mw := (&Handler{}).RequireRoles("admin")
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/questions/duplicates", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 2, Role: "student"}))
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestRequireRolesRejectsAnonymous(t *testing.T) {
	mw := (&Handler{}).RequireRoles("admin")
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/questions/duplicates", nil)
	w := httptest.NewRecorder()
	next.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestReadSessionTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "cookie-token"})
	req.Header.Set("Authorization", "Bearer header-token")

	if got := readSessionToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}
}

func TestReadSessionTokenFallsBackToBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer header-token")

	if got := readSessionToken(req); got != "header-token" {
		t.Fatalf("expected bearer token, got %q", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	if got := readSessionToken(bare); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestCurrentUserMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	if _, ok := CurrentUser(req.Context()); ok {
		t.Fatalf("expected no user on bare context")
	}
}
