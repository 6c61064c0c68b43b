package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	svc := newTestService(fs)
	srv := httptest.NewServer(NewHTTPServer(svc, "*", zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, fs
}

func postJSON(t *testing.T, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	return doJSON(t, http.MethodPost, url, body, token)
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, payload
}

func signUpSession(t *testing.T, srv *httptest.Server, email string) map[string]any {
	t.Helper()
	resp, payload := postJSON(t, srv.URL+"/api/auth/signup", map[string]any{
		"email":    email,
		"password": "correct horse",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup returned %d: %v", resp.StatusCode, payload)
	}
	return payload
}

func TestSignUpAndSignInFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	session := signUpSession(t, srv, "avery@example.com")
	if session["accessToken"] == "" || session["refreshToken"] == "" {
		t.Fatalf("signup payload missing tokens: %v", session)
	}

	resp, payload := postJSON(t, srv.URL+"/api/auth/signup", map[string]any{
		"email":    "avery@example.com",
		"password": "correct horse",
	}, "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate signup returned %d", resp.StatusCode)
	}
	if payload["code"] != "DUPLICATE_ACCOUNT" {
		t.Fatalf("expected DUPLICATE_ACCOUNT, got %v", payload["code"])
	}

	resp, payload = postJSON(t, srv.URL+"/api/auth/signin", map[string]any{
		"email":    "avery@example.com",
		"password": "wrong password",
	}, "")
	if resp.StatusCode != http.StatusUnauthorized || payload["code"] != "INVALID_CREDENTIAL" {
		t.Fatalf("expected 401 INVALID_CREDENTIAL, got %d %v", resp.StatusCode, payload["code"])
	}

	resp, _ = postJSON(t, srv.URL+"/api/auth/signin", map[string]any{
		"email":    "avery@example.com",
		"password": "correct horse",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin returned %d", resp.StatusCode)
	}
}

func TestSignUpWeakPassword(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, payload := postJSON(t, srv.URL+"/api/auth/signup", map[string]any{
		"email":    "avery@example.com",
		"password": "short",
	}, "")
	if resp.StatusCode != http.StatusUnprocessableEntity || payload["code"] != "WEAK_CREDENTIAL" {
		t.Fatalf("expected 422 WEAK_CREDENTIAL, got %d %v", resp.StatusCode, payload["code"])
	}
}

func TestEntriesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/entries", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %v", payload["code"])
	}
}

func TestEntryLifecycleOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	session := signUpSession(t, srv, "avery@example.com")
	token := session["accessToken"].(string)

	resp, payload := postJSON(t, srv.URL+"/api/entries", map[string]any{
		"moodValue": 3,
		"day":       "2025-06-01",
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create entry returned %d: %v", resp.StatusCode, payload)
	}
	entry := payload["entry"].(map[string]any)
	if entry["reason"] != "No reason specified" {
		t.Fatalf("expected sentinel reason, got %v", entry["reason"])
	}

	// Attach the reason afterwards; same-day write replaces the entry.
	resp, payload = doJSON(t, http.MethodPut, srv.URL+"/api/entries/2025-06-01", map[string]any{
		"moodValue": 3,
		"reason":    "good long walk",
	}, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update entry returned %d: %v", resp.StatusCode, payload)
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/entries/2025-06-01", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get entry returned %d", resp.StatusCode)
	}
	entry = payload["entry"].(map[string]any)
	if entry["reason"] != "good long walk" {
		t.Fatalf("expected updated reason, got %v", entry["reason"])
	}

	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/entries", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list entries returned %d", resp.StatusCode)
	}
	if entries := payload["entries"].([]any); len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/entries/2025-06-01", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete entry returned %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/entries/2025-06-01", nil, token)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestEntryValidationOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	session := signUpSession(t, srv, "avery@example.com")
	token := session["accessToken"].(string)

	resp, payload := postJSON(t, srv.URL+"/api/entries", map[string]any{
		"moodValue": 9,
		"day":       "2025-06-01",
	}, token)
	if resp.StatusCode != http.StatusUnprocessableEntity || payload["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 422 VALIDATION_ERROR, got %d %v", resp.StatusCode, payload["code"])
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/entries/garbage", nil, token)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for malformed day key, got %d", resp.StatusCode)
	}
}

func TestSessionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/session", nil, "")
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != false {
		t.Fatalf("expected anonymous session, got %d %v", resp.StatusCode, payload)
	}

	session := signUpSession(t, srv, "avery@example.com")
	token := session["accessToken"].(string)
	resp, payload = doJSON(t, http.MethodGet, srv.URL+"/api/session", nil, token)
	if resp.StatusCode != http.StatusOK || payload["authenticated"] != true {
		t.Fatalf("expected authenticated session, got %d %v", resp.StatusCode, payload)
	}
	if payload["email"] != "avery@example.com" {
		t.Fatalf("unexpected email: %v", payload["email"])
	}
}

func TestRefreshEndpointRotates(t *testing.T) {
	srv, _ := newTestServer(t)
	session := signUpSession(t, srv, "avery@example.com")
	refresh := session["refreshToken"].(string)

	resp, payload := postJSON(t, srv.URL+"/api/session/refresh", map[string]any{
		"refreshToken": refresh,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh returned %d: %v", resp.StatusCode, payload)
	}
	if payload["refreshToken"] == refresh {
		t.Fatal("expected rotated refresh token")
	}

	resp, _ = postJSON(t, srv.URL+"/api/session/refresh", map[string]any{
		"refreshToken": refresh,
	}, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected reused refresh token to be rejected, got %d", resp.StatusCode)
	}
}

func TestInsightsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	session := signUpSession(t, srv, "avery@example.com")
	token := session["accessToken"].(string)

	days := []string{"2025-06-01", "2025-06-02", "2025-06-03"}
	for i, day := range days {
		resp, payload := postJSON(t, srv.URL+"/api/entries", map[string]any{
			"moodValue": (i % 3) + 1,
			"day":       day,
		}, token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("create entry %s returned %d: %v", day, resp.StatusCode, payload)
		}
	}

	resp, payload := doJSON(t, http.MethodGet, srv.URL+"/api/insights?today=2025-06-03", nil, token)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("insights returned %d: %v", resp.StatusCode, payload)
	}
	insights := payload["insights"].(map[string]any)
	if fmt.Sprintf("%v", insights["days"]) != "3" {
		t.Fatalf("expected 3 days, got %v", insights["days"])
	}
	if fmt.Sprintf("%v", insights["currentStreak"]) != "3" {
		t.Fatalf("expected streak 3, got %v", insights["currentStreak"])
	}
}

func TestPasswordResetDevBypassOverHTTP(t *testing.T) {
	srv, _ := newTestServer(t)
	signUpSession(t, srv, "avery@example.com")

	resp, payload := postJSON(t, srv.URL+"/api/auth/reset-password/request", map[string]any{
		"email": "avery@example.com",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset request returned %d", resp.StatusCode)
	}
	token, ok := payload["devResetToken"].(string)
	if !ok || token == "" {
		t.Fatalf("expected dev reset token without SMTP, got %v", payload)
	}

	resp, _ = postJSON(t, srv.URL+"/api/auth/reset-password", map[string]any{
		"token":       token,
		"newPassword": "battery staple",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset returned %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, srv.URL+"/api/auth/signin", map[string]any{
		"email":    "avery@example.com",
		"password": "battery staple",
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signin after reset returned %d", resp.StatusCode)
	}
}
