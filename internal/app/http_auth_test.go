package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestLoginEstablishesSession(t *testing.T) {
	env := newTestEnv(t)

	cookie, csrf := env.login(t, "ana@client.test")
	if cookie.Value == "" || csrf == "" {
		t.Fatalf("expected session cookie and csrf token")
	}
	if !cookie.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}

	rr := env.doPortal(t, http.MethodGet, "client_session", nil, cookie, "")
	payload := parseJSON(t, rr)
	if payload["authenticated"] != true {
		t.Fatalf("expected authenticated session, got %v", rr.Body.String())
	}
	client, _ := payload["client"].(map[string]any)
	if client["email"] != "ana@client.test" || client["role"] != "primary" {
		t.Fatalf("unexpected client payload: %v", client)
	}
	if payload["csrf_token"] == "" {
		t.Fatalf("expected csrf_token in session payload")
	}
}

func TestSessionWithoutCookie(t *testing.T) {
	env := newTestEnv(t)
	rr := env.doPortal(t, http.MethodGet, "client_session", nil, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("session check must be public, got %d", rr.Code)
	}
	payload := parseJSON(t, rr)
	if payload["authenticated"] != false {
		t.Fatalf("expected unauthenticated, got %v", rr.Body.String())
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	rr := env.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": "ana@client.test", "password": "wrong-password",
	}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("validation failures ride on 200, got %d", rr.Code)
	}
	payload := parseJSON(t, rr)
	if payload["error"] != "Invalid email or password" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("no cookie on failed login")
	}
}

func TestLoginUnknownEmailSameMessage(t *testing.T) {
	env := newTestEnv(t)

	wrongPw := env.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": "ana@client.test", "password": "wrong-password",
	}, nil, "")
	unknown := env.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": "nobody@client.test", "password": "wrong-password",
	}, nil, "")
	if wrongPw.Body.String() != unknown.Body.String() {
		t.Fatalf("unknown email and wrong password must be indistinguishable:\n%s\n%s",
			wrongPw.Body.String(), unknown.Body.String())
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 6; i++ {
		rr := env.doPortal(t, http.MethodPost, "client_login", map[string]string{
			"email": "ana@client.test", "password": "wrong-password",
		}, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("attempt %d: status %d", i+1, rr.Code)
		}
	}

	credentialQueries := env.gw.callCount("SELECT clients")

	rr := env.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": "ana@client.test", "password": testPassword,
	}, nil, "")
	payload := parseJSON(t, rr)
	msg, _ := payload["error"].(string)
	if !strings.Contains(msg, "Too many failed attempts") {
		t.Fatalf("expected lockout message, got %q", msg)
	}
	if env.gw.callCount("SELECT clients") != credentialQueries {
		t.Fatalf("locked attempt must not query credentials")
	}
}

func TestSuccessfulLoginClearsFailureWindow(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 5; i++ {
		env.doPortal(t, http.MethodPost, "client_login", map[string]string{
			"email": "ana@client.test", "password": "wrong-password",
		}, nil, "")
	}
	// Still below the threshold; this succeeds and resets the window.
	env.login(t, "ana@client.test")

	for i := 0; i < 5; i++ {
		env.doPortal(t, http.MethodPost, "client_login", map[string]string{
			"email": "ana@client.test", "password": "wrong-password",
		}, nil, "")
	}
	// 5 + 5 failures would lock if the success had not cleared the set.
	cookie, _ := env.login(t, "ana@client.test")
	if cookie.Value == "" {
		t.Fatalf("expected login to succeed after window reset")
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t)
	cookie, _ := env.login(t, "ana@client.test")

	rr := env.doPortal(t, http.MethodPost, "client_logout", nil, cookie, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("logout status %d", rr.Code)
	}

	rr = env.doPortal(t, http.MethodGet, "client_dashboard", nil, cookie, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rr.Code)
	}
}

func TestLoginRegeneratesSessionID(t *testing.T) {
	env := newTestEnv(t)
	first, _ := env.login(t, "ana@client.test")
	second, _ := env.login(t, "ana@client.test")
	if first.Value == second.Value {
		t.Fatalf("session id must be regenerated per login")
	}
}

func TestForgotPasswordNeverRevealsAccounts(t *testing.T) {
	env := newTestEnv(t)

	known := env.doPortal(t, http.MethodPost, "client_forgot_password", map[string]string{
		"email": "ana@client.test",
	}, nil, "")
	unknown := env.doPortal(t, http.MethodPost, "client_forgot_password", map[string]string{
		"email": "nobody@client.test",
	}, nil, "")
	if known.Body.String() != unknown.Body.String() {
		t.Fatalf("forgot-password must not reveal account existence")
	}
	// One reset row for the real account, none for the unknown one.
	if rows := env.gw.rows("password_resets"); len(rows) != 1 {
		t.Fatalf("expected exactly one reset row, got %d", len(rows))
	}
}

func TestResetPasswordLifecycle(t *testing.T) {
	env := newTestEnv(t)

	token, _, err := env.service.pw.RequestReset(context.Background(), "ana@client.test")
	if err != nil || token == "" {
		t.Fatalf("request reset: %v", err)
	}

	rr := env.doPortal(t, http.MethodPost, "client_reset_password", map[string]string{
		"token": token, "password": "brand-new-pass",
	}, nil, "")
	payload := parseJSON(t, rr)
	if payload["success"] != true {
		t.Fatalf("reset failed: %v", rr.Body.String())
	}

	// Token is single-use.
	rr = env.doPortal(t, http.MethodPost, "client_reset_password", map[string]string{
		"token": token, "password": "another-new-pass",
	}, nil, "")
	payload = parseJSON(t, rr)
	if payload["error"] == nil {
		t.Fatalf("expected reused token to fail")
	}

	// New password works.
	rr = env.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": "ana@client.test", "password": "brand-new-pass",
	}, nil, "")
	if parseJSON(t, rr)["success"] != true {
		t.Fatalf("login with new password failed: %v", rr.Body.String())
	}
}
