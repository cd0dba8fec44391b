package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"reviewport/api/internal/authpw"
	"reviewport/api/internal/config"
	"reviewport/api/internal/email"
	"reviewport/api/internal/model"
	"reviewport/api/internal/ratelimit"
	"reviewport/api/internal/search"
	"reviewport/api/internal/session"
)

const testPassword = "s3cret-password"

type fakeSigner struct{}

func (fakeSigner) DownloadURL(_ context.Context, objectKey, _ string, _ time.Duration) (string, error) {
	return "https://storage.test/" + objectKey, nil
}

type fakeSearcher struct {
	batches [][]search.Record
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearcher) IndexRecords(records []search.Record) {
	f.batches = append(f.batches, records)
}

type testEnv struct {
	server  *HTTPServer
	service *Service
	gw      *fakeGateway
	redis   *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	gw := newFakeGateway()
	cfg := config.Config{
		SessionTTL:       time.Hour,
		LockoutWindow:    15 * time.Minute,
		LockoutThreshold: 6,
		PortalBaseURL:    "http://portal.test",
	}

	logger := zap.NewNop()
	sessions := session.NewRedisStoreWithClient(client, cfg.SessionTTL)
	limiter := ratelimit.New(client, cfg.LockoutWindow, cfg.LockoutThreshold)
	mailer := email.NewService(config.SMTPConfig{}, logger)

	svc := NewService(cfg, gw, sessions, limiter, mailer, fakeSigner{}, logger)
	server := NewHTTPServer(svc, "*", logger)

	seedPortal(t, gw)
	return &testEnv{server: server, service: svc, gw: gw, redis: mr}
}

func seedPortal(t *testing.T, gw *fakeGateway) {
	t.Helper()

	hash, err := authpw.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	gw.seed("clients", model.Client{
		ID: "client-1", CompanyID: "co-1", Company: "Acme Studio",
		Name: "Ana", Email: "ana@client.test",
		PasswordHash: hash, Role: "primary", IsActive: true,
	})
	gw.seed("clients", model.Client{
		ID: "client-2", CompanyID: "co-1", Company: "Acme Studio",
		Name: "Ben", Email: "ben@client.test",
		PasswordHash: hash, Role: "member", IsActive: true,
	})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw.seed("projects", model.Project{
		ID: "proj-1", CompanyID: "co-1", Name: "Brand refresh", Status: "active", CreatedAt: base,
	})
	gw.seed("projects", model.Project{
		ID: "proj-other", CompanyID: "co-2", Name: "Other tenant", Status: "active", CreatedAt: base,
	})

	gw.seed("files", model.File{
		ID: "file-1", ProjectID: "proj-1", Name: "logo-v2.pdf", ObjectKey: "co-1/logo-v2.pdf", CreatedAt: base,
	})
	gw.seed("files", model.File{
		ID: "file-other", ProjectID: "proj-other", Name: "secret.pdf", ObjectKey: "co-2/secret.pdf", CreatedAt: base,
	})

	gw.seed("team_members", model.TeamMember{ID: "admin-1", Name: "Pat", Email: "pat@agency.test", IsAdmin: true})
	gw.seed("team_members", model.TeamMember{ID: "admin-2", Name: "Quinn", Email: "quinn@agency.test", IsAdmin: true})
	gw.seed("team_members", model.TeamMember{ID: "staff-1", Name: "Rae", Email: "rae@agency.test", IsAdmin: false})
}

// doPortal issues a request against the portal endpoint.
func (e *testEnv) doPortal(t *testing.T, method, action string, body any, cookie *http.Cookie, csrf string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, "/api/portal?action="+action, reader)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if csrf != "" {
		req.Header.Set(csrfHeaderName, csrf)
	}

	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// doPortalQuery issues a GET with extra query parameters.
func (e *testEnv) doPortalQuery(t *testing.T, action, extraQuery string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	target := "/api/portal?action=" + action
	if extraQuery != "" {
		target += "&" + extraQuery
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

// login authenticates the given email and returns the session cookie and CSRF
// token for follow-up requests.
func (e *testEnv) login(t *testing.T, emailAddr string) (*http.Cookie, string) {
	t.Helper()

	rr := e.doPortal(t, http.MethodPost, "client_login", map[string]string{
		"email": emailAddr, "password": testPassword,
	}, nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("login status %d body=%s", rr.Code, rr.Body.String())
	}

	var payload struct {
		Success   bool   `json:"success"`
		CSRFToken string `json:"csrf_token"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse login response: %v", err)
	}
	if !payload.Success {
		t.Fatalf("login failed: %s", payload.Error)
	}

	var sessionCookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatalf("expected session cookie")
	}
	if payload.CSRFToken == "" {
		t.Fatalf("expected csrf token")
	}
	return sessionCookie, payload.CSRFToken
}

func parseJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return payload
}
