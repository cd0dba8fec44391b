package app

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"reviewport/api/internal/authpw"
	"reviewport/api/internal/gateway"
	"reviewport/api/internal/session"
)

const sessionCookieName = "reviewport_session"
const csrfHeaderName = "X-CSRF-Token"

// HTTPServer exposes the portal over a single action-dispatching endpoint.
type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger.With(zap.String("component", "http"))}
}

// Handler builds the full router: portal endpoint, health probes, metrics.
func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware())
	r.Use(s.requestLogger)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)
	r.HandleFunc("/api/portal", s.handlePortal)
	return r
}

func (s *HTTPServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		writer := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		setCORSHeaders(writer.Header(), s.corsOrigin)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("action", r.URL.Query().Get("action")),
			zap.Int("status", writer.Status()),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]any{"redis": "ok"}
	if err := s.service.Sessions().Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["redis"] = err.Error()
	}
	writeJSON(w, status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
}

// handlePortal runs the two gates, then dispatches to the action handler. Gate
// failures never reach handler logic.
func (s *HTTPServer) handlePortal(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	action := r.URL.Query().Get("action")
	sessionID := cookieValue(r, sessionCookieName)

	var sess session.Data
	authenticated := false
	if sessionID != "" {
		if data, err := s.service.Sessions().Get(r.Context(), sessionID); err == nil {
			sess = data
			authenticated = true
		}
	}

	if err := guard(action, r.Method, authenticated, sess.CSRFToken, r.Header.Get(csrfHeaderName)); err != nil {
		writeError(w, err.Status, err.Message)
		return
	}

	if authenticated {
		if err := s.service.Sessions().Touch(r.Context(), sessionID); err != nil {
			s.logger.Warn("touch session", zap.Error(err))
		}
	}

	switch action {
	case "client_login":
		s.handleLogin(w, r)
	case "client_logout":
		s.service.Logout(r.Context(), sessionID)
		clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case "client_session":
		s.handleSession(w, authenticated, sess)
	case "client_forgot_password":
		s.handleForgotPassword(w, r)
	case "client_reset_password":
		s.handleResetPassword(w, r)
	case "portal_settings":
		payload, err := s.service.PortalSettings(r.Context())
		s.respond(w, payload, err)
	case "client_dashboard":
		payload, err := s.service.Dashboard(r.Context(), sess.Actor)
		s.respond(w, payload, err)
	case "client_projects":
		payload, err := s.service.Projects(r.Context(), sess.Actor,
			r.URL.Query().Get("status"), queryInt(r, "page", 1), queryInt(r, "per_page", defaultPerPage))
		s.respond(w, payload, err)
	case "client_project_detail":
		payload, err := s.service.ProjectDetail(r.Context(), sess.Actor,
			r.URL.Query().Get("project_id"), r.URL.Query().Get("kind"),
			queryInt(r, "page", 1), queryInt(r, "per_page", defaultPerPage))
		s.respond(w, payload, err)
	case "client_comments":
		payload, err := s.service.Comments(r.Context(), sess.Actor,
			r.URL.Query().Get("project_id"), r.URL.Query().Get("file_id"))
		s.respond(w, payload, err)
	case "client_notifications":
		payload, err := s.service.Notifications(r.Context(), sess.Actor)
		s.respond(w, payload, err)
	case "client_search":
		payload, err := s.service.Search(r.Context(), sess.Actor,
			r.URL.Query().Get("q"), queryInt(r, "limit", 20))
		s.respond(w, payload, err)
	case "client_download_file":
		s.handleDownload(w, r, sess)
	case "client_approve_file":
		var body struct {
			FileID string `json:"file_id"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		payload, err := s.service.ApproveFile(r.Context(), sess.Actor, body.FileID)
		s.respond(w, payload, err)
	case "client_request_revision":
		var body struct {
			FileID  string `json:"file_id"`
			Comment string `json:"comment"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		payload, err := s.service.RequestRevision(r.Context(), sess.Actor, body.FileID, body.Comment)
		s.respond(w, payload, err)
	case "client_add_comment":
		var body struct {
			ProjectID string  `json:"project_id"`
			Text      string  `json:"text"`
			FileID    *string `json:"file_id"`
			ParentID  *string `json:"parent_id"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		created, err := s.service.AddComment(r.Context(), sess.Actor, body.ProjectID, body.Text, body.FileID, body.ParentID)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "comment": created})
	case "client_mark_all_read":
		s.respondOK(w, s.service.MarkAllRead(r.Context(), sess.Actor))
	case "client_mark_notification_read":
		var body struct {
			NotificationID string `json:"notification_id"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		s.respondOK(w, s.service.MarkNotificationRead(r.Context(), sess.Actor, body.NotificationID))
	case "client_update_profile":
		var body struct {
			Name            string `json:"name"`
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if !s.decode(w, r, &body) {
			return
		}
		s.respondOK(w, s.service.UpdateProfile(r.Context(), sess.Actor, body.Name, body.CurrentPassword, body.NewPassword))
	default:
		// guard already rejected unknown actions
		writeError(w, http.StatusBadRequest, "Unknown action")
	}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	result, err := s.service.Login(r.Context(), body.Email, body.Password, clientAddr(r))
	if err != nil {
		// Pad every failure path so timing does not separate unknown emails,
		// wrong passwords, and lockouts.
		authpw.HoldUntil(started, s.service.cfg.LoginMinDelay)
		s.respond(w, nil, err)
		return
	}

	setSessionCookie(w, result.SessionID, s.service.cfg.SessionTTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"csrf_token": result.CSRFToken,
		"client": map[string]any{
			"id":      result.Client.ID,
			"name":    result.Client.Name,
			"email":   result.Client.Email,
			"company": result.Client.Company,
			"role":    result.Client.Role,
		},
	})
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, authenticated bool, sess session.Data) {
	if !authenticated {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"csrf_token":    sess.CSRFToken,
		"client": map[string]any{
			"id":      sess.Actor.ID,
			"name":    sess.Actor.Name,
			"email":   sess.Actor.Email,
			"company": sess.Actor.Company,
			"role":    sess.Actor.Role,
		},
	})
}

func (s *HTTPServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.service.ForgotPassword(r.Context(), body.Email); err != nil {
		s.respond(w, nil, err)
		return
	}
	// Identical response whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	s.respondOK(w, s.service.ResetPassword(r.Context(), body.Token, body.Password))
}

func (s *HTTPServer) handleDownload(w http.ResponseWriter, r *http.Request, sess session.Data) {
	url, err := s.service.DownloadURL(r.Context(), sess.Actor, r.URL.Query().Get("file_id"))
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// --- Helpers --------------------------------------------------------------

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if r.Body == nil {
		return true
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, http.StatusOK, "Invalid request body")
		return false
	}
	return true
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) respondOK(w http.ResponseWriter, err error) {
	if err != nil {
		status, message := mapError(err)
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func mapError(err error) (int, string) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Message
	}
	if errors.Is(err, gateway.ErrNotFound) {
		collapsed := errNotFound()
		return collapsed.Status, collapsed.Message
	}
	upstream := errUpstream()
	return upstream.Status, upstream.Message
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-CSRF-Token, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
}

func setSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func clientAddr(r *http.Request) string {
	// chi's RealIP middleware already resolved forwarding headers, which can
	// leave a bare IP (no port) here, including IPv6.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
