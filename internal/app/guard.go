package app

import (
	"net/http"

	"reviewport/api/internal/auth"
)

// actionSpec declares how the router treats one portal action.
type actionSpec struct {
	method   string
	public   bool
	mutating bool
}

// actions is the complete dispatch table. Anything not listed is an unknown
// action; anything not public requires a valid session; anything mutating
// additionally requires the session's anti-forgery token.
var actions = map[string]actionSpec{
	"client_login":           {method: http.MethodPost, public: true, mutating: true},
	"client_logout":          {method: http.MethodPost, public: true, mutating: true},
	"client_session":         {method: http.MethodGet, public: true},
	"client_forgot_password": {method: http.MethodPost, public: true, mutating: true},
	"client_reset_password":  {method: http.MethodPost, public: true, mutating: true},
	"portal_settings":        {method: http.MethodGet, public: true},

	"client_dashboard":             {method: http.MethodGet},
	"client_projects":              {method: http.MethodGet},
	"client_project_detail":        {method: http.MethodGet},
	"client_comments":              {method: http.MethodGet},
	"client_notifications":         {method: http.MethodGet},
	"client_search":                {method: http.MethodGet},
	"client_download_file":         {method: http.MethodGet},
	"client_approve_file":          {method: http.MethodPost, mutating: true},
	"client_request_revision":      {method: http.MethodPost, mutating: true},
	"client_add_comment":           {method: http.MethodPost, mutating: true},
	"client_mark_all_read":         {method: http.MethodPost, mutating: true},
	"client_mark_notification_read": {method: http.MethodPost, mutating: true},
	"client_update_profile":        {method: http.MethodPost, mutating: true},
}

// guard evaluates the authentication and anti-forgery gates for one request.
// It is a pure function of its inputs; a non-nil result means the handler must
// not run. CSRF only applies to mutating requests on authenticated actions —
// public endpoints establish or tear down the session itself.
func guard(action, method string, authenticated bool, sessionCSRF, suppliedCSRF string) *DomainError {
	spec, ok := actions[action]
	if !ok {
		return errUnknownAction()
	}
	if method != spec.method {
		return &DomainError{Status: http.StatusMethodNotAllowed, Message: "Method not allowed"}
	}
	if spec.public {
		return nil
	}
	if !authenticated {
		return errUnauthorized()
	}
	if spec.mutating && !auth.TokensMatch(sessionCSRF, suppliedCSRF) {
		return errCSRF()
	}
	return nil
}
