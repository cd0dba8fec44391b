package app

import "net/http"

// DomainError carries the HTTP status and user-facing message for a failed
// action. Validation and not-found outcomes ride on HTTP 200 with an error
// field; only authentication, authorization, and unknown actions change the
// status code.
type DomainError struct {
	Status  int
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func errValidation(message string) *DomainError {
	return &DomainError{Status: http.StatusOK, Message: message}
}

// errNotFound is the collapsed not-found-or-denied outcome. Handlers must
// return this exact value for both causes so responses stay byte-identical.
func errNotFound() *DomainError {
	return &DomainError{Status: http.StatusOK, Message: "Not found"}
}

func errUnauthorized() *DomainError {
	return &DomainError{Status: http.StatusUnauthorized, Message: "Authentication required"}
}

func errForbidden() *DomainError {
	return &DomainError{Status: http.StatusForbidden, Message: "Not allowed"}
}

func errCSRF() *DomainError {
	return &DomainError{Status: http.StatusForbidden, Message: "Invalid security token"}
}

func errUnknownAction() *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Message: "Unknown action"}
}

// errUpstream hides the data layer's status and body from the caller.
func errUpstream() *DomainError {
	return &DomainError{Status: http.StatusOK, Message: "Something went wrong. Please try again."}
}
