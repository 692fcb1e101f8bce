// Package httpapi holds the JSON response helpers shared by domain handlers.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 style error payload.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const (
	ProblemTypeValidation   = "https://alltowndelivery.com/problems/validation-error"
	ProblemTypeNotFound     = "https://alltowndelivery.com/problems/not-found"
	ProblemTypeConflict     = "https://alltowndelivery.com/problems/conflict"
	ProblemTypeForbidden    = "https://alltowndelivery.com/problems/forbidden"
	ProblemTypeUnavailable  = "https://alltowndelivery.com/problems/unavailable"
	ProblemTypeInternal     = "https://alltowndelivery.com/problems/internal-error"
	ProblemTypeUnauthorized = "https://alltowndelivery.com/problems/unauthorized"
)

// WriteJSON serializes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteProblem serializes a Problem with its status code.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Validation is a 400 problem.
func Validation(detail string) Problem {
	return Problem{Type: ProblemTypeValidation, Title: "Validation failed", Status: http.StatusBadRequest, Detail: detail}
}

// NotFound is a 404 problem.
func NotFound(detail string) Problem {
	return Problem{Type: ProblemTypeNotFound, Title: "Not found", Status: http.StatusNotFound, Detail: detail}
}

// Conflict is a 409 problem.
func Conflict(detail string) Problem {
	return Problem{Type: ProblemTypeConflict, Title: "Conflict", Status: http.StatusConflict, Detail: detail}
}

// Forbidden is a 403 problem.
func Forbidden(detail string) Problem {
	return Problem{Type: ProblemTypeForbidden, Title: "Forbidden", Status: http.StatusForbidden, Detail: detail}
}

// Unavailable is a 503 problem with a generic retry-later message.
func Unavailable() Problem {
	return Problem{Type: ProblemTypeUnavailable, Title: "Service temporarily unavailable", Status: http.StatusServiceUnavailable, Detail: "please retry shortly"}
}

// Internal is a 500 problem.
func Internal() Problem {
	return Problem{Type: ProblemTypeInternal, Title: "Internal error", Status: http.StatusInternalServerError}
}

// Unauthorized is a 401 problem.
func Unauthorized() Problem {
	return Problem{Type: ProblemTypeUnauthorized, Title: "Authentication required", Status: http.StatusUnauthorized}
}
