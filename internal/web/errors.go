package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is logged with its technical detail and request ID, mapped
// through core.MapError, and rendered as an HTMX fragment, JSON or plain
// text depending on the request. Import failures also carry remediation
// hints and, when one exists, the partial report.

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/ingest"
)

// ErrorResponse is the JSON body of an API error.
type ErrorResponse struct {
	Error    string         `json:"error"`
	Message  string         `json:"message"`
	Action   string         `json:"action,omitempty"`
	Code     string         `json:"code"`
	Hints    []string       `json:"hints,omitempty"`
	ImportID string         `json:"importId,omitempty"`
	Report   *ingest.Report `json:"report,omitempty"`
}

var errNoFile = errors.New("no file provided")

var rateLimitMessage = core.MapError(errors.New("rate limit exceeded"))

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case ingest.KindName(err) != "":
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnknownDialect), errors.Is(err, errNoFile):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrFileTooLarge), errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the user-facing message. out may be nil.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, out *core.Outcome) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}

	var hints []string
	if out != nil {
		hints = out.Hints
	} else {
		hints = ingest.Remediation(err)
	}

	switch {
	case isHTMX(r):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := ErrorAlert(userMsg, hints).Render(r.Context(), w); err != nil {
			slog.Error("render error alert", "error", err)
		}
	case wantsJSON(r):
		resp := errorResponse(userMsg, hints)
		if out != nil {
			resp.Report = out.Report
			if out.Run != nil {
				resp.ImportID = out.Run.ID
			}
		}
		writeJSON(w, status, resp)
	default:
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", status)
	}
}

// respondErrorJSON writes a JSON error without logging, for middleware.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, hints []string, status int) {
	writeJSON(w, status, errorResponse(msg, hints))
}

func errorResponse(msg core.UserMessage, hints []string) ErrorResponse {
	return ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
		Hints:   hints,
	}
}

// isHTMX checks if the request is an HTMX request.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// wantsJSON checks if the client prefers a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
