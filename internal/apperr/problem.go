package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`    // e.g. "required", "invalid_type", "decode"
	Message string `json:"message"` // human readable
}

type Problem struct {
	Type        string       `json:"type,omitempty"`   // RFC7807 type URI
	Title       string       `json:"title"`            // short summary
	Status      int          `json:"status"`           // HTTP status code
	Detail      string       `json:"detail,omitempty"` // human details
	Instance    string       `json:"instance,omitempty"`
	RequestID   string       `json:"request_id,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	Retryable   bool         `json:"retryable,omitempty"`
}

// Fixed destinations for authorization denials.
const (
	LoginPath         = "/login"
	NotAuthorizedPath = "/not-authorized"
)

func Write(w http.ResponseWriter, r *http.Request, p Problem) {
	if p.Status == 0 {
		p.Status = http.StatusInternalServerError
	}
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}
	if p.RequestID == "" && r != nil {
		if rid := r.Header.Get("X-Request-ID"); rid != "" {
			p.RequestID = rid
		}
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// Convenience: fast write with just status+title+detail
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	Write(w, r, Problem{Status: status, Title: title, Detail: detail})
}

// ProblemFor maps err onto a Problem by kind. Untagged errors become a bare 500
// so internal details never leak.
func ProblemFor(err error) Problem {
	var e *Error
	if !errors.As(err, &e) {
		if p, ok := FromPG(err); ok {
			return p
		}
		return Problem{Status: http.StatusInternalServerError, Title: "Internal error"}
	}

	p := Problem{Kind: e.Kind.String(), Detail: e.Error()}
	switch e.Kind {
	case KindValidation:
		p.Status = http.StatusBadRequest
		p.Title = "Bad Request"
		if e.Field != "" {
			p.FieldErrors = []FieldError{{Field: e.Field, Code: "invalid", Message: e.Msg}}
		}
	case KindTransform:
		p.Status = http.StatusUnprocessableEntity
		p.Title = "Unprocessable Entity"
	case KindStore:
		p.Status = http.StatusServiceUnavailable
		p.Title = "Storage unavailable"
		p.Retryable = true
	case KindNotFound:
		p.Status = http.StatusNotFound
		p.Title = "Not Found"
	case KindUnauthenticated:
		p.Status = http.StatusUnauthorized
		p.Title = "Unauthorized"
	case KindWrongRole:
		p.Status = http.StatusForbidden
		p.Title = "Forbidden"
	default:
		p.Status = http.StatusInternalServerError
		p.Title = "Internal error"
		p.Detail = ""
	}
	return p
}

// WriteError writes err as a problem document. Authorization kinds are routed
// to their fixed destination instead: browsers get a 303, API clients get the
// status code with a Location header.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch KindOf(err) {
	case KindUnauthenticated:
		Redirect(w, r, LoginPath, http.StatusUnauthorized)
		return
	case KindWrongRole:
		Redirect(w, r, NotAuthorizedPath, http.StatusForbidden)
		return
	}
	Write(w, r, ProblemFor(err))
}

// Redirect sends the caller to dest. apiStatus is used for non-HTML clients.
func Redirect(w http.ResponseWriter, r *http.Request, dest string, apiStatus int) {
	if wantsHTML(r) {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}
	w.Header().Set("Location", dest)
	Write(w, r, Problem{Status: apiStatus, Title: http.StatusText(apiStatus), Instance: r.URL.Path})
}

func wantsHTML(r *http.Request) bool {
	return r != nil && strings.Contains(r.Header.Get("Accept"), "text/html")
}
