package apperr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Map well-known constraint names to fields.
var constraintField = map[string]string{
	"documents_pkey":    "id",
	"users_email_key":   "email",
	"users_role_check":  "role",
	"users_email_check": "email",
}

func fieldFromConstraint(c string) string {
	if f, ok := constraintField[c]; ok {
		return f
	}
	return ""
}

// FromPG maps a *pgconn.PgError to a Problem. Returns (Problem, true) if mapped.
func FromPG(err error) (Problem, bool) {
	var pg *pgconn.PgError
	if !errors.As(err, &pg) {
		return Problem{}, false
	}

	p := Problem{
		Title:  "Database error",
		Status: http.StatusInternalServerError,
		Kind:   KindStore.String(),
	}

	field := fieldFromConstraint(pg.ConstraintName)
	if field == "" {
		field = pg.ColumnName
	}
	if field == "" {
		field = "field"
	}

	switch pg.Code {
	case "23505": // unique_violation
		p.Status = http.StatusConflict
		p.Title = "Conflict"
		p.Kind = KindValidation.String()
		p.FieldErrors = []FieldError{{Field: field, Code: "unique", Message: "value already exists"}}
	case "23502": // not_null_violation
		p.Status = http.StatusBadRequest
		p.Title = "Bad Request"
		p.Kind = KindValidation.String()
		p.FieldErrors = []FieldError{{Field: field, Code: "not_null", Message: "required field is missing"}}
	case "23514": // check_violation
		p.Status = http.StatusUnprocessableEntity
		p.Title = "Unprocessable Entity"
		p.Kind = KindValidation.String()
		p.FieldErrors = []FieldError{{Field: field, Code: "check", Message: "constraint failed"}}
	case "22P02": // invalid_text_representation (bad uuid in path)
		p.Status = http.StatusBadRequest
		p.Title = "Bad Request"
		p.Kind = KindValidation.String()
		if field == "field" {
			field = "id"
		}
		p.FieldErrors = []FieldError{{Field: field, Code: "invalid", Message: "invalid format"}}
	case "40001", "40P01": // serialization_failure, deadlock_detected
		p.Status = http.StatusConflict
		p.Title = "Conflict"
		p.Detail = "transaction conflict, please retry"
		p.Retryable = true
	default:
		if strings.HasPrefix(pg.Code, "08") { // connection exceptions
			p.Status = http.StatusServiceUnavailable
			p.Title = "Storage unavailable"
			p.Retryable = true
		}
	}

	return p, true
}

// HandleDBError maps err to a Problem and writes it. Returns true if handled.
func HandleDBError(w http.ResponseWriter, r *http.Request, err error, fallbackTitle string) bool {
	if err == nil {
		return false
	}
	if p, ok := FromPG(err); ok {
		Write(w, r, p)
		return true
	}
	Write(w, r, Problem{Status: http.StatusInternalServerError, Title: fallbackTitle})
	return true
}
