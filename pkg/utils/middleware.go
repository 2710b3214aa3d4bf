package utils

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// ApplyMiddleware wraps handler so that the first middleware listed is the
// outermost one and sees the request first.
func ApplyMiddleware(handler http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
