package middlewares

import (
	"mime"
	"net/http"
	"net/url"
)

// ParamPolicy drives HPP. Repeated parameters collapse to their first
// value and names outside Allowed are dropped. Form applies only to
// urlencoded POST bodies; multipart uploads pass untouched.
type ParamPolicy struct {
	Query   bool
	Form    bool
	Allowed map[string]bool
}

func HPP(p ParamPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p.Query && r.URL.RawQuery != "" {
				q := r.URL.Query()
				p.scrub(q)
				r.URL.RawQuery = q.Encode()
			}
			if p.Form && r.Method == http.MethodPost && urlencoded(r) {
				if err := r.ParseForm(); err == nil {
					p.scrub(r.Form)
					p.scrub(r.PostForm)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (p ParamPolicy) scrub(v url.Values) {
	for k, vals := range v {
		switch {
		case !p.Allowed[k]:
			delete(v, k)
		case len(vals) > 1:
			v[k] = vals[:1]
		}
	}
}

func urlencoded(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}

// StorefrontParams allows the parameters the catalog, purchase and
// account handlers read.
func StorefrontParams() ParamPolicy {
	allowed := map[string]bool{}
	for _, k := range []string{
		// catalog queries
		"genre", "q", "limit", "days", "stream",
		// book and account ids
		"id", "book_id", "user_id",
		// publish form
		"title", "author", "description", "price",
		// account forms
		"email", "username", "password", "role", "refresh_token",
	} {
		allowed[k] = true
	}
	return ParamPolicy{Query: true, Form: true, Allowed: allowed}
}
