package middlewares

import (
	"net/http"
	"time"
)

// rtWriter stamps X-Response-Time before the first byte goes out and
// remembers the status for access logs. It forwards Flush so streamed
// ingestion progress is not buffered.
type rtWriter struct {
	http.ResponseWriter
	start       time.Time
	wroteHeader bool
	status      int
	bytes       int64
}

func (w *rtWriter) stamp() {
	if !w.wroteHeader {
		w.Header().Set("X-Response-Time", time.Since(w.start).String())
		w.wroteHeader = true
	}
}

func (w *rtWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
	}
	w.stamp()
	w.ResponseWriter.WriteHeader(code)
}

func (w *rtWriter) Write(b []byte) (int, error) {
	w.stamp()
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *rtWriter) Flush() {
	w.stamp()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *rtWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func wrapRT(w http.ResponseWriter) *rtWriter {
	if rw, ok := w.(*rtWriter); ok {
		return rw
	}
	return &rtWriter{ResponseWriter: w, start: time.Now(), status: http.StatusOK}
}

func ResponseTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrapRT(w)
		next.ServeHTTP(rw, r)

		// nothing written (204/HEAD)
		if !rw.wroteHeader {
			rw.Header().Set("X-Response-Time", time.Since(rw.start).String())
		}
	})
}
