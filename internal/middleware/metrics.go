package middleware

import (
	"net/http"
	"strconv"
)

// Metrics counts served requests. The observe callback receives the request
// method and the response status class ("2xx", "4xx", ...).
func Metrics(observe func(method, status string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)
			observe(r.Method, statusClass(rw.status))
		})
	}
}

func statusClass(code int) string {
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}
