// ABOUTME: HTTP request logging middleware for the console and the mock management API.
// ABOUTME: Attributes each request to a resource and persists it without blocking the response.

package logging

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/2389/consoleview/internal/auth"
	"github.com/2389/consoleview/internal/store"
)

const maxBodySize = 10 * 1024

// Query parameters that carry credentials and never reach the request log.
var secretParams = []string{"apikey", "signature", "sessionkey"}

// RequestLogger persists request logs
type RequestLogger interface {
	LogRequest(log *store.RequestLog) error
}

// recorder tees up to maxBodySize bytes of the response and remembers the status.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
		rec.ResponseWriter.WriteHeader(code)
	}
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if room := maxBodySize - rec.body.Len(); room > 0 {
		rec.body.Write(b[:min(room, len(b))])
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *recorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rec *recorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}

func (rec *recorder) statusCode() int {
	if rec.status == 0 {
		return http.StatusOK
	}
	return rec.status
}

// Middleware records every request except health checks and the log page itself.
func Middleware(s RequestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipLogging(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			requestBody := captureRequestBody(r)
			rec := &recorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r)

			entry := &store.RequestLog{
				Resource:     ResourceFromRequest(r),
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rec.statusCode(),
				DurationMs:   int(time.Since(start).Milliseconds()),
				UserID:       auth.UserFromContext(r.Context()),
				IPAddress:    clientIP(r),
				UserAgent:    r.Header.Get("User-Agent"),
				RequestBody:  requestBody,
				ResponseBody: rec.body.String(),
			}
			go func() {
				if err := s.LogRequest(entry); err != nil {
					zap.L().Warn("store request log", zap.String("path", entry.Path), zap.Error(err))
				}
			}()
		})
	}
}

func skipLogging(path string) bool {
	return path == "/healthz" || strings.HasPrefix(path, "/admin/logs")
}

// captureRequestBody returns what the log keeps of a request's input. Management
// API calls carry their parameters in the query string, so that is logged instead
// of the body, with credentials removed.
func captureRequestBody(r *http.Request) string {
	if r.URL.Path == "/client/api" && r.Method == http.MethodGet {
		return RedactQuery(r.URL.Query())
	}
	if r.Body == nil {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(b), r.Body))
	return string(b)
}

// RedactQuery encodes q with credential parameters dropped.
func RedactQuery(q url.Values) string {
	clean := url.Values{}
	for k, v := range q {
		if isSecretParam(k) {
			continue
		}
		clean[k] = v
	}
	return clean.Encode()
}

func isSecretParam(name string) bool {
	for _, p := range secretParams {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
