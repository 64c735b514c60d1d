// ABOUTME: Tests for the request logging middleware.
// ABOUTME: Covers body capture limits, status capture, skipped paths, and credential redaction.

package logging

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/2389/consoleview/internal/store"
)

type fakeLogger struct {
	logs chan *store.RequestLog
}

func newFakeLogger() *fakeLogger {
	return &fakeLogger{logs: make(chan *store.RequestLog, 10)}
}

func (f *fakeLogger) LogRequest(log *store.RequestLog) error {
	f.logs <- log
	return nil
}

func (f *fakeLogger) next(t *testing.T) *store.RequestLog {
	t.Helper()
	select {
	case log := <-f.logs:
		return log
	case <-time.After(time.Second):
		t.Fatal("expected request to be logged")
		return nil
	}
}

func TestRecorderCapsCapturedBody(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   int
	}{
		{"small", []string{"Hello"}, 5},
		{"at limit", []string{strings.Repeat("x", maxBodySize)}, maxBodySize},
		{"over limit", []string{strings.Repeat("x", maxBodySize+1000)}, maxBodySize},
		{"chunked over limit", []string{strings.Repeat("a", maxBodySize/2), strings.Repeat("b", maxBodySize)}, maxBodySize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			rec := &recorder{ResponseWriter: rr}
			total := 0
			for _, c := range tt.chunks {
				n, err := rec.Write([]byte(c))
				if err != nil || n != len(c) {
					t.Fatalf("Write() = %d, %v", n, err)
				}
				total += n
			}
			if rec.body.Len() != tt.want {
				t.Errorf("captured %d bytes, want %d", rec.body.Len(), tt.want)
			}
			if rr.Body.Len() != total {
				t.Errorf("client received %d bytes, want %d", rr.Body.Len(), total)
			}
		})
	}
}

func TestRecorderStatus(t *testing.T) {
	rec := &recorder{ResponseWriter: httptest.NewRecorder()}
	if rec.statusCode() != http.StatusOK {
		t.Errorf("default status = %d", rec.statusCode())
	}
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusTeapot)
	if rec.statusCode() != http.StatusCreated {
		t.Errorf("status = %d, want first written", rec.statusCode())
	}
}

func TestMiddlewareRecordsResource(t *testing.T) {
	s := newFakeLogger()
	handler := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	}))

	req := httptest.NewRequest("POST", "/admin/cluster/c1/actions/2", strings.NewReader("confirmed=true"))
	req.Header.Set("X-Forwarded-For", "10.0.0.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	log := s.next(t)
	if log.Resource != "cluster" || log.StatusCode != http.StatusSeeOther || log.RequestBody != "confirmed=true" {
		t.Errorf("unexpected log %+v", log)
	}
	if log.IPAddress != "10.0.0.7" {
		t.Errorf("IPAddress = %q", log.IPAddress)
	}
}

func TestMiddlewareRestoresRequestBody(t *testing.T) {
	body := strings.Repeat("y", maxBodySize+100)
	var read string
	handler := Middleware(newFakeLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		read = string(b)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/views/cluster/c1/actions/0", strings.NewReader(body)))

	if read != body {
		t.Errorf("handler read %d bytes, want %d", len(read), len(body))
	}
}

func TestMiddlewareRedactsAPICredentials(t *testing.T) {
	s := newFakeLogger()
	handler := Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	q := url.Values{
		"command":   {"updateCluster"},
		"id":        {"c1"},
		"apiKey":    {"k"},
		"signature": {"sig"},
	}
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/client/api?"+q.Encode(), nil))

	log := s.next(t)
	if log.Resource != "api:updateCluster" {
		t.Errorf("Resource = %q", log.Resource)
	}
	if strings.Contains(log.RequestBody, "sig") || strings.Contains(strings.ToLower(log.RequestBody), "apikey") {
		t.Errorf("credentials leaked into log: %q", log.RequestBody)
	}
	if !strings.Contains(log.RequestBody, "id=c1") {
		t.Errorf("RequestBody = %q", log.RequestBody)
	}
}

func TestMiddlewareSkippedPaths(t *testing.T) {
	for _, path := range []string{"/healthz", "/admin/logs", "/admin/logs?limit=5"} {
		t.Run(path, func(t *testing.T) {
			s := newFakeLogger()
			rr := httptest.NewRecorder()
			Middleware(s)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rr, httptest.NewRequest("GET", path, nil))

			if rr.Code != http.StatusOK {
				t.Errorf("status = %d", rr.Code)
			}
			select {
			case log := <-s.logs:
				t.Errorf("unexpected log for %s", log.Path)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}
