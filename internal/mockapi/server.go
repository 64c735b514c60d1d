// ABOUTME: Mock CloudStack-style management API backed by the SQLite store.
// ABOUTME: Serves /client/api?command=... with signed-request checks and JSON envelopes.

package mockapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/2389/consoleview/internal/api"
	"github.com/2389/consoleview/internal/store"
)

// Error codes used in "errorcode"
const (
	CodeUnauthorized  = 401
	CodeParamError    = 431
	CodeNotFound      = 431
	CodeInternalError = 530
	CodeUnsupported   = 432
)

// Error is returned by command handlers and rendered as an error envelope
type Error struct {
	Code int
	Text string
}

func (e *Error) Error() string { return e.Text }

func paramError(format string, args ...any) *Error {
	return &Error{Code: CodeParamError, Text: fmt.Sprintf(format, args...)}
}

// Server implements the management API commands the console uses
type Server struct {
	store     *store.Store
	apiKey    string
	secretKey string
	commands  map[string]*command
}

// Option configures a Server
type Option func(*Server)

// WithCredentials requires requests to be signed with the given key pair.
func WithCredentials(apiKey, secretKey string) Option {
	return func(s *Server) {
		s.apiKey = apiKey
		s.secretKey = secretKey
	}
}

// New creates a mock API server over s
func New(s *store.Store, opts ...Option) *Server {
	srv := &Server{store: s}
	for _, opt := range opts {
		opt(srv)
	}
	srv.commands = srv.commandTable()
	return srv
}

// RegisterRoutes mounts the API endpoint at /client/api.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/client/api", s.requireAuth(s.handle))
	r.Post("/client/api", s.requireAuth(s.handle))
}

// Handler returns a router serving only the API endpoint.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// Commands lists the supported command names
func (s *Server) Commands() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	return names
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeError(w, commandName(r), &Error{Code: CodeParamError, Text: "malformed request"})
			return
		}
		q := r.Form
		if q.Get("apikey") != s.apiKey || q.Get("signature") != api.Sign(q, s.secretKey) {
			writeError(w, commandName(r), &Error{Code: CodeUnauthorized, Text: "unable to verify user credentials and/or request signature"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, "", &Error{Code: CodeParamError, Text: "malformed request"})
		return
	}
	name := r.Form.Get("command")
	cmd, ok := s.lookup(name)
	if !ok {
		writeError(w, name, &Error{Code: CodeUnsupported, Text: fmt.Sprintf("The given command does not exist or it is not available for user: %s", name)})
		return
	}

	if missing := cmd.missing(r.Form); len(missing) > 0 {
		writeError(w, cmd.name, paramError("Unable to execute API command %s due to missing parameter %s", strings.ToLower(cmd.name), strings.Join(missing, ", ")))
		return
	}

	body, err := cmd.handle(r.Context(), r.Form)
	if err != nil {
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			zap.S().Errorf("mock api %s failed: %v", cmd.name, err)
			apiErr = &Error{Code: CodeInternalError, Text: err.Error()}
		}
		writeError(w, cmd.name, apiErr)
		return
	}

	if cmd.async {
		jobID, err := s.completeJob(cmd, body)
		if err != nil {
			writeError(w, cmd.name, &Error{Code: CodeInternalError, Text: err.Error()})
			return
		}
		body = map[string]any{"jobid": jobID}
	}
	writeJSON(w, http.StatusOK, envelopeKey(cmd.name), body)
}

// lookup matches command names case-insensitively
func (s *Server) lookup(name string) (*command, bool) {
	if cmd, ok := s.commands[name]; ok {
		return cmd, true
	}
	for k, cmd := range s.commands {
		if strings.EqualFold(k, name) {
			return cmd, true
		}
	}
	return nil, false
}

// completeJob records an async command as already finished
func (s *Server) completeJob(cmd *command, result map[string]any) (string, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	job := &store.AsyncJob{Command: cmd.name, Status: store.JobSucceeded, Result: string(data)}
	if id, ok := result["id"].(string); ok {
		job.InstanceID = id
		job.InstanceType = "Cluster"
	}
	if err := s.store.CreateJob(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

func (s *Server) event(typ, description, resourceID string) {
	if err := s.store.CreateEvent(&store.Event{
		Type:         typ,
		Description:  description,
		ResourceType: strings.SplitN(typ, ".", 2)[0],
		ResourceID:   resourceID,
	}); err != nil {
		zap.S().Warnf("failed to record event %s: %v", typ, err)
	}
}

func commandName(r *http.Request) string {
	return r.URL.Query().Get("command")
}

func envelopeKey(command string) string {
	if command == "" {
		return "errorresponse"
	}
	return strings.ToLower(command) + "response"
}

func writeJSON(w http.ResponseWriter, status int, key string, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{key: body})
}

func writeError(w http.ResponseWriter, command string, e *Error) {
	writeJSON(w, e.Code, envelopeKey(command), map[string]any{
		"uuidList":    []string{},
		"errorcode":   e.Code,
		"cserrorcode": 9999,
		"errortext":   e.Text,
	})
}

// csv splits a comma-separated parameter
func csv(q url.Values, name string) []string {
	var out []string
	for _, v := range strings.Split(q.Get(name), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
