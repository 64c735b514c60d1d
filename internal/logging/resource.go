// ABOUTME: Resource detection for request logging.
// ABOUTME: Determines which console resource or API command a request belongs to.

package logging

import (
	"net/http"
	"strings"
)

// ResourceFromRequest names the console resource a request concerns.
// Management API calls are attributed to their command.
func ResourceFromRequest(r *http.Request) string {
	if r.URL.Path == "/client/api" {
		if cmd := r.URL.Query().Get("command"); cmd != "" {
			return "api:" + cmd
		}
		return "api"
	}
	return ResourceFromPath(r.URL.Path)
}

// ResourceFromPath extracts the resource from /admin/{resource}/... and
// /api/views/{resource}/... paths.
func ResourceFromPath(path string) string {
	for _, prefix := range []string{"/admin/", "/api/views/"} {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := strings.TrimPrefix(path, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" {
			return "dashboard"
		}
		return name
	}
	if path == "/admin" {
		return "dashboard"
	}
	return "unknown"
}
