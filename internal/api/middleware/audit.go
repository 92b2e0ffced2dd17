package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
)

var apiPrefixes = []string{"/api/v1/management/", "/api/v1/ci/"}

// AuditLog records the requests no service audits on its own: token
// refreshes, and publish or assign requests rejected before a run was
// started. Runs and logins are audited where they happen.
func AuditLog(auditSvc *service.AuditService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			if r.Method != http.MethodPost {
				return
			}
			action, resource, resourceID := classifyRequest(r.URL.Path, rw.status)
			if action == "" {
				return
			}

			actor, actorType := Actor(r.Context())
			auditSvc.Log(context.WithoutCancel(r.Context()), &domain.AuditEntry{
				Actor:      actor,
				ActorType:  actorType,
				Action:     action,
				Resource:   resource,
				ResourceID: resourceID,
				IPAddress:  r.RemoteAddr,
				Details:    map[string]any{"path": r.URL.Path, "status": rw.status},
			})
		})
	}
}

func classifyRequest(path string, status int) (action, resource, resourceID string) {
	p := path
	for _, prefix := range apiPrefixes {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			p = rest
			break
		}
	}

	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case p == "auth/refresh" && status < 400:
		return "auth.refresh", "auth", ""
	case status != http.StatusBadRequest:
		return "", "", ""
	case p == "publish":
		return "publish.rejected", "run", ""
	case len(parts) == 3 && parts[0] == "tracks" && parts[2] == "assign":
		return "track.assign.rejected", "track", parts[1]
	}
	return "", "", ""
}
