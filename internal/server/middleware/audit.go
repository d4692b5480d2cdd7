package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"identity-session-plane/internal/audit"
	"identity-session-plane/internal/audit/domain"
	auditrepo "identity-session-plane/internal/audit/repository"
)

// Audit returns middleware that records an audit log entry after each request.
// skipPaths is the set of paths to not audit (e.g. /healthz). Writes are
// best-effort: failures are logged and do not fail the request. Only requests
// with an identified caller are audited.
func Audit(repo auditrepo.Repository, skipPaths map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if repo == nil || skipPaths[c.Request.URL.Path] {
			return
		}
		userID, _ := GetUserID(c.Request.Context())
		if userID == "" {
			userID = c.GetString("userID")
		}
		if userID == "" {
			return
		}
		ar := audit.ParseRoute(c.Request.Method, c.Request.URL.Path)
		entry := &domain.AuditLog{
			ID:        uuid.New().String(),
			UserID:    userID,
			Action:    ar.Action,
			Resource:  ar.Resource,
			IP:        c.ClientIP(),
			Metadata:  "",
			CreatedAt: time.Now().UTC(),
		}
		if err := repo.Create(c.Request.Context(), entry); err != nil {
			log.Printf("audit: failed to create audit log: %v", err)
		}
	}
}
