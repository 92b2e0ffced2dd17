package management

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/CaioWing/apkharbor/internal/api/middleware"
	"github.com/CaioWing/apkharbor/internal/api/response"
	"github.com/CaioWing/apkharbor/internal/auth"
	"github.com/CaioWing/apkharbor/internal/domain"
	"github.com/CaioWing/apkharbor/internal/service"
)

type AuthHandler struct {
	jwtMgr        *auth.JWTManager
	auditSvc      *service.AuditService
	adminEmail    string
	adminPassHash string
}

// NewAuthHandler creates an auth handler for the single configured admin
// user. adminPassHash is a bcrypt hash.
func NewAuthHandler(jwtMgr *auth.JWTManager, auditSvc *service.AuditService, adminEmail, adminPassHash string) *AuthHandler {
	return &AuthHandler{
		jwtMgr:        jwtMgr,
		auditSvc:      auditSvc,
		adminEmail:    adminEmail,
		adminPassHash: adminPassHash,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email != h.adminEmail || !auth.CheckPassword(h.adminPassHash, req.Password) {
		h.audit(r, req.Email, "auth.login_failed")
		response.Error(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.Generate(h.adminEmail)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	h.audit(r, req.Email, "auth.login")

	response.JSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Refresh generates a new JWT token for an already authenticated user.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserIDKey).(string)
	if !ok || userID == "" {
		response.Error(w, http.StatusUnauthorized, "invalid token")
		return
	}

	token, expiresAt, err := h.jwtMgr.Generate(userID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	response.JSON(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Format("2006-01-02T15:04:05Z"),
	})
}

func (h *AuthHandler) audit(r *http.Request, email, action string) {
	if h.auditSvc == nil {
		return
	}
	h.auditSvc.Log(context.WithoutCancel(r.Context()), &domain.AuditEntry{
		Actor:     email,
		ActorType: "management",
		Action:    action,
		Resource:  "auth",
		IPAddress: r.RemoteAddr,
	})
}
