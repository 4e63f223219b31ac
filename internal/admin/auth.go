package admin

import (
	"encoding/json"
	"net/http"

	"github.com/oddmeter/camhub/internal/auth"
)

// Login and Logout are the minimal session/cookie authentication surface
// §6.2 calls for ("external collaborator, minimally implemented") — issue
// an access token, track it for lockout/eviction, nothing more.

const accessCookieName = "camhub_access"

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	locked, err := h.Service.Sessions.CheckLockout(r.Context(), req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if locked {
		respondError(w, http.StatusTooManyRequests, "account temporarily locked")
		return
	}

	u, err := h.Service.Users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		h.Service.Sessions.RecordFailedAttempt(r.Context(), req.Username)
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ok, err := auth.CheckPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		h.Service.Sessions.RecordFailedAttempt(r.Context(), req.Username)
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	h.Service.Sessions.ClearFailedAttempts(r.Context(), req.Username)

	access, err := h.Service.Tokens.GenerateAccessToken(u.ID, u.IsAdmin)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token generation failed")
		return
	}
	claims, err := h.Service.Tokens.ValidateToken(access)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "token generation failed")
		return
	}

	if err := h.Service.Sessions.CreateSession(r.Context(), u.ID, claims.ID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    access,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
	respondJSON(w, http.StatusOK, map[string]any{"user_id": u.ID, "is_admin": u.IsAdmin})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if ok {
		h.Service.Sessions.RevokeAllUserSessions(r.Context(), ac.UserID)
	}
	http.SetCookie(w, &http.Cookie{Name: accessCookieName, Value: "", Path: "/", MaxAge: -1})
	respondJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
