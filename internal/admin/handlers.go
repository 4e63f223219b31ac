package admin

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oddmeter/camhub/internal/audit"
	"github.com/oddmeter/camhub/internal/data"
	"github.com/oddmeter/camhub/internal/middleware"
)

// Handler wires Service onto the chi-routed administrative HTTP surface
// in §6.2. It holds no state of its own beyond Service.
type Handler struct {
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Service: svc}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func statusForErr(err error) int {
	switch {
	case errors.Is(err, data.ErrRecordNotFound), errors.Is(err, data.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidSetting), errors.Is(err, audit.ErrRetentionTooShort):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAdmin):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func authContext(r *http.Request) (*middleware.AuthContext, bool) {
	return middleware.GetAuthContext(r.Context())
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// GET /api/ — caller's user plus accessible-cameras list.
func (h *Handler) Whoami(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cams, err := h.Service.ListAccessibleCameras(r.Context(), ac.UserID)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  ac.UserID,
		"is_admin": ac.IsAdmin,
		"cameras":  cams,
	})
}

// GET /api/cameras
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	cams, err := h.Service.ListAccessibleCameras(r.Context(), ac.UserID)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cams)
}

// POST /api/cameras (admin)
func (h *Handler) CreateCamera(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	var req struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cam, err := h.Service.CreateCamera(r.Context(), ac.UserID, req.Name, req.Address)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, cam)
}

// DELETE /api/cameras/{id} (admin)
func (h *Handler) DeleteCamera(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	if err := h.Service.DeleteCamera(r.Context(), ac.UserID, id); err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// POST /api/cameras/{id}/restart (admin)
func (h *Handler) RestartCamera(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	if err := h.Service.RestartCamera(r.Context(), ac.UserID, id); err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
}

// GET /api/cameras/{id}/videos — caller must be entitled (admin or can_view).
func (h *Handler) ListVideos(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	if !ac.IsAdmin {
		can, err := h.Service.Permissions.CanControl(r.Context(), id, ac.UserID)
		if err != nil {
			respondError(w, statusForErr(err), err.Error())
			return
		}
		if !can {
			ids, err := h.Service.Permissions.EntitledCameraIDs(r.Context(), ac.UserID)
			if err != nil {
				respondError(w, statusForErr(err), err.Error())
				return
			}
			if _, entitled := ids[id]; !entitled {
				respondError(w, http.StatusForbidden, "not entitled to this camera")
				return
			}
		}
	}
	videos, err := h.Service.Videos.ListByCamera(r.Context(), id)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, videos)
}

// GET /api/cameras/{id}/permissions (admin)
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	perms, err := h.Service.Permissions.ListByCamera(r.Context(), id)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, perms)
}

// GET /api/cameras/{id}/settings
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}
	if !ac.IsAdmin {
		ids, err := h.Service.Permissions.EntitledCameraIDs(r.Context(), ac.UserID)
		if err != nil {
			respondError(w, statusForErr(err), err.Error())
			return
		}
		if _, entitled := ids[id]; !entitled {
			respondError(w, http.StatusForbidden, "not entitled to this camera")
			return
		}
	}
	setting, err := h.Service.Settings.GetByCameraID(r.Context(), id)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, setting)
}

// PATCH /api/settings/{id} — requires can_control on the setting's camera.
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid setting id")
		return
	}

	var req struct {
		FlashlightEnabled bool   `json:"flashlight_enabled"`
		Resolution        string `json:"resolution"`
		Framerate         int    `json:"framerate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if !ac.IsAdmin {
		existing, err := h.Service.Settings.GetByID(r.Context(), id)
		if err != nil {
			respondError(w, statusForErr(err), err.Error())
			return
		}
		can, err := h.Service.Permissions.CanControl(r.Context(), existing.CameraID, ac.UserID)
		if err != nil {
			respondError(w, statusForErr(err), err.Error())
			return
		}
		if !can {
			respondError(w, http.StatusForbidden, "can_control required")
			return
		}
	}

	setting, err := h.Service.UpdateSetting(r.Context(), ac.UserID, id, req.FlashlightEnabled, req.Resolution, req.Framerate)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, setting)
}

// PATCH /api/permissions/{id} (admin)
func (h *Handler) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid permission id")
		return
	}
	var req struct {
		CanView    bool `json:"can_view"`
		CanControl bool `json:"can_control"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	perm, err := h.Service.UpdatePermission(r.Context(), ac.UserID, id, req.CanView, req.CanControl)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, perm)
}

// GET /api/videos/{id} — streams the recording file.
func (h *Handler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid video id")
		return
	}
	video, err := h.Service.Videos.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	if !ac.IsAdmin {
		ids, err := h.Service.Permissions.EntitledCameraIDs(r.Context(), ac.UserID)
		if err != nil {
			respondError(w, statusForErr(err), err.Error())
			return
		}
		if _, entitled := ids[video.CameraID]; !entitled {
			respondError(w, http.StatusForbidden, "not entitled to this camera")
			return
		}
	}

	f, err := os.Open(video.FilePath)
	if err != nil {
		respondError(w, http.StatusNotFound, "recording file unavailable")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/x-msvideo")
	io.Copy(w, f)
}

// GET/POST/PATCH/DELETE /api/users (admin)
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	users, err := h.Service.Users.List(r.Context())
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	var req struct {
		Username     string `json:"username"`
		PasswordHash string `json:"password_hash"`
		IsAdmin      bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	u := &data.User{Username: req.Username, PasswordHash: req.PasswordHash, IsAdmin: req.IsAdmin}
	if err := h.Service.CreateUser(r.Context(), ac.UserID, u); err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req struct {
		PasswordHash string `json:"password_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := h.Service.Users.UpdatePassword(r.Context(), id, req.PasswordHash); err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// POST /api/audit/purge (admin) — body: {"retention_years": 7}
func (h *Handler) PurgeAuditLog(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	var req struct {
		RetentionYears int `json:"retention_years"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	purged, err := h.Service.PurgeAuditLog(r.Context(), ac.UserID, req.RetentionYears)
	if err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"purged": purged})
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	ac, ok := authContext(r)
	if !ok || !ac.IsAdmin {
		respondError(w, http.StatusForbidden, "admin identity required")
		return
	}
	id, err := pathInt64(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if err := h.Service.DeleteUser(r.Context(), ac.UserID, id); err != nil {
		respondError(w, statusForErr(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
