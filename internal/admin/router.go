package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter wires the §6.2 path table onto a chi.Mux. authMW attaches the
// caller's middleware.AuthContext to every request under it; routes that
// are always public (login) sit outside that group.
func NewRouter(svc *Service, discoverer Discoverer, authMW func(http.Handler) http.Handler) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Post("/api/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMW)

		r.Post("/api/logout", h.Logout)

		r.Get("/api/", h.Whoami)

		r.Get("/api/cameras", h.ListCameras)
		r.Post("/api/cameras", h.CreateCamera)
		r.Delete("/api/cameras/{id}", h.DeleteCamera)
		r.Get("/api/cameras/{id}/videos", h.ListVideos)
		r.Get("/api/cameras/{id}/permissions", h.ListPermissions)
		r.Get("/api/cameras/{id}/settings", h.GetSetting)
		r.Post("/api/cameras/{id}/restart", h.RestartCamera)

		r.Patch("/api/settings/{id}", h.UpdateSetting)
		r.Patch("/api/permissions/{id}", h.UpdatePermission)

		r.Get("/api/videos/{id}", h.StreamVideo)

		r.Get("/api/users", h.ListUsers)
		r.Post("/api/users", h.CreateUser)
		r.Patch("/api/users/{id}", h.UpdateUser)
		r.Delete("/api/users/{id}", h.DeleteUser)

		r.Post("/api/audit/purge", h.PurgeAuditLog)

		if discoverer != nil {
			r.Get("/api/mdns_cameras_sse", h.MdnsCamerasSSE(discoverer))
		}
	})

	return r
}
