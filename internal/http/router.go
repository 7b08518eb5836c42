package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parsakn/smartlight-client/internal/http/handlers"
)

const requestTimeout = 20 * time.Second

// NewRouter builds the local API routing tree.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(RequestLogger(api))

	// Long-lived stream; kept out of the request timeout.
	r.Get("/api/events", api.Events)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))

		r.Get("/healthz", api.Health)
		r.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Post("/session/login", api.Login)
			apiRouter.Post("/session/register", api.Register)
			apiRouter.Post("/session/logout", api.Logout)
			apiRouter.Get("/status", api.Status)
			apiRouter.Post("/refresh", api.Refresh)

			apiRouter.Get("/dashboard", api.Dashboard)
			apiRouter.Get("/homes", api.ListHomes)
			apiRouter.Post("/homes", api.CreateHome)
			apiRouter.Get("/rooms", api.ListRooms)
			apiRouter.Post("/rooms", api.CreateRoom)
			apiRouter.Get("/lamps", api.ListLamps)
			apiRouter.Post("/lamps", api.CreateLamp)

			apiRouter.Patch("/lamps/{id}/status", func(w http.ResponseWriter, r *http.Request) {
				api.SetLampStatus(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Post("/lamps/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
				api.ToggleLamp(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Get("/lamps/{id}/mutation", func(w http.ResponseWriter, r *http.Request) {
				api.LampMutation(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Post("/lamps/{id}/command", func(w http.ResponseWriter, r *http.Request) {
				api.LampCommand(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Post("/voice", api.VoiceCommand)
		})
	})
	return r
}
