package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every route on a chi router with the standard middleware
// chain.
func NewRouter(s *Server) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/users", func(r chi.Router) {
		r.Post("/", s.handleCreateUser)
		r.Get("/", s.handleListUsers)

		r.Route("/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Patch("/", s.handleRenameUser)
			r.Post("/deactivate", s.handleDeactivateUser)
			r.Delete("/", s.handleDeleteUser)

			r.Route("/trips", func(r chi.Router) {
				r.Post("/", s.handleCreateTrip)
				r.Get("/", s.handleListTrips)
				r.Get("/current", s.handleCurrentTrip)
				r.Post("/current/end", s.handleEndCurrentTrip)

				r.Route("/{tripID}", func(r chi.Router) {
					r.Get("/", s.handleGetTrip)
					r.Patch("/", s.handleUpdateTrip)
					r.Delete("/", s.handleDeleteTrip)
					r.Post("/activate", s.handleActivateTrip)
					r.Get("/memories", s.handleListMemories)
					r.Post("/memories/{memoryID}/photos", s.handleAttachPhoto)
					r.Post("/participants", s.handleAddParticipant)
					r.Delete("/participants/{participantID}", s.handleRemoveParticipant)
				})
			})
		})
	})

	r.Route("/tracking", func(r chi.Router) {
		r.Get("/status", s.handleTrackingStatus)
		r.Post("/start", s.handleStartTracking)
		r.Post("/stop", s.handleStopTracking)
		r.Put("/tier", s.handleSetTier)
		r.Post("/waypoints", s.handleCreateWaypoint)
	})

	r.Post("/queue/flush", s.handleFlushQueue)

	return r
}
