package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		r.Group(func(r chi.Router) {
			r.Use(c.authMw)

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", c.createRoom)
				r.Get("/", c.listRooms)
				r.Get("/{room-id}/messages", c.getMessages)
			})
			r.Get("/videos/{video-id}", c.getVideo)
			r.Route("/friends", func(r chi.Router) {
				r.Get("/", c.getFriends)
				r.Delete("/{friend-id}", c.removeFriend)
				r.Route("/requests", func(r chi.Router) {
					r.Post("/", c.sendFriendRequest)
					r.Post("/{request-id}/accept", c.acceptFriendRequest)
					r.Post("/{request-id}/reject", c.rejectFriendRequest)
				})
			})

			r.Route("/ws", func(r chi.Router) {
				r.Get("/room/{room-id}", c.joinRoom)
				r.Get("/rooms", c.watchRooms)
				r.Get("/friends", c.watchFriends)
			})
		})
	})

	return r
}
