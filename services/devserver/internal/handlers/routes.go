package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/comment-sync/internal/platform/auth"
	"github.com/example/comment-sync/internal/platform/httpserver"
	"github.com/example/comment-sync/internal/platform/logging"
	"github.com/example/comment-sync/services/devserver/internal/events"
	"github.com/example/comment-sync/services/devserver/internal/store"
)

type Deps struct {
	Comments store.CommentStore
	Users    store.UserStore
	Tokens   auth.Tokens
	Events   events.Broadcaster
	Logger   *zap.Logger
	// WS serves the push channel; nil leaves /ws unrouted.
	WS http.Handler
	// AuthLimiter throttles login and register; nil disables it.
	AuthLimiter *httpserver.RateLimiter
}

// Mount registers the /api routes and the /ws push endpoint on r.
func Mount(r chi.Router, d Deps) {
	log := logging.OrNop(d.Logger)
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	comments := Comments{Store: d.Comments, Users: d.Users, Events: d.Events, Log: log}
	sessions := Auth{Users: d.Users, Tokens: d.Tokens, Log: log}
	requireUser := auth.RequireUser(d.Tokens)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if d.AuthLimiter != nil {
					r.Use(d.AuthLimiter.Middleware)
				}
				r.Post("/register", sessions.Register())
				r.Post("/login", sessions.Login())
			})
			r.Post("/logout", sessions.Logout())
			r.With(requireUser).Get("/me", sessions.Me())
		})

		r.Route("/comments", func(r chi.Router) {
			r.Get("/", comments.List())
			r.Get("/{id}", comments.Get())
			r.Get("/{id}/replies", comments.Replies())

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", comments.Create())
				r.Put("/{id}", comments.Update())
				r.Delete("/{id}", comments.Delete())
				r.Post("/{id}/like", comments.Like())
				r.Post("/{id}/dislike", comments.Dislike())
			})
		})
	})

	if d.WS != nil {
		r.With(auth.OptionalUser(d.Tokens)).Get("/ws", d.WS.ServeHTTP)
	}
}
