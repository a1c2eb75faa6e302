package router

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/welovename555/smsdesk/internal/logger"
	"github.com/welovename555/smsdesk/internal/market"
	"github.com/welovename555/smsdesk/internal/middleware"
	"github.com/welovename555/smsdesk/internal/order"
	"github.com/welovename555/smsdesk/internal/session"
)

func NewRouter(
	sessionH *session.Handler,
	orderH *order.Handler,
	marketH *market.Handler,
	jwtSecret []byte,
	sessions middleware.SessionChecker,
) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)

	r.Use(middleware.GzipHandler)

	r.Post("/api/session/connect", sessionH.Connect)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(jwtSecret, sessions))

		r.Post("/api/session/disconnect", sessionH.Disconnect)
		r.Get("/api/session/balance", sessionH.Balance)
		r.Get("/api/catalog/countries", sessionH.Countries)
		r.Get("/api/catalog/services", sessionH.Services)
		r.Get("/api/catalog/price", sessionH.Price)

		r.Mount("/api/orders", orderH.Routes())
		r.Mount("/api/market", marketH.Routes())
	})

	return r
}
