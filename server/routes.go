package server

import (
	"net/http"

	"github.com/Daskott/tandem/server/elevated"
	"github.com/Daskott/tandem/server/ratelimit"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const API_PATH_PREFIX = "/api/v1"

// newRouter wires every http route. reciprocal is mounted only when the
// elevated boundary runs in-process. Public lookups are limited per client ip
// & link attempts per user, both against lookupLimiter.
func newRouter(lookupLimiter ratelimit.Limiter, proxies ratelimit.TrustedProxies, reciprocal http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if reciprocal != nil {
		router.Handle(elevated.RECIPROCAL_CONTACTS_PATH, reciprocal).Methods(http.MethodPost)
	}

	api := router.PathPrefix(API_PATH_PREFIX).Subrouter()
	api.Use(initialContextMiddleware)

	// Public
	api.HandleFunc("/users", createUser).Methods(http.MethodPost)
	api.HandleFunc("/login", logIn).Methods(http.MethodPost)
	api.HandleFunc("/jwks", jwks).Methods(http.MethodGet)

	cards := api.PathPrefix("/cards").Subrouter()
	cards.Use(rateLimitMiddleware(lookupLimiter, proxies.ClientIP))
	cards.HandleFunc("/code/{code}", findCardByCode).Methods(http.MethodGet)
	cards.HandleFunc("/username/{username}", findCardByUsername).Methods(http.MethodGet)

	// Protected
	users := api.PathPrefix("/users/{uid:[0-9]+}").Subrouter()
	users.Use(protectedRouteMiddleware)
	users.HandleFunc("", findUser).Methods(http.MethodGet)
	users.HandleFunc("", updateUser).Methods(http.MethodPut)
	users.HandleFunc("", deleteUser).Methods(http.MethodDelete)

	users.HandleFunc("/card", findOwnCard).Methods(http.MethodGet)
	users.HandleFunc("/card", upsertOwnCard).Methods(http.MethodPut)
	users.HandleFunc("/card", deactivateCard).Methods(http.MethodDelete)
	users.HandleFunc("/card/regenerate", regenerateShareCode).Methods(http.MethodPost)

	users.HandleFunc("/contacts", fetchContacts).Methods(http.MethodGet)
	users.HandleFunc("/contacts/{id:[0-9]+}", updateContact).Methods(http.MethodPut)
	users.HandleFunc("/contacts/{id:[0-9]+}", deleteContact).Methods(http.MethodDelete)

	// Each attempt resolves a code, so it is limited like a public lookup
	users.Handle("/links", rateLimitMiddleware(lookupLimiter, byUser)(http.HandlerFunc(createLink))).Methods(http.MethodPost)

	// Admin
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(adminRouteMiddleware)
	admin.HandleFunc("/jobs/stats", jobsStats).Methods(http.MethodGet)

	return router
}
