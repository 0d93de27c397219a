// Package http exposes the member service over REST and the push channel
// over a websocket and long-polling.
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers groups everything the router serves. Gatherer may be nil, in
// which case /metrics is not registered.
type Handlers struct {
	Members    *MemberHandler
	Auth       *AuthHandler
	Push       *PushHandler
	Middleware *AuthMiddleware
	Gatherer   prometheus.Gatherer
}

// NewRouter registers every route under /api/v1. Route names are the keys
// of config.EndpointSecurityConfig.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger)

	router.HandleFunc("/healthz", health).Methods(http.MethodGet).Name("Health")
	if h.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet).Name("Metrics")
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	if h.Middleware != nil {
		api.Use(h.Middleware.Handler)
	}

	api.HandleFunc("/login", h.Auth.Login).Methods(http.MethodPost).Name("Login")
	api.HandleFunc("/register", h.Auth.Register).Methods(http.MethodPost).Name("Register")

	api.HandleFunc("/members", h.Members.ListMembers).Methods(http.MethodGet).Name("ListMembers")
	api.HandleFunc("/members", h.Members.CreateMember).Methods(http.MethodPost).Name("CreateMember")
	api.HandleFunc("/members/{id:[0-9]+}", h.Members.UpdateMember).Methods(http.MethodPut).Name("UpdateMember")
	api.HandleFunc("/members/{id:[0-9]+}", h.Members.DeleteMember).Methods(http.MethodDelete).Name("DeleteMember")
	api.HandleFunc("/members/{id:[0-9]+}/state", h.Members.SetState).Methods(http.MethodPut).Name("SetMemberState")
	api.HandleFunc("/checkin", h.Members.Checkin).Methods(http.MethodPost).Name("Checkin")

	api.HandleFunc("/ws", h.Push.Socket).Methods(http.MethodGet).Name("PushSocket")
	api.HandleFunc("/events", h.Push.Poll).Methods(http.MethodGet).Name("PollEvents")

	return router
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
