package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Tyrowin/roomchat/internal/auth"
)

// SetupRoutes builds the router serving the health check, the WebSocket
// endpoint and the test console. The WebSocket handler answers non-GET
// methods itself so clients get its explanatory 405.
func SetupRoutes(hub *Hub, verifier *auth.Verifier) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", HealthHandler(hub)).Methods(http.MethodGet)
	router.HandleFunc("/ws", WebSocketHandler(hub, verifier))
	router.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	return router
}
