package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"flaparena/internal/directory"
	"flaparena/internal/server"
	"flaparena/internal/ws"
)

func SetupRoutes(dir *directory.Directory, srv *server.Server, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Public routes
	r.Get("/rooms", ListRooms(dir))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(srv, log))
	return r
}
