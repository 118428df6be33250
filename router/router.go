package router

import (
	"net/http"

	docHandler "livecollab/internal/document"
	"livecollab/middleware"
	"livecollab/pkg/metrics"
	"livecollab/socket"

	"github.com/go-chi/chi/v5"
)

func Setup(docs *docHandler.DocumentHandler, hub *socket.Hub, m *metrics.Metrics, allowedOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.CORSMiddleware(allowedOrigin))

	// WebSocket
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	// REST API
	r.Route("/api/documents", func(r chi.Router) {
		r.Get("/", docs.ListDocuments)
		r.Post("/", docs.CreateDocument)

		r.Route("/{key}", func(r chi.Router) {
			r.Get("/participants", docs.Participants)
			r.Get("/export", docs.Export)
			r.Put("/import", docs.Import)
			r.Post("/clear", docs.Clear)

			r.Post("/sessions", docs.OpenSession)
			r.Route("/sessions/{participantID}", func(r chi.Router) {
				r.Post("/edit", docs.Edit)
				r.Post("/blur", docs.Blur)
				r.Get("/poll", docs.Poll)
				r.Delete("/", docs.CloseSession)
			})
		})
	})

	return r
}
