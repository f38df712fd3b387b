package httpapi

import (
	"net/http"

	"github.com/rs/cors"
)

// NewRouter wires the routes behind CORS and request logging.
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc("POST /api/v1/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", h.DeleteSession)
	mux.HandleFunc("PUT /api/v1/sessions/{id}/chunks/{index}", h.StoreChunk)
	mux.HandleFunc("POST /api/v1/sessions/{id}/reconstruct", h.Reconstruct)

	mux.HandleFunc("POST /api/v1/admin/sweep", h.Sweep)

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			headerTotalChunks,
			headerFileName,
			headerFileType,
			headerTargetFolder,
			headerGymSlug,
			headerGymName,
		},
	})

	return Logger(h.Logger, c.Handler(mux))
}
