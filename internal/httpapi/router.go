// Package httpapi exposes the service over JSON HTTP and serves the HLS
// output tree.
package httpapi

import (
	"mime"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func init() {
	_ = mime.AddExtensionType(".m3u8", "application/vnd.apple.mpegurl")
	_ = mime.AddExtensionType(".ts", "video/mp2t")
}

// NewRouter configures API routes and static HLS serving.
func NewRouter(handler *Handler, hlsDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/jobs", handler.ListJobs).Methods("GET")
	r.HandleFunc("/api/jobs/{id}", handler.GetJob).Methods("GET")
	r.HandleFunc("/api/jobs/{id}", handler.DeleteJob).Methods("DELETE")
	r.HandleFunc("/api/jobs/{id}/submit", handler.SubmitJob).Methods("POST")
	r.HandleFunc("/api/jobs/{id}/cancel", handler.CancelJob).Methods("POST")
	r.HandleFunc("/api/queue", handler.Queue).Methods("GET")
	r.HandleFunc("/api/stats", handler.Stats).Methods("GET")
	r.HandleFunc("/api/events", handler.Events).Methods("GET")
	r.HandleFunc("/api/scan", handler.Scan).Methods("POST")
	r.HandleFunc("/api/reset-stuck", handler.ResetStuck).Methods("POST")
	r.PathPrefix("/hls/").Handler(http.StripPrefix("/hls/", http.FileServer(http.Dir(hlsDir))))
	return r
}

// NewServer wraps the router with CORS for browser players
func NewServer(addr string, handler *Handler, hlsDir string) *http.Server {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	})
	return &http.Server{
		Addr:    addr,
		Handler: c.Handler(NewRouter(handler, hlsDir)),
	}
}
