package metrics

import (
	"fmt"
	"net/http"
	"time"
)

// NewServer builds the scrape server for the given port. The caller owns its
// lifecycle (ListenAndServe / Shutdown).
func NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>Docsite Search Metrics</h1><p><a href="/metrics">/metrics</a></p></body></html>`)
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
