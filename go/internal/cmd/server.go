package main

import (
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/scoresync/go/internal/config"
	"github.com/mcdev12/scoresync/go/internal/judgeapi"
	"github.com/mcdev12/scoresync/go/internal/pages"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              cfg.Pages.Addr,
		Handler:           newHandler(services),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newHandler(services *Services) http.Handler {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// Presentation pages
	pages.NewWebSocketHandler(services.Pages).RegisterRoutes(mux)

	// Register judge command service
	registerServices(mux, services)

	// Add health check endpoint
	setupHealthCheck(mux)

	// Wrap with CORS
	handler := c.Handler(mux)

	return h2c.NewHandler(handler, &http2.Server{})
}

func registerServices(mux *http.ServeMux, services *Services) {
	judgeServicePath, judgeServiceHandler := judgeapi.NewJudgeServiceHandler(services.JudgeAPI)
	mux.Handle(judgeServicePath, judgeServiceHandler)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
