package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type Server struct {
	httpServer *http.Server
	matchmaker *Matchmaker
	logger     *Logger
}

func StartServer(ctx context.Context, config *Config, logger *Logger, clientHolder *ClientHolder, lobbyHolder *LobbyHolder, matchmaker *Matchmaker, pipeline *Pipeline, presence *Presence, stats *Stats) *Server {

	router := mux.NewRouter()
	// Do NOT enable compression on WebSocket route, it results in "http: response.Write on hijacked connection" errors.
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }).Methods("GET")
	router.HandleFunc("/ws", NewSocketAcceptor(clientHolder, lobbyHolder, config, pipeline, stats, logger)).Methods("GET")

	// Enable CORS on all requests.
	CORSHeaders := handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "User-Agent"})
	CORSOrigins := handlers.AllowedOrigins([]string{"*"})
	CORSMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE"})
	handlerWithCORS := handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(router)

	s := &Server{
		httpServer: &http.Server{
			MaxHeaderBytes: 5120,
			Handler:        handlerWithCORS,
		},
		matchmaker: matchmaker,
		logger:     logger,
	}

	logger.Infof("Starting server for HTTP requests on port %d", config.Port)
	go func() {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
		if err != nil {
			logger.Fatalw("Error while creating listener for HTTP server", "error", err)
		}
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Error while serving HTTP server", "error", err)
		}
	}()

	matchmaker.Start()

	//Surface the online user count in the logs while the broker runs
	go func() {
		for count := range presence.WatchOnline(ctx, time.Minute) {
			logger.Debugw("Online users", "count", count)
		}
	}()

	return s

}

func (s *Server) Stop() {

	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.Errorw("Couldn't shutdown HTTP server", "error", err)
	}

	//Both scan loops are joined before returning, a tick is never cut short
	s.matchmaker.Stop()

}
