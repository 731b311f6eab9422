// Package server wires the HTTP surface of the daemon: the bus API,
// the status page and the request logging around both.
package server

import (
	"io"
	"net/http"

	"github.com/twibus/twid-go/core"
	"github.com/twibus/twid-go/memlog"
	"github.com/twibus/twid-go/server/api"
	"github.com/twibus/twid-go/server/status"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// The daemon listens on loopback only; clients are local browsers and
// tools, never the network.
const Addr = "127.0.0.1:21335"

type Server struct {
	https  *http.Server
	core   *core.Core
	logger *memlog.Writer
}

func New(c *core.Core, stderrWriter io.Writer, shortMemoryWriter, longMemoryWriter *memlog.Writer, version string) (*Server, error) {
	https := &http.Server{
		Addr: Addr,
	}
	s := &Server{
		core:   c,
		https:  https,
		logger: longMemoryWriter,
	}

	r := mux.NewRouter()
	if err := api.ServeAPI(r, c, version, longMemoryWriter); err != nil {
		return nil, err
	}

	sr := r.PathPrefix("/status").Subrouter()
	status.ServeStatus(sr, c, version, shortMemoryWriter, longMemoryWriter)

	status.ServeStatusRedirect(r)

	var h http.Handler = r
	// Log after the request is done, in the Apache format.
	h = handlers.LoggingHandler(stderrWriter, h)
	// Log when the request is received.
	h = s.logRequest(h)

	https.Handler = h

	return s, nil
}

func (s *Server) logRequest(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Log("request - " + r.Method + " " + r.URL.Path)
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) Run() error {
	s.logger.Log("server - listening on " + Addr)
	return s.https.ListenAndServe()
}

func (s *Server) Close() error {
	return s.https.Close()
}
