// Package web provides the HTTP control surface for the parking-barrier
// daemon: a status page with open/close buttons, a JSON API and a
// websocket live feed.
package web

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/parking-barrier/internal/control"
	"github.com/sweeney/parking-barrier/internal/status"
)

// Controller is the operator interface the server drives.
type Controller interface {
	RequestOpen() error
	RequestClose() (control.CloseResult, error)
	Status() control.Status
}

// Server serves the control surface over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	gateway    Controller
	hub        *Hub
}

// New creates a Server. hub may be nil, in which case /ws is not served.
func New(addr string, tracker *status.Tracker, gateway Controller, hub *Hub) *Server {
	s := &Server{tracker: tracker, gateway: gateway, hub: hub}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/control", s.handleControl)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/open", s.handleAPIOpen)
	mux.HandleFunc("/api/close", s.handleAPIClose)
	if hub != nil {
		mux.Handle("/ws", hub)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server. Websocket connections are
// hijacked and not tracked by http.Server, so the hub is closed too.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	s.renderPage(w, http.StatusOK, "")
}

func (s *Server) renderPage(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	renderHTML(w, s.tracker.Snapshot(), message)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleControl serves the HTML form buttons.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	switch {
	case r.PostForm.Has("open"):
		if err := s.gateway.RequestOpen(); err != nil {
			log.Printf("web: open failed: %v", err)
			s.renderPage(w, http.StatusServiceUnavailable, fmt.Sprintf("Open failed: %v", err))
			return
		}
		s.renderPage(w, http.StatusOK, "Barrier opened.")
	case r.PostForm.Has("close"):
		res, err := s.gateway.RequestClose()
		if err != nil {
			log.Printf("web: close failed: %v", err)
			s.renderPage(w, http.StatusServiceUnavailable, fmt.Sprintf("Close failed: %v", err))
			return
		}
		if !res.Accepted {
			s.renderPage(w, http.StatusConflict, fmt.Sprintf("Close refused: %s.", res.Reason))
			return
		}
		s.renderPage(w, http.StatusOK, "Barrier closed.")
	default:
		http.Error(w, "expected open or close", http.StatusBadRequest)
	}
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toAPIStatus(s.gateway.Status()))
}

func (s *Server) handleAPIOpen(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	resp := ControlResponse{Accepted: true}
	code := http.StatusOK
	if err := s.gateway.RequestOpen(); err != nil {
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	}
	resp.Status = toAPIStatus(s.gateway.Status())
	writeJSON(w, code, resp)
}

func (s *Server) handleAPIClose(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	res, err := s.gateway.RequestClose()
	resp := ControlResponse{Accepted: res.Accepted, Reason: res.Reason}
	code := http.StatusOK
	switch {
	case err != nil:
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	case !res.Accepted:
		code = http.StatusConflict
	}
	resp.Status = toAPIStatus(s.gateway.Status())
	writeJSON(w, code, resp)
}
