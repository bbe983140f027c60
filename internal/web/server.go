// Package web provides the HTTP surface of the tec-monitor daemon: a status
// page, JSON and plot endpoints, command endpoints and a websocket stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/command"
	"github.com/sweeney/tec-monitor/internal/session"
	"github.com/sweeney/tec-monitor/internal/status"
)

// Controller is the part of the device session the server drives.
type Controller interface {
	Submit(cmds ...command.Command)
	History() session.Series
}

// DataLog toggles the on-disk data log.
type DataLog interface {
	Enable(prefix string) error
	Disable() error
	Enabled() bool
	Path() string
}

// Server serves the status page and command API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctrl       Controller
	dlog       DataLog
	hub        *Hub
	log        *zap.SugaredLogger
}

// New creates a Server on addr. dlog and hub may be nil, which disables
// /api/logging and /ws respectively.
func New(addr string, tracker *status.Tracker, ctrl Controller, dlog DataLog, hub *Hub, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{tracker: tracker, ctrl: ctrl, dlog: dlog, hub: hub, log: log.Named("web")}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("GET /history.json", s.handleHistory)
	mux.HandleFunc("GET /plot.png", s.handlePlot)
	mux.HandleFunc("POST /api/setpoint", s.handleSetPoint)
	mux.HandleFunc("POST /api/output", s.handleOutput)
	mux.HandleFunc("POST /api/command", s.handleCommand)
	mux.HandleFunc("POST /api/logging", s.handleLogging)
	if hub != nil {
		mux.Handle("GET /ws", hub)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router. Useful for tests.
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
// hijacked and not tracked by http.Server, so the hub closes them.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.hub != nil {
		s.hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warnw("render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, historyJSON(s.ctrl.History()))
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	series := s.ctrl.History()
	if series.Len() == 0 {
		writeError(w, http.StatusServiceUnavailable, errors.New("no samples yet"))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := renderPlot(w, series, plotWidth, plotHeight); err != nil {
		s.log.Warnw("render plot", "error", err)
	}
}

func (s *Server) handleSetPoint(w http.ResponseWriter, r *http.Request) {
	var req SetPointRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing value"))
		return
	}
	cmds, err := command.SetPoint(*req.Value)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.submit(w, cmds)
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	var req OutputRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing enabled"))
		return
	}
	s.submit(w, []command.Command{command.SetOutputEnable{Enabled: *req.Enabled}})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmds, err := command.Parse(req.Command, req.Args)
	if err != nil {
		code := http.StatusUnprocessableEntity
		if errors.Is(err, command.ErrUnknownCommand) {
			code = http.StatusNotFound
		}
		writeError(w, code, err)
		return
	}
	s.submit(w, cmds)
}

func (s *Server) submit(w http.ResponseWriter, cmds []command.Command) {
	s.ctrl.Submit(cmds...)
	names := make([]string, len(cmds))
	for i, c := range cmds {
		names[i] = c.String()
	}
	s.log.Infow("queued commands", "commands", names)
	writeJSON(w, http.StatusAccepted, QueuedResponse{Queued: names})
}

func (s *Server) handleLogging(w http.ResponseWriter, r *http.Request) {
	if s.dlog == nil {
		writeError(w, http.StatusNotImplemented, errors.New("data logging not configured"))
		return
	}
	var req LoggingRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, errors.New("missing enabled"))
		return
	}

	var err error
	if *req.Enabled {
		err = s.dlog.Enable(req.Prefix)
	} else {
		err = s.dlog.Disable()
	}
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.log.Infow("data logging toggled", "enabled", s.dlog.Enabled(), "path", s.dlog.Path())
	writeJSON(w, http.StatusOK, LoggingResponse{Enabled: s.dlog.Enabled(), Path: s.dlog.Path()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
