// Package server exposes the device over HTTP: health, Prometheus
// metrics, pump control and a status snapshot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/luki/smartplant/internal/alert"
	"github.com/luki/smartplant/internal/command"
	"github.com/luki/smartplant/internal/state"
)

// Source is the channel name HTTP commands are logged under.
const Source = "http"

// PowerControl is the command ingress as seen by the HTTP layer.
type PowerControl interface {
	Handle(ctx context.Context, source string, target bool) (bool, error)
	State() bool
}

// AlertState reports whether a notification is currently raised.
type AlertState interface {
	Raised() bool
}

// Deps are the device components the handlers read and drive.
type Deps struct {
	Power      PowerControl
	Cell       state.Reader
	Alerts     AlertState // optional
	Thresholds alert.Thresholds
	Metrics    http.Handler // optional; /metrics is 404 without it
	Node       string
}

// Status is the body of GET /api/v1/status.
type Status struct {
	Node        string    `json:"node"`
	Valid       bool      `json:"valid"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Condition   string    `json:"condition,omitempty"`
	AlertRaised bool      `json:"alert_raised"`
	Power       bool      `json:"power"`
	Time        time.Time `json:"time"`
}

// Server wraps the http.Server.
type Server struct {
	HTTP *http.Server
	Log  *slog.Logger
}

// New builds the server. Access logs are written to accessLog in Apache
// combined format.
func New(addr string, d Deps, accessLog io.Writer, log *slog.Logger) *Server {
	if accessLog == nil {
		accessLog = io.Discard
	}
	h := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(
		handlers.CombinedLoggingHandler(accessLog, NewRouter(d, log)),
	)
	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{HTTP: hs, Log: log.With(slog.String("component", "http"))}
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.Log.Info("http server starting", "addr", s.HTTP.Addr)
		errCh <- s.HTTP.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.Log.Info("http server stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.HTTP.Shutdown(shutdownCtx)
}

// NewRouter registers the routes.
func NewRouter(d Deps, log *slog.Logger) *mux.Router {
	a := &api{d: d, log: log}
	r := mux.NewRouter()
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics).Methods(http.MethodGet)
	}

	r.HandleFunc("/api/v1/power", a.getPower).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/power", a.putPower).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/api/v1/status", a.status).Methods(http.MethodGet)
	return r
}

type api struct {
	d   Deps
	log *slog.Logger
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) getPower(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, command.Ack{Power: a.d.Power.State()})
}

func (a *api) putPower(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<12))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, command.Ack{Power: a.d.Power.State(), Error: err.Error()})
		return
	}
	req, err := command.ParseRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, command.Ack{Power: a.d.Power.State(), Error: err.Error()})
		return
	}

	on, err := a.d.Power.Handle(r.Context(), Source, *req.Power)
	ack := command.Ack{Power: on, ID: req.ID}
	if err != nil {
		a.log.Warn("power command failed", "err", err)
		ack.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, ack)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	snap := a.d.Cell.Snapshot()
	st := Status{
		Node:  a.d.Node,
		Valid: snap.Valid,
		Power: a.d.Power.State(),
		Time:  time.Now().UTC(),
	}
	if snap.Valid {
		t, h := snap.Reading.Temperature, snap.Reading.Humidity
		st.Temperature = &t
		st.Humidity = &h
		st.Condition = alert.Classify(snap.Reading, a.d.Thresholds).String()
	}
	if a.d.Alerts != nil {
		st.AlertRaised = a.d.Alerts.Raised()
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
