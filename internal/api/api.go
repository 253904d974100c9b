package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/pool-controller/db"
	"github.com/thatsimonsguy/pool-controller/internal/controllers/modecontroller"
	"github.com/thatsimonsguy/pool-controller/internal/model"
)

// Controller is the write path the API drives; modecontroller.Runner
// satisfies it.
type Controller interface {
	SetMode(mode model.Mode) error
	Params() model.ControlParams
	SetParams(p model.ControlParams) error
	SetRelay(id model.ActuatorID, on bool) error
	Status() modecontroller.Status
	Actuators() []model.ActuatorID
}

type Server struct {
	ctrl Controller
	db   *sql.DB
	http *http.Server
}

type ModeResponse struct {
	Mode  string   `json:"mode"`
	Modes []string `json:"modes"`
}

type ModeRequest struct {
	Mode string `json:"mode"`
}

type RelayRequest struct {
	On *bool `json:"on"`
}

type RelayResponse struct {
	ID string `json:"id"`
	On bool   `json:"on"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(ctrl Controller, database *sql.DB) *Server {
	return &Server{ctrl: ctrl, db: database}
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.getStatus).Methods(http.MethodGet)
	api.HandleFunc("/mode", s.getMode).Methods(http.MethodGet)
	api.HandleFunc("/mode", s.setMode).Methods(http.MethodPut)
	api.HandleFunc("/params", s.getParams).Methods(http.MethodGet)
	api.HandleFunc("/params", s.setParams).Methods(http.MethodPut)
	api.HandleFunc("/relays", s.getRelays).Methods(http.MethodGet)
	api.HandleFunc("/relays/{id}", s.setRelay).Methods(http.MethodPut)
	api.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	logged := handlers.CustomLoggingHandler(io.Discard, r, logRequest)
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(cors(logged))
}

func logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	log.Debug().
		Str("method", p.Request.Method).
		Str("path", p.URL.Path).
		Int("status", p.StatusCode).
		Int("bytes", p.Size).
		Msg("API request")
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("REST API server did not shut down cleanly")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) getMode(w http.ResponseWriter, r *http.Request) {
	modes := make([]string, 0, len(model.Modes))
	for _, m := range model.Modes {
		modes = append(modes, string(m))
	}
	s.writeJSON(w, http.StatusOK, ModeResponse{Mode: string(s.ctrl.Status().Mode), Modes: modes})
}

func (s *Server) setMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.ctrl.SetMode(model.Mode(req.Mode)); err != nil {
		s.writeControlError(w, err)
		return
	}

	log.Info().Str("mode", req.Mode).Msg("Operation mode updated via API")
	s.getMode(w, r)
}

func (s *Server) getParams(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Params())
}

// setParams merges the body onto the current parameters so partial
// updates are allowed; the merged set is validated as a whole.
func (s *Server) setParams(w http.ResponseWriter, r *http.Request) {
	p := s.ctrl.Params()
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := s.ctrl.SetParams(p); err != nil {
		s.writeControlError(w, err)
		return
	}

	log.Info().Str("timer", p.Timer.String()).Float64("hysteresis", p.Hysteresis).Msg("Control parameters updated via API")
	s.writeJSON(w, http.StatusOK, s.ctrl.Params())
}

func (s *Server) getRelays(w http.ResponseWriter, r *http.Request) {
	last := s.ctrl.Status().LastCommanded
	resp := make([]RelayResponse, 0)
	for _, id := range s.ctrl.Actuators() {
		resp = append(resp, RelayResponse{ID: string(id), On: last[id]})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) setRelay(w http.ResponseWriter, r *http.Request) {
	id := model.ActuatorID(mux.Vars(r)["id"])

	var req RelayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		s.writeError(w, http.StatusBadRequest, `Invalid JSON payload, expected {"on": true|false}`)
		return
	}

	if err := s.ctrl.SetRelay(id, *req.On); err != nil {
		s.writeControlError(w, err)
		return
	}

	log.Info().Str("relay", string(id)).Bool("on", *req.On).Msg("Relay switched via API")
	s.writeJSON(w, http.StatusOK, RelayResponse{ID: string(id), On: *req.On})
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeError(w, http.StatusServiceUnavailable, "History not available")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	events, err := db.GetRecentActuatorEvents(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get actuator history")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []db.ActuatorEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// writeControlError maps controller rejections onto status codes.
func (s *Server) writeControlError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnknownMode),
		errors.Is(err, modecontroller.ErrModeNotRegistered),
		errors.Is(err, model.ErrInvalidParams):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, modecontroller.ErrUnknownActuator):
		s.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg("Controller update failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
