package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/carpool-engine/internal/dispatch"
	"github.com/example/carpool-engine/internal/lifecycle"
	"github.com/example/carpool-engine/internal/match"
	"github.com/example/carpool-engine/internal/models"
)

type Server struct {
	Manager *lifecycle.Manager
	WSReg   *dispatch.WSRegistry
	logger  *slog.Logger
	mux     *mux.Router
}

func NewServer(manager *lifecycle.Manager, wsreg *dispatch.WSRegistry, logger *slog.Logger) *Server {
	s := &Server{Manager: manager, WSReg: wsreg, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/reservations", s.handleCreateReservation).Methods("POST")
	s.mux.HandleFunc("/api/v1/reservations/{id}", s.handleCancelReservation).Methods("DELETE")
	s.mux.HandleFunc("/api/v1/reservations/{id}/matches", s.handleMatches).Methods("GET")
	s.mux.HandleFunc("/api/v1/reservations/{id}/group", s.handleGroup).Methods("GET")
	s.mux.HandleFunc("/api/v1/reservations/{id}/start", s.handleStart).Methods("POST")
	s.mux.HandleFunc("/api/v1/reservations/{id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type coordDTO struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

type createReservationRequest struct {
	UserID      string             `json:"user_id"`
	UserGender  string             `json:"user_gender,omitempty"`
	Role        string             `json:"role"`
	Mode        string             `json:"mode,omitempty"`
	Origin      coordDTO           `json:"origin"`
	Destination coordDTO           `json:"destination"`
	Window      models.TimeWindow  `json:"window"`
	Preferences models.Preferences `json:"preferences"`
	Capacity    int                `json:"capacity,omitempty"`
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	res := &models.Reservation{
		UserID:      req.UserID,
		UserGender:  req.UserGender,
		Role:        models.Role(req.Role),
		Mode:        req.Mode,
		Origin:      models.Coord{Lat: req.Origin.Lat, Lon: req.Origin.Lon},
		Destination: models.Coord{Lat: req.Destination.Lat, Lon: req.Destination.Lon},
		OriginAddr:  req.Origin.Address,
		DestAddr:    req.Destination.Address,
		Window:      req.Window,
		Preferences: req.Preferences,
		Capacity:    req.Capacity,
	}
	if err := s.Manager.Create(r.Context(), res); err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":         res.ID,
		"status":     res.Status,
		"created_at": res.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Server) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Manager.Cancel(r.Context(), id); err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.StatusCanceled})
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ranked, err := s.Manager.Matches(r.Context(), id)
	if err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	if ranked == nil {
		ranked = []match.Ranked{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation_id": id, "matches": ranked})
}

func (s *Server) handleGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	group, err := s.Manager.Group(r.Context(), id)
	if err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Manager.Start(r.Context(), id); err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.StatusStarted})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.Manager.Complete(r.Context(), id); err != nil {
		writeError(w, lifecycle.HTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.StatusCompleted})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upgrade failed")
		return
	}
	s.WSReg.Add(userID, conn)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
