// Package httpapi is the REST facade over the matching engine and stores.
// Handlers translate HTTP to engine calls and map typed errors to statuses;
// no business rules live here.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/lifeline/internal/auth"
	"github.com/example/lifeline/internal/dispatch"
	"github.com/example/lifeline/internal/geo"
	"github.com/example/lifeline/internal/ingest"
	"github.com/example/lifeline/internal/match"
	"github.com/example/lifeline/internal/models"
	"github.com/example/lifeline/internal/store"
)

// Options carries every dependency explicitly; nothing reaches for globals.
type Options struct {
	Store    store.Store
	Match    *match.Service
	Tokens   *auth.TokenIssuer
	Dispatch *dispatch.Dispatcher
	WSReg    *dispatch.WSRegistry
	Drivers  geo.Index
	Kafka    *ingest.KafkaProducer // optional
	Logger   *slog.Logger
}

type Server struct {
	store    store.Store
	match    *match.Service
	tokens   *auth.TokenIssuer
	dispatch *dispatch.Dispatcher
	wsReg    *dispatch.WSRegistry
	drivers  geo.Index
	kafka    *ingest.KafkaProducer
	logger   *slog.Logger
	mux      *mux.Router
}

func New(opts Options) (*Server, error) {
	s := &Server{
		store:    opts.Store,
		match:    opts.Match,
		tokens:   opts.Tokens,
		dispatch: opts.Dispatch,
		wsReg:    opts.WSReg,
		drivers:  opts.Drivers,
		kafka:    opts.Kafka,
		logger:   opts.Logger,
		mux:      mux.NewRouter(),
	}
	if err := s.routes(); err != nil {
		return nil, err
	}
	s.registerMiddleware()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) routes() error {
	donorOnly, err := s.roleGuard(models.RoleDonor)
	if err != nil {
		return err
	}
	patientOnly, err := s.roleGuard(models.RolePatient)
	if err != nil {
		return err
	}
	driverOnly, err := s.roleGuard(models.RoleDriver)
	if err != nil {
		return err
	}
	adminOnly, err := s.roleGuard(models.RoleAdmin)
	if err != nil {
		return err
	}

	s.mux.HandleFunc("/auth/register", s.handleRegister).Methods("POST")
	s.mux.HandleFunc("/auth/login", s.handleLogin).Methods("POST")

	donor := s.mux.PathPrefix("/donor").Subrouter()
	donor.Use(s.authMiddleware, donorOnly)
	donor.HandleFunc("/requests/nearby", s.handleNearbyBloodRequests).Methods("GET")
	donor.HandleFunc("/requests/{id}/accept", s.handleAcceptBloodRequest).Methods("PUT")
	donor.HandleFunc("/availability", s.handleDonorAvailability).Methods("PUT")

	patient := s.mux.PathPrefix("/patient").Subrouter()
	patient.Use(s.authMiddleware, patientOnly)
	patient.HandleFunc("/blood-requests", s.handleCreateBloodRequest).Methods("POST")
	patient.HandleFunc("/blood-requests", s.handleListBloodRequests).Methods("GET")
	patient.HandleFunc("/blood-requests/{id}/fulfill", s.handleFulfillBloodRequest).Methods("PUT")
	patient.HandleFunc("/blood-requests/{id}/cancel", s.handleCancelBloodRequest).Methods("PUT")
	patient.HandleFunc("/ambulance-requests", s.handleCreateAmbulanceRequest).Methods("POST")
	patient.HandleFunc("/ambulance-requests", s.handleListAmbulanceRequests).Methods("GET")
	patient.HandleFunc("/ambulance-requests/{id}/cancel", s.handleCancelAmbulanceRequest).Methods("PUT")

	driver := s.mux.PathPrefix("/driver").Subrouter()
	driver.Use(s.authMiddleware, driverOnly)
	driver.HandleFunc("/trips", s.handleDriverTrips).Methods("GET")
	driver.HandleFunc("/trips/{id}/status", s.handleTripStatus).Methods("PUT")
	driver.HandleFunc("/trips/{id}/location", s.handleTripLocation).Methods("POST")
	driver.HandleFunc("/location", s.handleDriverLocation).Methods("POST")

	admin := s.mux.PathPrefix("/requests/ambulance").Subrouter()
	admin.Use(s.authMiddleware, adminOnly)
	admin.HandleFunc("/{id}/assign", s.handleAssignDriver).Methods("PUT")
	admin.HandleFunc("/{id}/candidates", s.handleDriverCandidates).Methods("GET")

	ws := s.mux.PathPrefix("/ws").Subrouter()
	ws.Use(s.authMiddleware)
	ws.HandleFunc("", s.handleWS).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return nil
}
