package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/aurorawatch/internal/config"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/narrative"
	"github.com/lox/aurorawatch/internal/outlook"
	"github.com/lox/aurorawatch/internal/spots"
	"github.com/lox/aurorawatch/internal/store"
	"github.com/lox/aurorawatch/internal/window"
)

type Server struct {
	cfg      *config.Config
	store    *store.Store
	engine   *outlook.Engine
	resolver *window.Resolver
	spots    *spots.Suggester
	narrator *narrative.Narrator
	port     string
	clock    clockwork.Clock
	log      *slog.Logger
}

func NewServer(cfg *config.Config, st *store.Store, engine *outlook.Engine, resolver *window.Resolver, port string, clock clockwork.Clock, log *slog.Logger) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		store:    st,
		engine:   engine,
		resolver: resolver,
		port:     port,
		clock:    clock,
		log:      log.With("component", "api"),
	}
}

// WithSpots enables /api/spots.
func (s *Server) WithSpots(sg *spots.Suggester) *Server {
	s.spots = sg
	return s
}

// WithNarrator enables the summary attached to /api/tonight?summary=1.
func (s *Server) WithNarrator(n *narrative.Narrator) *Server {
	s.narrator = n
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/tonight", s.handleAPITonight)
	mux.HandleFunc("/api/now", s.handleAPINow)
	mux.HandleFunc("/api/geomagnetic", s.handleAPIGeomagnetic)
	mux.HandleFunc("/api/window", s.handleAPIWindow)
	mux.HandleFunc("/api/spots", s.handleAPISpots)
	mux.HandleFunc("/api/ingest/health", s.handleAPIIngestHealth)
	mux.HandleFunc("/api/ingest/raw", s.handleAPIIngestRaw)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.log.Info("listening", "port", s.port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

type HealthStatus struct {
	Status        string             `json:"status"`
	SchemaVersion int                `json:"schemaVersion"`
	Geomagnetic   *GeomagneticHealth `json:"geomagnetic,omitempty"`
	Errors        []string           `json:"errors,omitempty"`
}

type GeomagneticHealth struct {
	TimeTag     time.Time          `json:"timeTag"`
	AgeMinutes  int                `json:"ageMinutes"`
	StaleStatus models.StaleStatus `json:"staleStatus"`
}

// handleHealth reports on the most recent stored geomagnetic snapshot.
// Anything older than the stale threshold degrades the service.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}

	version, err := s.store.MigrationVersion()
	if err != nil {
		health.Status = "error"
		health.Errors = append(health.Errors, "schema: "+err.Error())
	}
	health.SchemaVersion = version

	blend, err := s.store.LatestGeomagnetic()
	switch {
	case err != nil:
		health.Status = "error"
		health.Errors = append(health.Errors, "geomagnetic: "+err.Error())
	case blend == nil:
		if health.Status == "ok" {
			health.Status = "degraded"
		}
		health.Errors = append(health.Errors, "geomagnetic: no snapshot stored")
	default:
		age := s.clock.Since(blend.TimeTag)
		gh := &GeomagneticHealth{
			TimeTag:     blend.TimeTag,
			AgeMinutes:  int(age.Minutes()),
			StaleStatus: geomagnetic.Staleness(age.Hours(), s.cfg.SolarWind.StaleHours),
		}
		if health.Status == "ok" && (gh.StaleStatus == models.StaleStale || gh.StaleStatus == models.StaleVery) {
			health.Status = "degraded"
		}
		health.Geomagnetic = gh
	}

	status := http.StatusOK
	if health.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("write response", "error", err)
	}
}

// writeError maps invalid input to 400 and everything else to 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, models.ErrInvalidInput) {
		status = http.StatusBadRequest
	} else {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
