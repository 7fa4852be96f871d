package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/narrative"
	"github.com/lox/aurorawatch/internal/outlook"
	"github.com/lox/aurorawatch/internal/spots"
	"github.com/lox/aurorawatch/internal/store"
)

const (
	defaultSpots      = 5
	maxSpots          = 24
	defaultIngestDays = 7
	recentErrorLimit  = 20
)

type tonightResponse struct {
	*outlook.Outlook
	Summary *narrative.Summary `json:"summary,omitempty"`
}

func (s *Server) handleAPITonight(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := s.coords(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.parseDate(r, lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.engine.Tonight(r.Context(), lat, lon, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := tonightResponse{Outlook: o}
	if s.narrator != nil && r.URL.Query().Get("summary") != "" {
		sum, err := s.narrator.Summarize(r.Context(), o)
		if err != nil {
			s.log.Warn("summary failed", "error", err)
		} else {
			resp.Summary = &sum
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPINow(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := s.coords(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now, err := s.engine.Now(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, now)
}

type geomagneticResponse struct {
	Geomagnetic *models.BlendedGeomagnetic `json:"geomagnetic"`
	Adjustment  *models.LatitudeAdjustment `json:"adjustment,omitempty"`
	Updated     string                     `json:"updated"`
}

// handleAPIGeomagnetic serves the live blend, or the last stored snapshot
// aged to now when no source answers. An optional lat adds the latitude
// adjustment.
func (s *Server) handleAPIGeomagnetic(w http.ResponseWriter, r *http.Request) {
	var lat *float64
	if v := r.URL.Query().Get("lat"); v != "" {
		f, err := parseFloat("lat", v)
		if err == nil {
			err = models.ValidateCoordinates(f, 0)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		lat = &f
	}

	blend := s.engine.Geomagnetic(r.Context())
	if blend == nil {
		stored, err := s.store.LatestGeomagnetic()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		blend = geomagnetic.WithAge(stored, s.clock.Now(), s.cfg.SolarWind.StaleHours)
	}
	if blend == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no geomagnetic data available"})
		return
	}

	resp := geomagneticResponse{
		Geomagnetic: blend,
		Updated:     humanize.RelTime(blend.TimeTag, s.clock.Now(), "ago", "from now"),
	}
	if lat != nil {
		adj := geomagnetic.AdjustForLatitude(blend.GlobalScore10, *lat, &blend.KpProxy, s.cfg.AuroralOval)
		resp.Adjustment = &adj
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type windowResponse struct {
	Timezone string                 `json:"timezone"`
	Window   models.EveningWindow   `json:"window"`
	Halves   []models.EveningWindow `json:"halves"`
}

func (s *Server) handleAPIWindow(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := s.coords(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.parseDate(r, lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ref.IsZero() {
		ref = s.clock.Now()
	}
	win, err := s.resolver.Resolve(lat, lon, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	halves, err := s.resolver.Seasonal(lat, lon, ref)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, windowResponse{
		Timezone: s.resolver.Location(lat, lon).String(),
		Window:   win,
		Halves:   halves,
	})
}

func (s *Server) handleAPISpots(w http.ResponseWriter, r *http.Request) {
	if s.spots == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "spot suggestions are disabled"})
		return
	}
	lat, lon, err := s.coords(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ref, err := s.parseDate(r, lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ref.IsZero() {
		ref = s.clock.Now()
	}
	n := defaultSpots
	if v := r.URL.Query().Get("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSpots {
			s.writeError(w, r, &models.ValidationError{Field: "n", Reason: "must be between 1 and " + strconv.Itoa(maxSpots)})
			return
		}
	}
	list, err := s.spots.Suggest(r.Context(), lat, lon, ref, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []spots.Spot{}
	}
	s.writeJSON(w, http.StatusOK, list)
}

type ingestError struct {
	StartedAt time.Time `json:"startedAt"`
	Source    string    `json:"source"`
	Endpoint  string    `json:"endpoint"`
	Error     string    `json:"error"`
}

type rawPayloadView struct {
	*store.RawPayloadStats
	TotalSize string `json:"totalSize"`
}

type ingestHealthResponse struct {
	Days        int                         `json:"days"`
	Summary     []store.IngestHealthSummary `json:"summary"`
	Sources     []store.SourceStatus        `json:"sources"`
	Errors      []ingestError               `json:"recentErrors"`
	RawPayloads rawPayloadView              `json:"rawPayloads"`
}

func (s *Server) handleAPIIngestHealth(w http.ResponseWriter, r *http.Request) {
	days := defaultIngestDays
	if v := r.URL.Query().Get("days"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 1 {
			s.writeError(w, r, &models.ValidationError{Field: "days", Reason: "must be a positive integer"})
			return
		}
		days = d
	}

	summary, err := s.store.GetIngestHealth(days)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	runs, err := s.store.GetRecentIngestErrors(recentErrorLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sources, err := s.store.GetSourceStatuses()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.store.GetRawPayloadStats()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := ingestHealthResponse{
		Days:        days,
		Summary:     summary,
		Sources:     sources,
		Errors:      make([]ingestError, 0, len(runs)),
		RawPayloads: rawPayloadView{RawPayloadStats: stats, TotalSize: humanize.Bytes(uint64(stats.TotalSizeBytes))},
	}
	if resp.Summary == nil {
		resp.Summary = []store.IngestHealthSummary{}
	}
	if resp.Sources == nil {
		resp.Sources = []store.SourceStatus{}
	}
	for _, run := range runs {
		resp.Errors = append(resp.Errors, ingestError{
			StartedAt: run.StartedAt,
			Source:    run.Source,
			Endpoint:  run.Endpoint,
			Error:     run.ErrorMessage.String,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleAPIIngestRaw serves an archived response by ?id=, or the newest
// one for ?source=.
func (s *Server) handleAPIIngestRaw(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		body []byte
		err  error
	)
	switch {
	case q.Get("id") != "":
		id, perr := strconv.ParseInt(q.Get("id"), 10, 64)
		if perr != nil || id < 1 {
			s.writeError(w, r, &models.ValidationError{Field: "id", Reason: "must be a positive integer"})
			return
		}
		body, err = s.store.GetRawPayload(id)
		if errors.Is(err, sql.ErrNoRows) {
			body, err = nil, nil
		}
	case q.Get("source") != "":
		body, err = s.store.GetLatestRawPayload(q.Get("source"))
	default:
		s.writeError(w, r, &models.ValidationError{Field: "source", Reason: "required"})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if body == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no payload stored"})
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(body))
	w.Write(body)
}

// coords reads ?location=id from the tracked locations, or ?lat=&lon=.
func (s *Server) coords(r *http.Request) (float64, float64, error) {
	id := r.URL.Query().Get("location")
	if id == "" {
		return parseCoords(r)
	}
	loc, err := s.store.GetLocation(id)
	if err != nil {
		return 0, 0, err
	}
	if loc == nil {
		return 0, 0, &models.ValidationError{Field: "location", Reason: "unknown id " + strconv.Quote(id)}
	}
	return loc.Latitude, loc.Longitude, nil
}

func parseCoords(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	lat, err := parseFloat("lat", q.Get("lat"))
	if err != nil {
		return 0, 0, err
	}
	lon, err := parseFloat("lon", q.Get("lon"))
	if err != nil {
		return 0, 0, err
	}
	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func parseFloat(field, v string) (float64, error) {
	if v == "" {
		return 0, &models.ValidationError{Field: field, Reason: "required"}
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &models.ValidationError{Field: field, Reason: "not a number"}
	}
	return f, nil
}

// parseDate turns ?date=YYYY-MM-DD into local noon at the location, which
// selects that evening's window. No date yields the zero time.
func (s *Server) parseDate(r *http.Request, lat, lon float64) (time.Time, error) {
	v := r.URL.Query().Get("date")
	if v == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, v, s.resolver.Location(lat, lon))
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: "date", Reason: "expected YYYY-MM-DD"}
	}
	return d.Add(12 * time.Hour), nil
}
