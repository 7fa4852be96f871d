package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lox/aurorawatch/internal/api"
	"github.com/lox/aurorawatch/internal/geomagnetic"
	"github.com/lox/aurorawatch/internal/models"
	"github.com/lox/aurorawatch/internal/outlook"
	"github.com/lox/aurorawatch/internal/spots"
)

type ServeCmd struct {
	Port      string   `help:"HTTP server port." default:"8080" env:"PORT"`
	NoPoll    bool     `help:"Disable the refresh scheduler (server only, for local dev)."`
	Locations []string `name:"location" help:"Location to keep refreshed, as id=lat,lon. Defaults to the configured light zones."`
}

func (c *ServeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := a.seedLocations(st, c.Locations); err != nil {
		return err
	}
	a.useStore(st)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !c.NoPoll {
		go a.scheduler(st).Run(ctx)
	} else {
		a.log.Info("polling disabled (--no-poll)")
	}

	server := api.NewServer(a.cfg, st, a.engine, a.resolver, c.Port, a.clock, a.log).
		WithSpots(a.spots).
		WithNarrator(a.narrator)
	return server.Run(ctx)
}

type ScoreCmd struct {
	Lat     float64 `arg:"" help:"Latitude in degrees."`
	Lon     float64 `arg:"" help:"Longitude in degrees."`
	Date    string  `help:"Evening to score (YYYY-MM-DD, local). Defaults to tonight."`
	Summary bool    `help:"Print a plain-language summary."`
	JSON    bool    `name:"json" help:"Print JSON."`
}

func (c *ScoreCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ref, err := parseDate(c.Date, a.resolver.Location(c.Lat, c.Lon), a.clock.Now())
	if err != nil {
		return err
	}
	ctx := context.Background()
	o, err := a.engine.Tonight(ctx, c.Lat, c.Lon, ref)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, o)
	}
	printOutlook(os.Stdout, o, a.clock.Now())
	if c.Summary {
		s, err := a.narrator.Summarize(ctx, o)
		if err != nil {
			return err
		}
		fmt.Printf("\n%s\n", s.Text)
	}
	return nil
}

type WindowCmd struct {
	Lat  float64 `arg:"" help:"Latitude in degrees."`
	Lon  float64 `arg:"" help:"Longitude in degrees."`
	Date string  `help:"Evening to resolve (YYYY-MM-DD, local). Defaults to tonight."`
}

func (c *WindowCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	loc := a.resolver.Location(c.Lat, c.Lon)
	ref, err := parseDate(c.Date, loc, a.clock.Now())
	if err != nil {
		return err
	}
	w, err := a.resolver.Resolve(c.Lat, c.Lon, ref)
	if err != nil {
		return err
	}
	halves, err := a.resolver.Seasonal(c.Lat, c.Lon, ref)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "zone\t%s\n", loc)
	fmt.Fprintf(tw, "window\t%s\t%s\t%s (%s)\n", w.Start.In(loc).Format("Mon 15:04"), w.End.In(loc).Format("Mon 15:04"), w.Source, hours(w.Hours()))
	for _, h := range halves {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", h.Label, h.Start.In(loc).Format("15:04"), h.End.In(loc).Format("15:04"), hours(h.Hours()))
	}
	return tw.Flush()
}

type RefreshCmd struct {
	Locations []string `name:"location" help:"Location to refresh, as id=lat,lon. Defaults to the configured light zones."`
}

func (c *RefreshCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	st, closeDB, err := openStore(g.DB)
	if err != nil {
		return err
	}
	defer closeDB()
	if err := a.seedLocations(st, c.Locations); err != nil {
		return err
	}
	a.useStore(st)

	blend := a.scheduler(st).RefreshOnce(context.Background())
	if blend == nil {
		fmt.Println("no geomagnetic source answered")
		return nil
	}
	printBlend(os.Stdout, blend, nil, a.clock.Now())
	return nil
}

type GeomagneticCmd struct {
	Lat  string `help:"Latitude for the local adjustment."`
	JSON bool   `name:"json" help:"Print JSON."`
}

func (c *GeomagneticCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	blend := a.engine.Geomagnetic(context.Background())
	if blend == nil {
		return errors.New("no geomagnetic source available")
	}

	var adj *models.LatitudeAdjustment
	if c.Lat != "" {
		lat, err := strconv.ParseFloat(c.Lat, 64)
		if err != nil {
			return fmt.Errorf("lat: %w", err)
		}
		if err := models.ValidateCoordinates(lat, 0); err != nil {
			return err
		}
		v := geomagnetic.AdjustForLatitude(blend.GlobalScore10, lat, &blend.KpProxy, a.cfg.AuroralOval)
		adj = &v
	}
	if c.JSON {
		return printJSON(os.Stdout, map[string]any{"geomagnetic": blend, "adjustment": adj})
	}
	printBlend(os.Stdout, blend, adj, a.clock.Now())
	return nil
}

type SpotsCmd struct {
	Lat  float64 `arg:"" help:"Latitude in degrees."`
	Lon  float64 `arg:"" help:"Longitude in degrees."`
	Date string  `help:"Evening to plan for (YYYY-MM-DD, local). Defaults to tonight."`
	N    int     `short:"n" help:"Number of spots to show." default:"5"`
	JSON bool    `name:"json" help:"Print JSON."`
}

func (c *SpotsCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	ref, err := parseDate(c.Date, a.resolver.Location(c.Lat, c.Lon), a.clock.Now())
	if err != nil {
		return err
	}
	list, err := a.spots.Suggest(context.Background(), c.Lat, c.Lon, ref, c.N)
	if err != nil {
		return err
	}
	if c.JSON {
		return printJSON(os.Stdout, list)
	}
	printSpots(os.Stdout, list)
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printOutlook(w io.Writer, o *outlook.Outlook, now time.Time) {
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		loc = time.UTC
	}
	fmt.Fprintf(w, "%.4f, %.4f  %s  light: %s\n", o.Latitude, o.Longitude, loc, o.Light.Category)
	fmt.Fprintf(w, "window %s to %s (%s)\n", o.Window.Start.In(loc).Format("Mon 15:04"), o.Window.End.In(loc).Format("Mon 15:04"), o.Window.Source)
	if o.Geomagnetic != nil {
		printBlend(w, o.Geomagnetic, o.Adjustment, now)
	} else {
		fmt.Fprintln(w, "geomagnetic: no data")
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "hour\tclouds\tmethod\tsun\tmoon\tscore")
	for _, h := range o.Hours {
		in := h.Sightability.Inputs
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f°\t%s\t%s\n",
			h.Time.In(loc).Format("15:04"),
			pct(h.Consensus.ConsensusPct),
			h.Consensus.Method,
			in.SunAltitudeDeg,
			moon(in),
			humanize.FtoaWithDigits(h.Sightability.Score, 1),
		)
	}
	tw.Flush()

	for _, st := range o.Stats {
		avg := "-"
		if st.AvgScore != nil {
			avg = humanize.FtoaWithDigits(*st.AvgScore, 1)
		}
		fmt.Fprintf(w, "%s: %d hours, avg score %s, clouds %s\n", st.Label, st.HourCount, avg, pct(st.AvgCloudsPct))
	}
	if o.Best != nil {
		fmt.Fprintf(w, "best: %s (score %s)\n", o.Best.Time.In(loc).Format("15:04"), humanize.FtoaWithDigits(o.Best.Sightability.Score, 1))
	}
}

func printBlend(w io.Writer, b *models.BlendedGeomagnetic, adj *models.LatitudeAdjustment, now time.Time) {
	fmt.Fprintf(w, "geomagnetic: Kp %s, score %s/10, %s, updated %s\n",
		humanize.FtoaWithDigits(b.KpProxy, 1),
		humanize.FtoaWithDigits(b.GlobalScore10, 1),
		b.StaleStatus,
		humanize.RelTime(b.TimeTag, now, "ago", "from now"),
	)
	for _, p := range b.Detail.Parts {
		fmt.Fprintf(w, "  %-10s Kp %-4s weight %s\n", p.Kind, humanize.FtoaWithDigits(p.KpEquivalent, 1), humanize.FtoaWithDigits(p.NormalizedWeight, 2))
	}
	if adj != nil {
		fmt.Fprintf(w, "local: %s/10 (%s, oval edge %.1f°)\n", humanize.FtoaWithDigits(adj.AdjustedScore10, 1), adj.Label, adj.BoundaryLat)
	}
}

func printSpots(w io.Writer, list []spots.Spot) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "score\tdistance\tbearing\tlight\tlat\tlon\twhy")
	for _, s := range list {
		why := strings.Join(s.Reasons, "; ")
		fmt.Fprintf(tw, "%s\t%s km\t%.0f°\t%s\t%.4f\t%.4f\t%s\n",
			humanize.FtoaWithDigits(s.Score, 1),
			humanize.FtoaWithDigits(s.DistanceKm, 1),
			s.BearingDeg, s.Light.Category, s.Latitude, s.Longitude, why)
	}
	tw.Flush()
}

func pct(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", int(math.Round(*p)))
}

func moon(in models.SightabilityInputs) string {
	return fmt.Sprintf("%d%% at %.0f°", int(math.Round(in.MoonIlluminationFraction*100)), in.MoonAltitudeDeg)
}

func hours(h float64) string {
	return humanize.FtoaWithDigits(h, 1) + "h"
}
