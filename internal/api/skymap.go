package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/skyfront-data/shower.report/internal/recondb"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSkymap renders reconstructed arrival directions as an XY scatter
// (HTML) using go-echarts. The polar sky coordinates are projected with
// zenith as radius, so straight-up showers land in the middle of the plot.
// This is a debugging-only endpoint (no auth).
// Query params:
//   - station (renders that station's event reconstructions)
//   - source=coincidences (renders the coincidence reconstructions instead)
func (s *Server) handleSkymap(w http.ResponseWriter, r *http.Request) {
	var (
		points   []opts.ScatterData
		maxValue float64
		title    string
		subtitle string
	)

	if r.URL.Query().Get("source") == "coincidences" {
		store := recondb.NewCoincidenceStore(s.db)
		exists, err := store.HasReconstructions()
		if err != nil || !exists {
			s.writeJSONError(w, http.StatusNotFound, "no coincidence reconstructions available")
			return
		}
		results, err := store.Reconstructions()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get reconstructions: %v", err))
			return
		}
		for _, res := range results {
			x := res.Zenith * math.Cos(res.Azimuth)
			y := res.Zenith * math.Sin(res.Azimuth)
			n := float64(len(res.StationNumbers))
			if n > maxValue {
				maxValue = n
			}
			points = append(points, opts.ScatterData{Value: []interface{}{x, y, n}})
		}
		title = "Coincidence Sky Map"
		subtitle = fmt.Sprintf("points=%d (color: participating stations)", len(points))
	} else {
		station, ok := s.stationParam(w, r)
		if !ok {
			return
		}
		store := recondb.NewEventStore(s.db, station)
		exists, err := store.HasReconstructions()
		if err != nil || !exists {
			s.writeJSONError(w, http.StatusNotFound, fmt.Sprintf("no reconstructions for station %d", station))
			return
		}
		results, err := store.Reconstructions()
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to get reconstructions: %v", err))
			return
		}
		for _, res := range results {
			x := res.Zenith * math.Cos(res.Azimuth)
			y := res.Zenith * math.Sin(res.Azimuth)
			if res.MinN > maxValue {
				maxValue = res.MinN
			}
			points = append(points, opts.ScatterData{Value: []interface{}{x, y, res.MinN}})
		}
		title = fmt.Sprintf("Station %d Sky Map", station)
		subtitle = fmt.Sprintf("points=%d (color: minimum particle density)", len(points))
	}

	if maxValue == 0 {
		maxValue = 1
	}
	// zenith never exceeds a quarter turn; pad so horizon points stay visible
	pad := math.Pi / 2 * 1.05

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sky Map (Polar->XY)", Theme: "dark", Width: "900px", Height: "900px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "zenith*cos(azimuth) (rad)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "zenith*sin(azimuth) (rad)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxValue),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}},
		}),
	)
	scatter.AddSeries("directions", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
