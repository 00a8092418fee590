package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/lhildreth66/Routecast2-sub001/internal/domain"
	"github.com/lhildreth66/Routecast2-sub001/internal/risk"
)

// riskPoint is one scored hour of an exported timeline.
type riskPoint struct {
	Forecast domain.HourlyForecast
	Risk     domain.RiskScore
}

// Export renders the hourly risk timeline for a location as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Hours <= 0 {
		return errors.New("--hours must be greater than zero")
	}

	from := time.Now().UTC().Truncate(time.Hour)
	if opts.From != nil {
		from = opts.From.UTC().Truncate(time.Hour)
	}

	rdb := a.newRedis()
	if rdb != nil {
		defer rdb.Close()
	}
	fctx, cancel := context.WithTimeout(ctx, a.Config.Forecast.RequestTimeout)
	defer cancel()
	hourly, err := a.newForecast(rdb).Hourly(fctx, opts.Lat, opts.Lon, from, opts.Hours)
	if err != nil {
		return err
	}
	if len(hourly) == 0 {
		a.Logger.Info().Msg("no forecast hours for export window")
		return nil
	}

	points := scoreTimeline(risk.NewModel(a.Config.Risk), hourly)
	downsampled := downsamplePoints(points, a.Config.ResolveMaxPoints(opts.MaxPoints))
	a.Logger.Info().Int("total", len(points)).Int("exported", len(downsampled)).Msg("exporting risk timeline")

	if opts.CSVPath != "" {
		if err := writeTimelineCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeTimelinePNG(opts.PNGPath, opts.Lat, opts.Lon, downsampled); err != nil {
			return err
		}
	}
	return nil
}

func scoreTimeline(model *risk.Model, hourly []domain.HourlyForecast) []riskPoint {
	points := make([]riskPoint, len(hourly))
	for i, h := range hourly {
		points[i] = riskPoint{Forecast: h, Risk: model.Score(h)}
	}
	return points
}

func downsamplePoints(points []riskPoint, max int) []riskPoint {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[:1]
	}

	result := make([]riskPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func writeTimelineCSV(path string, points []riskPoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{"time", "wind_kmh", "precip_mm", "temp_c", "advisories", "wind_risk", "precip_risk", "cold_risk", "severe_risk", "overall_risk"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		record := []string{
			p.Forecast.Time.UTC().Format(time.RFC3339),
			formatFloat(p.Forecast.WindSpeed),
			formatFloat(p.Forecast.Precipitation),
			formatFloat(p.Forecast.Temperature),
			strconv.Itoa(p.Forecast.SevereAdvisories),
			formatFloat(p.Risk.Wind),
			formatFloat(p.Risk.Precipitation),
			formatFloat(p.Risk.Temperature),
			formatFloat(p.Risk.Severe),
			formatFloat(p.Risk.Overall),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeTimelinePNG(path string, lat, lon float64, points []riskPoint) error {
	if len(points) < 2 {
		return errors.New("at least two hours are needed to draw a chart")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	overall := make([]float64, len(points))
	wind := make([]float64, len(points))
	precip := make([]float64, len(points))
	cold := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Forecast.Time
		overall[i] = p.Risk.Overall
		wind[i] = p.Risk.Wind
		precip[i] = p.Risk.Precipitation
		cold[i] = p.Risk.Temperature
	}

	scoreFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  fmt.Sprintf("Departure risk at %.3f, %.3f", lat, lon),
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Risk (0-100)",
			ValueFormatter: scoreFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: 100},
		},
		Series: []chart.Series{
			chart.TimeSeries{Name: "Overall", XValues: x, YValues: overall},
			chart.TimeSeries{Name: "Wind", XValues: x, YValues: wind},
			chart.TimeSeries{Name: "Precipitation", XValues: x, YValues: precip},
			chart.TimeSeries{Name: "Cold", XValues: x, YValues: cold},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
