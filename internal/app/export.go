package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"metal-rates-alerts/internal/storage"
)

// Export renders stored rates as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer closeStore()

	from := a.Config.Source.StartDate.UTC()
	if opts.From != nil {
		from = opts.From.UTC()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rates, err := store.ListRatesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(rates) == 0 {
		a.Logger.Info().Msg("no rates found for export window")
		return nil
	}

	downsampled := downsampleRates(rates, opts.MaxPoints)
	a.Logger.Info().Int("total", len(rates)).Int("exported", len(downsampled)).Msg("exporting rates")

	if opts.CSVPath != "" {
		if err := writeRatesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRatesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleRates(rates []storage.MetalRate, max int) []storage.MetalRate {
	if max <= 0 || len(rates) <= max {
		return rates
	}

	result := make([]storage.MetalRate, 0, max)
	step := float64(len(rates)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rates) {
			idx = len(rates) - 1
		}
		result = append(result, rates[idx])
	}
	return result
}

func writeRatesCSV(path string, rates []storage.MetalRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "gold", "silver", "platinum", "palladium"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rate := range rates {
		record := []string{
			rate.Date.Format(time.DateOnly),
			csvDecimal(rate.Gold),
			csvDecimal(rate.Silver),
			csvDecimal(rate.Platinum),
			csvDecimal(rate.Palladium),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func csvDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

// metalSeries collects the non-null points of one metal across the export window.
type metalSeries struct {
	name   string
	pick   func(storage.MetalRate) *decimal.Decimal
	x      []time.Time
	y      []float64
	second bool
}

func writeRatesPNG(path string, rates []storage.MetalRate) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	// Silver trades two orders of magnitude below the other metals,
	// so it gets the secondary axis.
	series := []*metalSeries{
		{name: "Gold", pick: func(r storage.MetalRate) *decimal.Decimal { return r.Gold }},
		{name: "Silver", pick: func(r storage.MetalRate) *decimal.Decimal { return r.Silver }, second: true},
		{name: "Platinum", pick: func(r storage.MetalRate) *decimal.Decimal { return r.Platinum }},
		{name: "Palladium", pick: func(r storage.MetalRate) *decimal.Decimal { return r.Palladium }},
	}

	for _, s := range series {
		for _, rate := range rates {
			value := s.pick(rate)
			if value == nil {
				continue
			}
			s.x = append(s.x, rate.Date)
			s.y = append(s.y, value.InexactFloat64())
		}
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "RUB per gram",
			ValueFormatter: valueFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "RUB per gram (silver)",
			ValueFormatter: valueFormatter,
		},
	}

	for _, s := range series {
		if len(s.x) == 0 {
			continue
		}
		ts := chart.TimeSeries{
			Name:    s.name,
			XValues: s.x,
			YValues: s.y,
		}
		if s.second {
			ts.YAxis = chart.YAxisSecondary
		}
		graph.Series = append(graph.Series, ts)
	}

	if len(graph.Series) == 0 {
		return errors.New("no plottable values in the export window")
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
