package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vault-watcher/internal/storage"
)

// series is one account's samples in timestamp order.
type series struct {
	Name    string
	Samples []storage.Sample
}

// Export renders historical data as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, err := a.openReadStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	defer store.Close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Solana.RefreshPeriod)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListBetween(ctx, opts.Name, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Str("name", opts.Name).Msg("no samples found for export window")
		return nil
	}

	grouped := groupByName(samples)
	exported := 0
	for i := range grouped {
		grouped[i].Samples = downsampleSamples(grouped[i].Samples, opts.MaxPoints)
		exported += len(grouped[i].Samples)
	}
	a.Logger.Info().
		Int("total", len(samples)).
		Int("exported", exported).
		Int("accounts", len(grouped)).
		Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, grouped); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, grouped); err != nil {
			return err
		}
	}

	return nil
}

// groupByName splits samples per account, keeping first-seen account order.
func groupByName(samples []storage.Sample) []series {
	index := make(map[string]int)
	var out []series
	for _, sample := range samples {
		i, ok := index[sample.Name]
		if !ok {
			i = len(out)
			index[sample.Name] = i
			out = append(out, series{Name: sample.Name})
		}
		out[i].Samples = append(out[i].Samples, sample)
	}
	return out
}

func downsampleSamples(samples []storage.Sample, max int) []storage.Sample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.Sample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, grouped []series) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"timestamp", "name", "address", "value"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range grouped {
		for _, sample := range s.Samples {
			record := []string{
				sample.Timestamp.UTC().Format(time.RFC3339Nano),
				sample.Name,
				sample.Address,
				formatValue(sample.Value),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSamplesPNG(path string, grouped []series) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Balance",
			ValueFormatter: valueFormatter,
		},
	}

	for _, s := range grouped {
		// go-chart needs at least two points to draw a line
		if len(s.Samples) < 2 {
			continue
		}
		x := make([]time.Time, len(s.Samples))
		y := make([]float64, len(s.Samples))
		for i, sample := range s.Samples {
			x[i] = sample.Timestamp
			y[i] = sample.Value
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    s.Name,
			XValues: x,
			YValues: y,
		})
	}
	if len(graph.Series) == 0 {
		return errors.New("not enough samples to render a chart")
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
