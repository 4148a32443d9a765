package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"listing-ledger/internal/receipt"
)

// Export renders receipt history as CSV and/or PNG.
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
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-30 * 24 * time.Hour)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	receipts, err := store.ListReceiptsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(receipts) == 0 {
		a.Logger.Info().Msg("no receipts found for export window")
		return nil
	}

	downsampled := downsampleReceipts(receipts, opts.MaxPoints)
	a.Logger.Info().Int("total", len(receipts)).Int("exported", len(downsampled)).Msg("exporting receipts")

	if opts.CSVPath != "" {
		if err := writeReceiptsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeReceiptsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReceipts(receipts []receipt.Receipt, max int) []receipt.Receipt {
	if max <= 0 || len(receipts) <= max {
		return receipts
	}

	result := make([]receipt.Receipt, 0, max)
	step := float64(len(receipts)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(receipts) {
			idx = len(receipts) - 1
		}
		result = append(result, receipts[idx])
	}
	return result
}

func writeReceiptsCSV(path string, receipts []receipt.Receipt) error {
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

	header := []string{"created_at", "receipt", "buyer", "product", "seed", "price_paid_native"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range receipts {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.Address().Hex(),
			r.Owner.Hex(),
			r.Product.Hex(),
			r.Seed.Hex(),
			strconv.FormatUint(r.PricePaidNative, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeReceiptsPNG(path string, receipts []receipt.Receipt) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(receipts))
	paid := make([]float64, len(receipts))
	for i, r := range receipts {
		x[i] = r.Timestamp
		paid[i] = float64(r.PricePaidNative)
	}

	amountFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Paid (native base units)",
			ValueFormatter: amountFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price paid",
				XValues: x,
				YValues: paid,
			},
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
