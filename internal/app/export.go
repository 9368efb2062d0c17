package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/xuri/excelize/v2"

	"broadcast-board/internal/normalize"
	"broadcast-board/internal/storage"
)

const historySheet = "price_history"

var historyHeader = []string{"collected_at", "sale_price", "original_price", "discount_rate"}

// Export writes the price history of one slot as CSV, PNG and/or XLSX.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" && opts.XLSXPath == "" {
		return errors.New("at least one of --csv, --png or --xlsx must be provided")
	}
	if opts.SlotID <= 0 {
		return errors.New("--slot must be a positive slot id")
	}

	store, closeStore, err := a.requireStore(ctx, "export")
	if err != nil {
		return err
	}
	defer closeStore()

	slot, err := store.GetSlot(ctx, opts.SlotID)
	if err != nil {
		return err
	}
	history, err := store.ListPriceHistory(ctx, opts.SlotID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		a.Logger.Info().Int64("slot_id", opts.SlotID).Msg("no price history recorded for slot")
		return nil
	}

	a.Logger.Info().
		Int64("slot_id", slot.ID).
		Str("title", slot.NormalizedTitle).
		Int("points", len(history)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeHistoryCSV(opts.CSVPath, history); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeHistoryPNG(opts.PNGPath, slot, history); err != nil {
			return err
		}
	}
	if opts.XLSXPath != "" {
		if err := writeHistoryXLSX(opts.XLSXPath, history); err != nil {
			return err
		}
	}
	return nil
}

func historyRecord(h storage.PriceHistory) []string {
	return []string{
		h.CollectedAt.UTC().Format(time.RFC3339),
		optional(h.SalePrice, normalize.FormatPrice),
		optional(h.OriginalPrice, normalize.FormatPrice),
		optional(h.DiscountRate, formatRate),
	}
}

func optional[T any](v *T, format func(*T) string) string {
	if v == nil {
		return ""
	}
	return format(v)
}

func writeHistoryCSV(path string, history []storage.PriceHistory) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(historyHeader); err != nil {
		return err
	}
	for _, h := range history {
		if err := writer.Write(historyRecord(h)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHistoryXLSX(path string, history []storage.PriceHistory) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return err
	}

	header := make([]any, len(historyHeader))
	for i, h := range historyHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return err
	}

	for i, h := range history {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{h.CollectedAt.UTC().Format(time.RFC3339), nil, nil, nil}
		if h.SalePrice != nil {
			row[1] = *h.SalePrice
		}
		if h.OriginalPrice != nil {
			row[2] = *h.OriginalPrice
		}
		if h.DiscountRate != nil {
			row[3] = *h.DiscountRate
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return err
		}
	}

	return f.SaveAs(path)
}

func writeHistoryPNG(path string, slot storage.Slot, history []storage.PriceHistory) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	var saleX, originalX []time.Time
	var sale, original []float64
	for _, h := range history {
		if h.SalePrice != nil {
			saleX = append(saleX, h.CollectedAt)
			sale = append(sale, float64(*h.SalePrice))
		}
		if h.OriginalPrice != nil {
			originalX = append(originalX, h.CollectedAt)
			original = append(original, float64(*h.OriginalPrice))
		}
	}
	if len(sale) < 2 && len(original) < 2 {
		return errors.New("not enough price points to chart")
	}

	var series []chart.Series
	if len(sale) >= 2 {
		series = append(series, chart.TimeSeries{Name: "Sale", XValues: saleX, YValues: sale})
	}
	if len(original) >= 2 {
		series = append(series, chart.TimeSeries{Name: "Original", XValues: originalX, YValues: original})
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  slot.NormalizedTitle,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (KRW)",
			ValueFormatter: priceFormatter,
		},
		Series: series,
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
