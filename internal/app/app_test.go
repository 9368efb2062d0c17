package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"broadcast-board/internal/config"
	"broadcast-board/internal/storage"
)

func int64p(v int64) *int64       { return &v }
func float64p(v float64) *float64 { return &v }

func sampleHistory() []storage.PriceHistory {
	base := time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC)
	return []storage.PriceHistory{
		{SlotID: 7, CollectedAt: base, SalePrice: int64p(39900), OriginalPrice: int64p(59000), DiscountRate: float64p(32.4)},
		{SlotID: 7, CollectedAt: base.Add(30 * time.Minute), SalePrice: int64p(35900)},
	}
}

func TestWriteSlotsRecomputesStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 1, 30, 0, 0, time.UTC)
	slots := []storage.Slot{{
		ID:              1,
		ChannelCode:     "gsshop",
		StartAt:         now.Add(-10 * time.Minute),
		EndAt:           now.Add(50 * time.Minute),
		NormalizedTitle: "주방 밀폐용기\n세트",
		Status:          storage.StatusScheduled,
		SalePrice:       int64p(39900),
		DiscountRate:    float64p(32.4),
	}}

	var buf bytes.Buffer
	if err := writeSlots(&buf, slots, now); err != nil {
		t.Fatalf("writeSlots: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"LIVE", "gsshop", "39900", "32.4", "주방 밀폐용기 세트"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SCHEDULED") {
		t.Fatalf("stored status leaked into output:\n%s", out)
	}
}

func TestWriteSlotsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSlots(&buf, nil, time.Now()); err != nil {
		t.Fatalf("writeSlots: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "no slots found" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriteHistoryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "history.csv")
	if err := writeHistoryCSV(path, sampleHistory()); err != nil {
		t.Fatalf("writeHistoryCSV: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	if got := strings.Join(records[1], ","); got != "2026-03-10T01:00:00Z,39900,59000,32.4" {
		t.Fatalf("row 1 = %q", got)
	}
	if got := strings.Join(records[2], ","); got != "2026-03-10T01:30:00Z,35900,," {
		t.Fatalf("row 2 = %q", got)
	}
}

func TestWriteHistoryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.xlsx")
	if err := writeHistoryXLSX(path, sampleHistory()); err != nil {
		t.Fatalf("writeHistoryXLSX: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()

	header, err := f.GetCellValue(historySheet, "B1")
	if err != nil || header != "sale_price" {
		t.Fatalf("B1 = %q, %v", header, err)
	}
	sale, err := f.GetCellValue(historySheet, "B3")
	if err != nil || sale != "35900" {
		t.Fatalf("B3 = %q, %v", sale, err)
	}
	original, err := f.GetCellValue(historySheet, "C3")
	if err != nil || original != "" {
		t.Fatalf("C3 = %q, %v", original, err)
	}
}

func TestExportRequiresOutputAndDatabase(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())

	if err := a.Export(context.Background(), ExportOptions{SlotID: 1}); err == nil {
		t.Fatal("expected error without output paths")
	}
	err := a.Export(context.Background(), ExportOptions{SlotID: 1, CSVPath: "x.csv"})
	if err == nil || !strings.Contains(err.Error(), "database not configured") {
		t.Fatalf("err = %v, want database not configured", err)
	}
}

func TestNewAppTagsLoggerWithEnvironment(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{App: config.AppConfig{Name: "boardbatch", Environment: "production"}}
	a := NewApp(cfg, zerolog.New(&buf))

	a.Logger.Info().Msg("starting")
	out := buf.String()
	for _, want := range []string{`"environment":"production"`, `"app":"boardbatch"`, `"component":"app"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q misses %s", out, want)
		}
	}
}
