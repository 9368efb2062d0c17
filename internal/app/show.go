package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"broadcast-board/internal/normalize"
	"broadcast-board/internal/storage"
)

// Show prints recent slots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx, "show slots")
	if err != nil {
		return err
	}
	defer closeStore()

	slots, err := store.ListRecentSlots(ctx, a.Config.ResolveShowLimit(opts.Limit))
	if err != nil {
		return err
	}
	return writeSlots(os.Stdout, slots, time.Now())
}

// writeSlots renders slots as a table; status is derived at now rather than
// read from the stored column.
func writeSlots(out io.Writer, slots []storage.Slot, now time.Time) error {
	if len(slots) == 0 {
		_, err := fmt.Fprintln(out, "no slots found")
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tStart (UTC)\tChannel\tStatus\tSale\tOriginal\tDiscount%\tTitle")

	for _, slot := range slots {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			slot.ID,
			slot.StartAt.UTC().Format(time.RFC3339),
			slot.ChannelCode,
			storage.ComputeStatus(slot.StartAt, slot.EndAt, now),
			normalize.FormatPrice(slot.SalePrice),
			normalize.FormatPrice(slot.OriginalPrice),
			formatRate(slot.DiscountRate),
			sanitizeInline(slot.NormalizedTitle),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatRate(v *float64) string {
	if v == nil {
		return "-"
	}
	return decimal.NewFromFloat(*v).StringFixed(1)
}
