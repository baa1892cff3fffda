package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"vault-watcher/internal/monitor"
)

// Show prints recent samples.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, err := a.openReadStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show samples")
	}
	defer store.Close()

	samples, err := store.ListRecent(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(a.Out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tName\tAddress\tValue")

	for _, sample := range samples {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			sample.Timestamp.UTC().Format(time.RFC3339),
			sanitizeInline(sample.Name),
			sample.Address,
			formatValue(sample.Value),
		)
	}

	return writer.Flush()
}

// Inspect initializes the account cache once and prints it without polling.
func (a *App) Inspect(ctx context.Context) error {
	cache, err := a.initialize(ctx, a.newReader())
	if err != nil {
		return err
	}
	return writeCache(a.Out, cache)
}

func writeCache(out io.Writer, cache []*monitor.MonitoredAccount) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tKind\tAddress\tPolled\tBalance\tDecimals\tThreshold/tick\tMin\tSlot\tAuthority")

	for _, acc := range cache {
		polled := ""
		if acc.Address != acc.ConfiguredAddress {
			polled = acc.Address.String()
		}
		balance, decimals, threshold, floor, slot, authority := "-", "-", "-", "-", "-", "-"
		if v := acc.Vault; v != nil {
			balance = formatValue(v.Balance)
			decimals = strconv.Itoa(int(v.Decimals))
			if v.MaxChange != nil {
				threshold = formatValue(v.MaxChange.ThresholdPerTick)
			}
			if v.MinAmountThreshold != nil {
				floor = formatValue(*v.MinAmountThreshold)
			}
		}
		if p := acc.Program; p != nil {
			slot = strconv.FormatUint(p.LastDeploySlot, 10)
			authority = monitor.FormatAuthority(p.UpgradeAuthority)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sanitizeInline(acc.Name),
			acc.Kind,
			acc.ConfiguredAddress,
			polled,
			balance,
			decimals,
			threshold,
			floor,
			slot,
			authority,
		)
	}

	return writer.Flush()
}

func formatValue(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
