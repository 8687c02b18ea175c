package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/confluence-bot/internal/exchange"
	"github.com/ducminhle1904/confluence-bot/internal/journal"
	"github.com/ducminhle1904/confluence-bot/internal/logger"
)

const journalTimeLayout = "2006-01-02 15:04"

func newJournalCmd(root *rootOptions) *cobra.Command {
	var (
		path  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Summarize a decision journal",
		Long: `Print the outcome counts, the latest bar decisions and the risk events
recorded in a SQLite decision journal.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				cfg, err := root.load()
				if err != nil {
					return err
				}
				path = cfg.Journal.Path
			}
			j, err := journal.Open(path, exchange.Identity{}, logger.Nop())
			if err != nil {
				return err
			}
			defer j.Close()
			return renderJournal(cmd.Context(), cmd.OutOrStdout(), j, limit)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Journal file (defaults to journal.path)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent decisions to show")
	return cmd
}

func renderJournal(ctx context.Context, w io.Writer, j *journal.Journal, limit int) error {
	counts, err := j.ReasonCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count decisions: %w", err)
	}
	if len(counts) == 0 {
		fmt.Fprintln(w, "ℹ️ No decisions recorded")
		return nil
	}

	reasons := make([]string, 0, len(counts))
	total := 0
	for r, n := range counts {
		reasons = append(reasons, r)
		total += n
	}
	sort.Slice(reasons, func(a, b int) bool {
		if counts[reasons[a]] != counts[reasons[b]] {
			return counts[reasons[a]] > counts[reasons[b]]
		}
		return reasons[a] < reasons[b]
	})

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("OUTCOMES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Reason", "Bars", "Share"})
	for _, r := range reasons {
		t.AppendRow(table.Row{r, counts[r], fmt.Sprintf("%.1f%%", float64(counts[r])/float64(total)*100)})
	}
	t.AppendFooter(table.Row{"Total", total, ""})
	t.Render()
	fmt.Fprintln(w)

	decisions, err := j.Decisions(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to read decisions: %w", err)
	}
	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RECENT DECISIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Bar", "TF", "Reason", "Candidate", "Strength", "Error"})
	for _, d := range decisions {
		t.AppendRow(table.Row{d.BarTime.UTC().Format(journalTimeLayout), d.Timeframe, d.Reason, d.Candidate, fmt.Sprintf("%.2f", d.Strength), d.Error})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, WidthMax: 40, Align: text.AlignLeft},
	})
	t.Render()
	fmt.Fprintln(w)

	events, err := j.RiskEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to read risk events: %w", err)
	}
	orders, err := j.Orders(ctx)
	if err != nil {
		return fmt.Errorf("failed to read orders: %w", err)
	}
	failed := 0
	for _, o := range orders {
		if o.Error != "" {
			failed++
		}
	}
	fmt.Fprintf(w, "📋 Orders: %d placed, %d failed\n", len(orders)-failed, failed)

	if len(events) == 0 {
		return nil
	}
	t = table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("RISK EVENTS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Event", "Daily Loss", "Drawdown"})
	for _, e := range events {
		t.AppendRow(table.Row{e.At.UTC().Format(journalTimeLayout), e.Event,
			fmt.Sprintf("%.2f%%", e.DailyLossPercent), fmt.Sprintf("%.2f%%", e.DrawdownPercent)})
	}
	t.Render()
	return nil
}
