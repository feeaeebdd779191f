package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"snore-monitor-service/internal/models"
	"snore-monitor-service/internal/store"
)

var (
	reportPeriod string
	reportJSON   bool
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions started in a period",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	addReportFlags(cmd)
	return cmd
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics and daily snore counts for a period",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	addReportFlags(cmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&reportPeriod, "period", string(models.PeriodSevenDays), "7d, 30d or all")
	cmd.Flags().BoolVar(&reportJSON, "json", false, "print JSON")
}

// openReportStore parses the period and opens the database read-side.
func openReportStore() (*store.Store, time.Time, time.Time, error) {
	period, err := models.ParsePeriod(reportPeriod)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("failed to open store: %w", err)
	}
	from, to := period.Range(time.Now())
	return st, from, to, nil
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	st, from, to, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	sessions, err := st.QuerySessionsInRange(context.Background(), from, to)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	out := cmd.OutOrStdout()
	if reportJSON {
		return writeJSON(out, sessions)
	}
	writeSessions(out, sessions)
	return nil
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	st, from, to, err := openReportStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	stats, err := st.QueryAggregateStats(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to query stats: %w", err)
	}
	daily, err := st.QueryDailyCounts(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to query daily counts: %w", err)
	}

	out := cmd.OutOrStdout()
	if reportJSON {
		return writeJSON(out, struct {
			Period string                `json:"period"`
			Stats  models.AggregateStats `json:"stats"`
			Daily  []models.DailyCount   `json:"daily"`
		}{reportPeriod, stats, daily})
	}
	writeStats(out, reportPeriod, stats, daily)
	return nil
}

func writeSessions(out io.Writer, sessions []models.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions in this period.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tMINUTES\tSNORES\tMAX")
	for _, s := range sessions {
		minutes := "running"
		if s.Finalized() {
			minutes = fmt.Sprint(s.DurationMinutes)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.0f\n",
			s.ID, s.StartTime.Local().Format("2006-01-02 15:04"), minutes, s.SnoreCount, s.MaxAmplitude)
	}
	_ = tw.Flush()
}

func writeStats(out io.Writer, period string, stats models.AggregateStats, daily []models.DailyCount) {
	fmt.Fprintf(out, "Period: %s\n", period)
	fmt.Fprintf(out, "  sessions:      %d\n", stats.TotalSessions)
	fmt.Fprintf(out, "  snores:        %d\n", stats.TotalSnores)
	fmt.Fprintf(out, "  avg amplitude: %.0f\n", stats.AvgAmplitude)
	fmt.Fprintf(out, "  max amplitude: %.0f\n", stats.MaxAmplitude)
	fmt.Fprintf(out, "  minutes:       %d\n", stats.TotalMinutes)
	if len(daily) == 0 {
		return
	}
	fmt.Fprintln(out, "Daily:")
	for _, d := range daily {
		fmt.Fprintf(out, "  %s  %d\n", d.Day.Format(time.DateOnly), d.Count)
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
