package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrygo/tgmigrate/internal/destination"
	"github.com/hrygo/tgmigrate/internal/engine"
	"github.com/hrygo/tgmigrate/internal/enumerator"
	"github.com/hrygo/tgmigrate/internal/metricsreg"
	"github.com/hrygo/tgmigrate/internal/model"
	"github.com/hrygo/tgmigrate/internal/orchestrator"
	"github.com/hrygo/tgmigrate/internal/progress"
	"github.com/hrygo/tgmigrate/internal/ratelimit"
	"github.com/hrygo/tgmigrate/internal/realtime"
	"github.com/hrygo/tgmigrate/internal/report"
)

var (
	flagDryRun bool
	flagDialog string
	flagFrom   string
	flagTo     string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the configured account's conversation history.",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "enumerate and classify conversations without creating destinations or forwarding")
	migrateCmd.Flags().StringVar(&flagDialog, "dialog", "", "restrict the run to a single conversation id")
	migrateCmd.Flags().StringVar(&flagFrom, "from", "", "only migrate messages on or after this date (YYYY-MM-DD)")
	migrateCmd.Flags().StringVar(&flagTo, "to", "", "only migrate messages on or before this date (YYYY-MM-DD)")
}

func parseDateFlag(v string) (*int64, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", v, err)
	}
	sec := t.Unix()
	return &sec, nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel, cfg.LogFilePath)
	if err := cfg.Validate(); err != nil {
		return err
	}

	minDate, err := parseDateFlag(flagFrom)
	if err != nil {
		return err
	}
	maxDate, err := parseDateFlag(flagTo)
	if err != nil {
		return err
	}
	if maxDate != nil {
		*maxDate += 24*60*60 - 1 // include the whole --to day
	}

	client := newClient()

	convs, err := enumerator.ListAll(cmd.Context(), client)
	if err != nil {
		return err
	}

	filter := enumerator.Filter{
		IncludeIDs:          cfg.Filter.IncludeIDs,
		ExcludeIDs:          cfg.Filter.ExcludeIDs,
		MessageCountBounded: cfg.Filter.MinMessageCount > 0 || cfg.Filter.MaxMessageCount > 0,
		MinMessageCount:     cfg.Filter.MinMessageCount,
		MaxMessageCount:     cfg.Filter.MaxMessageCount,
	}
	for _, t := range cfg.Filter.IncludeTypes {
		filter.IncludeTypes = append(filter.IncludeTypes, model.ConversationType(t))
	}
	for _, t := range cfg.Filter.ExcludeTypes {
		filter.ExcludeTypes = append(filter.ExcludeTypes, model.ConversationType(t))
	}
	if flagDialog != "" {
		filter.IncludeIDs = []string{flagDialog}
	}
	convs = enumerator.Apply(convs, filter)

	if flagDryRun {
		for _, c := range convs {
			fmt.Printf("%s\t%s\t%s\t%d messages\n", c.ID, c.Type, c.DisplayName, c.MessageCount)
		}
		return nil
	}

	p, err := progress.Load(cfg.ProgressPath)
	if err != nil {
		return err
	}

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.BatchDelay = cfg.BatchDelay()
	limiter := ratelimit.New(limiterCfg)
	rt := realtime.NewManager(0, 0, func(convID string, dropped int) {
		slog.Warn("tail-sync queue overflow", "conversation", convID, "dropped", dropped)
	})
	reportAgg := report.NewAggregator()
	metrics := metricsreg.New()

	engineCfg := engine.DefaultConfig()
	engineCfg.BatchSize = cfg.BatchSize
	engineCfg.MinDate = minDate
	engineCfg.MaxDate = maxDate

	destCfg := destination.DefaultConfig()
	destCfg.TitlePrefix = cfg.GroupNamePrefix
	destCfg.GroupCreationDelayMs = cfg.GroupCreationDelayMs

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.Engine = engineCfg
	orchCfg.Destination = destCfg
	orchCfg.MaxFloodWaitSeconds = cfg.FloodWaitThreshold
	orchCfg.DailyGroupLimit = cfg.DailyGroupLimit
	orchCfg.TargetUserB = cfg.TargetUserB

	orch := orchestrator.New(client, limiter, rt, reportAgg, orchCfg)

	ctx, cancel := shutdownContext()
	defer cancel()
	go func() {
		<-ctx.Done()
		orch.RequestShutdown()
	}()

	p = orch.RunConversations(ctx, convs, p, cfg.ProgressPath)
	p = orch.SaveCurrentProgress(cfg.ProgressPath, p)

	for _, d := range p.Dialogs {
		metrics.ObserveConversationOutcome(d.Status)
	}
	for _, ev := range p.FloodWaitEvents {
		metrics.ObserveFloodWait(ev.Seconds)
	}
	metrics.SetActiveListeners(rt.ActiveListeners())

	rpt := reportAgg.GenerateReport(p)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rpt); err != nil {
		return err
	}

	if p.Stats.FailedDialogs > 0 {
		os.Exit(1)
	}
	return nil
}
