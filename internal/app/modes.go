package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oversight-labs/amlsentry/internal/config"
	"github.com/oversight-labs/amlsentry/internal/engine"
	"github.com/oversight-labs/amlsentry/internal/ingest"
	"github.com/oversight-labs/amlsentry/internal/pipeline"
	"github.com/oversight-labs/amlsentry/internal/reasoner"
	"github.com/oversight-labs/amlsentry/internal/server"
	"github.com/oversight-labs/amlsentry/internal/server/handler"
	"github.com/oversight-labs/amlsentry/internal/service"
	"github.com/oversight-labs/amlsentry/internal/verify"
)

// ScoreMode loads the batch, runs one scoring pass, persists the results, and
// exits.
func (a *App) ScoreMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting score mode")

	svc, err := a.buildRunService(deps)
	if err != nil {
		return fmt.Errorf("score mode: %w", err)
	}

	run, err := svc.Execute(ctx)
	if err != nil {
		return fmt.Errorf("score mode: %w", err)
	}

	a.logger.InfoContext(ctx, "run finished",
		slog.String("run_id", run.ID),
		slog.String("status", string(run.Status)),
		slog.Int("total", run.TotalTransactions),
		slog.Int("flagged", run.FlaggedTransactions),
		slog.Int("excluded", run.ExcludedTransactions),
		slog.Int("reasoning_failures", run.ReasoningFailures),
	)
	return nil
}

// ServerMode starts the HTTP API without running an initial scoring pass.
// Runs are triggered through POST /api/runs.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	svc, err := a.buildRunService(deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	return a.serveHTTP(ctx, deps, svc)
}

// FullMode runs one scoring pass on startup and then serves the HTTP API. A
// failed initial run is logged but does not prevent the server from starting.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	svc, err := a.buildRunService(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	run, err := svc.Execute(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "full mode: initial run failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	} else {
		a.logger.InfoContext(ctx, "initial run finished",
			slog.String("run_id", run.ID),
			slog.Int("total", run.TotalTransactions),
			slog.Int("flagged", run.FlaggedTransactions),
		)
	}

	return a.serveHTTP(ctx, deps, svc)
}

// buildRunService assembles the scoring pipeline and run service from
// configuration and wired dependencies.
func (a *App) buildRunService(deps *Dependencies) (*service.RunService, error) {
	th, err := engineThresholds(a.cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("build run service: %w", err)
	}

	loader := ingest.NewLoader(
		a.cfg.Ingest.TransactionsPath,
		a.cfg.Ingest.CardsPath,
		a.cfg.Ingest.UsersPath,
		a.logger,
	)
	reasonClient := reasoner.NewClient(a.cfg.Reasoner.URL, a.cfg.Reasoner.Timeout.Duration)

	orch := pipeline.NewOrchestrator(
		engine.NewAggregator(th),
		engine.NewEvaluator(th),
		reasonClient,
		verify.New(),
		a.cfg.Pipeline.EntityWorkers,
		a.cfg.Pipeline.ReasoningWorkers,
		a.logger,
	)

	var notifier service.Notifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}

	return service.NewRunService(
		loader,
		orch,
		deps.RunStore,
		deps.ResultStore,
		deps.SummaryCache,
		deps.RunArchiver,
		deps.LockManager,
		notifier,
		a.logger,
	), nil
}

// serveHTTP starts the HTTP server and blocks until the context is cancelled
// or the server fails.
func (a *App) serveHTTP(ctx context.Context, deps *Dependencies, svc *service.RunService) error {
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Runs:   handler.NewRunHandler(svc, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, deps.BlobDeleter, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// engineThresholds maps the engine configuration onto engine.Thresholds.
// Zero-valued fields fall back to the rulebook defaults.
func engineThresholds(cfg config.EngineConfig) (engine.Thresholds, error) {
	th := engine.DefaultThresholds()

	if cfg.SmallAmountMax > 0 {
		th.SmallAmountMax = cfg.SmallAmountMax
	}
	if cfg.SmallAmountWindow.Duration > 0 {
		th.SmallAmountWindow = cfg.SmallAmountWindow.Duration
	}
	if cfg.StructuringMinCount > 0 {
		th.StructuringMinCount = cfg.StructuringMinCount
	}
	if cfg.CounterpartyWindow.Duration > 0 {
		th.CounterpartyWindow = cfg.CounterpartyWindow.Duration
	}
	if cfg.RepeatedCounterpartyMin > 0 {
		th.RepeatedCounterpartyMin = cfg.RepeatedCounterpartyMin
	}
	if cfg.RapidMaxAccountAgeDays > 0 {
		th.RapidMaxAccountAgeDays = cfg.RapidMaxAccountAgeDays
	}
	if cfg.RapidMinAmount > 0 {
		th.RapidMinAmount = cfg.RapidMinAmount
	}
	if cfg.UnusualVolumeMultiplier > 0 {
		th.UnusualVolumeMultiplier = cfg.UnusualVolumeMultiplier
	}
	if cfg.DormantMinAgeDays > 0 {
		th.DormantMinAgeDays = cfg.DormantMinAgeDays
	}
	if cfg.HighAmountMedianMultiplier > 0 {
		th.HighAmountMedianMultiplier = cfg.HighAmountMedianMultiplier
	}
	if cfg.HighDTIMin > 0 {
		th.HighDTIMin = cfg.HighDTIMin
	}
	if cfg.SanctionScoreMin > 0 {
		th.SanctionScoreMin = cfg.SanctionScoreMin
	}
	if cfg.ReferenceDate != "" {
		ref, err := time.Parse("2006-01-02", cfg.ReferenceDate)
		if err != nil {
			return engine.Thresholds{}, fmt.Errorf("parse reference_date: %w", err)
		}
		th.ReferenceDate = ref
	}
	if len(cfg.HighRiskMCCs) > 0 {
		th.HighRiskMCCs = cfg.HighRiskMCCs
	}
	if len(cfg.HighRiskJurisdictions) > 0 {
		th.HighRiskJurisdictions = cfg.HighRiskJurisdictions
	}
	if len(cfg.HighRiskChannels) > 0 {
		th.HighRiskChannels = cfg.HighRiskChannels
	}
	return th, nil
}
