package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/salvagehub/salvagebid/internal/domain"
	"github.com/salvagehub/salvagebid/internal/server"
	"github.com/salvagehub/salvagebid/internal/server/handler"
	"github.com/salvagehub/salvagebid/internal/server/ws"
	"github.com/salvagehub/salvagebid/internal/service"
	"github.com/salvagehub/salvagebid/internal/worker"
)

// archiveLockKey guards the archive sweep so only one instance runs it at a
// time when several processes share the same Redis.
const archiveLockKey = "archive:sweep"

// archiveSweepInterval is how often the full mode re-runs the archive sweep.
const archiveSweepInterval = 24 * time.Hour

// services bundles the domain services built on top of the wired
// dependencies.
type services struct {
	ledger   *service.AuctionLedger
	gate     *service.BidGate
	sentinel *service.FraudSentinel
	scanner  *worker.Scanner
	ratings  *service.RatingAggregator
	profiles *service.VendorProfiles
}

// buildServices constructs the service layer. The scanner is created here but
// not started; the calling mode owns its goroutine.
func (a *App) buildServices(deps *Dependencies) *services {
	ledger := service.NewAuctionLedger(
		deps.AuctionStore,
		deps.SummaryCache,
		deps.EventBus,
		deps.Gateway,
		deps.AuditStore,
		service.LedgerConfig{
			ExtensionWindow: a.cfg.Auction.ExtensionWindow.Duration,
			MaxExtensions:   a.cfg.Auction.MaxExtensions,
			AcceptRetries:   a.cfg.Auction.AcceptRetries,
		},
		a.logger,
	)

	sentinel := service.NewFraudSentinel(
		deps.BidStore,
		deps.VendorStore,
		deps.FraudFlagStore,
		deps.Gateway,
		deps.AuditStore,
		service.SentinelConfig{
			JumpMultiple:   a.cfg.Fraud.JumpMultiple,
			NewAccountDays: a.cfg.Fraud.NewAccountDays,
		},
		a.logger,
	)
	scanner := worker.NewScanner(sentinel, a.cfg.Fraud.ScanQueueSize, a.cfg.Fraud.ScanWorkers, a.logger)

	gate := service.NewBidGate(
		deps.AuctionStore,
		deps.VendorStore,
		deps.ChallengeStore,
		deps.RateLimiter,
		deps.Gateway,
		deps.AuditStore,
		ledger,
		scanner,
		service.GateConfig{
			OTPExpiry:            a.cfg.Auction.OTPExpiry.Duration,
			SubmitLimitPerMinute: a.cfg.Auction.SubmitLimitPerMinute,
		},
		a.logger,
	)
	if a.cfg.Auction.TierOneCeiling > 0 {
		ceiling := decimal.NewFromInt(a.cfg.Auction.TierOneCeiling)
		gate.WithTierCeilings(domain.TierCeilings{
			domain.TierOne: &ceiling,
			domain.TierTwo: nil,
		})
	}

	return &services{
		ledger:   ledger,
		gate:     gate,
		sentinel: sentinel,
		scanner:  scanner,
		ratings:  service.NewRatingAggregator(deps.RatingStore, deps.VendorStore, deps.AuditStore, a.logger),
		profiles: service.NewVendorProfiles(deps.VendorStore, deps.FraudFlagStore),
	}
}

// ServeMode runs the bidding API: the HTTP/WebSocket server plus the async
// fraud-scan worker pool. When archival is enabled the daily sweep runs in
// the same process.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	g.Go(func() error {
		return svcs.scanner.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, svcs)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// ArchiveMode runs a single archive sweep and exits. It is intended to be
// invoked from a scheduler (cron, k8s CronJob).
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: object storage not configured")
	}
	return a.runArchiveSweep(ctx, deps)
}

// FullMode runs everything: the bidding API, the fraud-scan workers, and the
// periodic archive sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svcs := a.buildServices(deps)
	g.Go(func() error {
		return svcs.scanner.Run(ctx)
	})

	a.startHTTPServer(ctx, g, deps, svcs)

	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveLoop(ctx, deps)
		})
	}

	return g.Wait()
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.EventBus, svcs.ledger, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Bids:     handler.NewBidHandler(svcs.gate, a.logger),
		Auctions: handler.NewAuctionHandler(svcs.ledger, deps.BidStore, a.logger),
		Vendors:  handler.NewVendorHandler(svcs.profiles, a.logger),
		Ratings:  handler.NewRatingHandler(svcs.ratings, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		APIKey:       a.cfg.Server.APIKey,
		RateLimitRPS: a.cfg.Server.RateLimitRPS,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// runArchiveLoop runs an archive sweep immediately and then once per
// interval until the context is cancelled.
func (a *App) runArchiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(archiveSweepInterval)
	defer ticker.Stop()

	for {
		if err := a.runArchiveSweep(ctx, deps); err != nil {
			a.logger.WarnContext(ctx, "archive sweep failed",
				slog.String("error", err.Error()),
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runArchiveSweep archives auctions closed longer ago than the retention
// window. A distributed lock keeps concurrent instances from sweeping the
// same rows.
func (a *App) runArchiveSweep(ctx context.Context, deps *Dependencies) error {
	unlock, err := deps.LockManager.Acquire(ctx, archiveLockKey, 10*time.Minute)
	if err != nil {
		a.logger.InfoContext(ctx, "archive sweep skipped, another instance holds the lock")
		return nil
	}
	defer unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := deps.Archiver.ArchiveClosedAuctions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive sweep: %w", err)
	}
	a.logger.InfoContext(ctx, "archive sweep complete",
		slog.Int64("auctions", n),
		slog.Time("cutoff", cutoff),
	)
	return nil
}
