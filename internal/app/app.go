package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"listing-ledger/internal/config"
	"listing-ledger/internal/events"
	"listing-ledger/internal/ledger"
	"listing-ledger/internal/monitor"
	"listing-ledger/internal/oracle"
	"listing-ledger/internal/purchase"
	"listing-ledger/internal/scheduler"
	"listing-ledger/internal/service"
	"listing-ledger/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newOracleReader() (*oracle.Reader, error) {
	feed, err := oracle.ParseFeedID(a.Config.Oracle.FeedID)
	if err != nil {
		return nil, fmt.Errorf("oracle.feed_id: %w", err)
	}
	return oracle.NewReader(oracle.ReaderOptions{
		ExpectedFeed:       feed,
		MaxAge:             a.Config.Oracle.MaxAge,
		MaxConfidenceRatio: decimal.NewFromFloat(a.Config.Oracle.MaxConfidenceRatio),
	}, a.Logger), nil
}

func (a *App) newPublisher() events.Publisher {
	if a.Config.Events.Enabled {
		return events.NewWebhookPublisher(a.Config.Events.WebhookURL, a.Config.Events.RequestTimeout, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the durable store into an instruction executor.
func (a *App) newService(store *storage.Store) (*service.Service, error) {
	reader, err := a.newOracleReader()
	if err != nil {
		return nil, err
	}
	engine := purchase.NewEngine(store, a.Logger)
	return service.New(store.Listings(), store.Receipts(), reader, engine, a.newPublisher(), a.Logger), nil
}

// Run executes the long-running sales monitor.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot run the sales monitor")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Monitor.Interval,
		AlignToStart: a.Config.Monitor.AlignToBucket,
		StartupDelay: a.Config.Monitor.StartupDelay,
	}, a.Logger)

	mon := monitor.New(sched, store.Receipts(), a.newPublisher(), a.Logger)

	a.Logger.Info().Msg("starting sales monitor")
	err = mon.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("sales monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("sales monitor stopped")
	return nil
}

// InitializeOptions hold parameters for creating a listing.
type InitializeOptions struct {
	Admin    string
	Treasury string
	Name     string
	ImageURL string
	PriceUSD uint64
}

// UpdateOptions hold parameters for a partial listing update.
type UpdateOptions struct {
	Admin    string
	Name     string
	ImageURL *string
	PriceUSD *uint64
}

// DeactivateOptions hold parameters for closing a listing.
type DeactivateOptions struct {
	Admin string
	Name  string
}

// BuyOptions hold parameters for a purchase.
type BuyOptions struct {
	Buyer           string
	Seller          string
	Name            string
	Seed            string
	AttestationPath string
}

// FundOptions hold parameters for crediting a balance.
type FundOptions struct {
	Account string
	Amount  uint64
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Receipts bool
	Limit    int
}

// ExportOptions hold parameters for exporting receipt history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateBuyOptions configure the offline conversion preview.
type SimulateBuyOptions struct {
	PriceUSD    uint64
	OraclePrice float64
}

func parseAddress(label, value string) (ledger.Address, error) {
	if value == "" {
		return ledger.Address{}, fmt.Errorf("%s address is required", label)
	}
	address, err := ledger.ParseAddress(value)
	if err != nil {
		return ledger.Address{}, fmt.Errorf("%s: %w", label, err)
	}
	return address, nil
}
