package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"broadcast-board/internal/alerting"
	"broadcast-board/internal/browser"
	"broadcast-board/internal/config"
	"broadcast-board/internal/metrics"
	"broadcast-board/internal/pipeline"
	"broadcast-board/internal/price"
	"broadcast-board/internal/schedule"
	"broadcast-board/internal/scheduler"
	"broadcast-board/internal/storage"
	"broadcast-board/internal/streams"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().
			Str("component", "app").
			Str("app", cfg.App.Name).
			Str("environment", cfg.App.Environment).
			Logger(),
	}
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting one slot's price history.
type ExportOptions struct {
	SlotID   int64
	CSVPath  string
	PNGPath  string
	XLSXPath string
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

func (a *App) requireStore(ctx context.Context, action string) (*storage.Store, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured; cannot " + action)
	}
	return store, closeStore, nil
}

func (a *App) newRenderer() *browser.Lazy {
	bcfg := a.Config.Price.Browser
	return browser.NewLazy(func() (browser.Renderer, error) {
		return browser.NewRod(browser.RodOptions{
			BinPath:          bcfg.BinPath,
			Headful:          bcfg.Headful,
			UserAgent:        a.Config.App.UserAgent,
			StorageStatePath: bcfg.StorageStatePath,
		}, a.Logger)
	})
}

func (a *App) newResolver(renderer browser.Renderer) *price.Resolver {
	pcfg := a.Config.Price
	fetcher := price.NewFetcher(price.FetcherOptions{
		UserAgent:     a.Config.App.UserAgent,
		Timeout:       pcfg.RequestTimeout,
		MinDelay:      pcfg.MinDelay,
		MaxDelay:      pcfg.MaxDelay,
		RatePerSecond: pcfg.RatePerSecond,
	}, a.Logger)

	opts := price.DefaultOptions()
	opts.Enabled = pcfg.Enabled
	opts.MaxFetch = pcfg.MaxFetch
	opts.Concurrency = pcfg.Concurrency
	opts.BrowserEnabled = pcfg.Browser.Enabled
	opts.BrowserMax = pcfg.Browser.Max
	opts.BrowserConcurrency = pcfg.Browser.Concurrency
	opts.BrowserTimeout = pcfg.Browser.Timeout

	var r browser.Renderer
	if pcfg.Browser.Enabled {
		r = renderer
	}
	return price.NewResolver(opts, fetcher, r, a.Logger)
}

func (a *App) newPipeline(store *storage.Store) *pipeline.Pipeline {
	scfg := a.Config.Schedule
	client := schedule.NewClient(schedule.Options{
		SourceURL:      scfg.SourceURL,
		BaseURL:        scfg.BaseURL,
		UserAgent:      a.Config.App.UserAgent,
		Timeout:        scfg.RequestTimeout,
		MaxRetries:     scfg.MaxRetries,
		InitialBackoff: scfg.InitialBackoff,
		MinDelay:       scfg.MinDelay,
		MaxDelay:       scfg.MaxDelay,
	}, a.Logger)
	parser := schedule.NewParser(scfg.BaseURL, time.Now)

	return pipeline.New(pipeline.Options{
		VendorConcurrency: scfg.VendorConcurrency,
		PriceEnabled:      a.Config.Price.Enabled,
		BrowserEnabled:    a.Config.Price.Browser.Enabled,
		LockKey:           a.Config.Scheduler.AdvisoryLockKey,
	}, client, parser, store, a.Logger)
}

// FetchSchedule runs the ingestion pipeline once, or on the scheduler
// interval when loop is set.
func (a *App) FetchSchedule(ctx context.Context, loop bool) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.requireStore(ctx, "ingest schedule")
	if err != nil {
		return err
	}
	defer closeStore()

	renderer := a.newRenderer()
	defer func() {
		if err := renderer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close browser")
		}
	}()

	p := a.newPipeline(store)
	runOnce := func(runCtx context.Context) error {
		start := time.Now()
		stats, err := p.Run(runCtx, a.newResolver(renderer))
		metrics.ObserveRun("fetch_schedule", start, err)
		if err != nil {
			return err
		}
		metrics.ObserveSlots(stats.Created, stats.Updated)
		metrics.ObservePrices(
			stats.Price.Requested,
			stats.Price.Success,
			stats.Price.BrowserRequested,
			stats.Price.BrowserSkipped,
			stats.Price.BrowserBatchRequested,
		)
		return nil
	}

	if !loop {
		return runOnce(ctx)
	}

	if a.Config.Metrics.Enabled {
		metrics.MustRegister(prometheus.DefaultRegisterer)
		metrics.StartServer(ctx, a.Logger, a.Config.Metrics.Addr)
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   true,
		TickTimeout:  a.Config.Scheduler.RunTimeout,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting schedule loop")
	err = sched.Run(ctx, func(tickCtx context.Context, _ time.Time) error {
		return runOnce(tickCtx)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("schedule loop terminated with error")
		return err
	}
	a.Logger.Info().Msg("schedule loop stopped")
	return nil
}

// SyncStreams discovers live playlists and stores them on matching channels.
func (a *App) SyncStreams(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "sync streams")
	if err != nil {
		return err
	}
	defer closeStore()

	renderer := a.newRenderer()
	defer func() {
		if err := renderer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close browser")
		}
	}()

	scfg := a.Config.Streams
	locator := streams.NewLocator(streams.Options{
		ListingURL:        scfg.ListingURL,
		ReportPath:        scfg.ReportPath,
		NavigationTimeout: scfg.NavigationTimeout,
		Settle:            scfg.Settle,
	}, renderer, a.Logger)

	start := time.Now()
	updated, err := streams.Sync(ctx, locator, store, pipeline.NameCodes(), a.Logger)
	metrics.ObserveRun("sync_streams", start, err)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("updated", updated).Msg("stream sync finished")
	return nil
}

// SendAlerts evaluates active alerts against upcoming slots.
func (a *App) SendAlerts(ctx context.Context) error {
	store, closeStore, err := a.requireStore(ctx, "send alerts")
	if err != nil {
		return err
	}
	defer closeStore()

	acfg := a.Config.Alerting
	notifiers := map[storage.DestinationType]alerting.Notifier{
		storage.DestinationSlack: alerting.NewSlackNotifier(acfg.SlackTimeout, a.Logger),
		storage.DestinationEmail: alerting.NewEmailNotifier(alerting.SMTPOptions{
			Host:      acfg.SMTP.Host,
			Port:      acfg.SMTP.Port,
			User:      acfg.SMTP.User,
			Password:  acfg.SMTP.Password,
			FromEmail: acfg.SMTP.FromEmail,
			FromName:  acfg.SMTP.FromName,
			UseSSL:    acfg.SMTP.UseSSL,
			UseTLS:    acfg.SMTP.UseTLS,
		}, a.Logger),
	}

	var dedupe alerting.Deduper
	if acfg.Redis.Addr != "" {
		rd := alerting.NewRedisDeduper(redis.NewClient(&redis.Options{
			Addr:     acfg.Redis.Addr,
			Password: acfg.Redis.Password,
			DB:       acfg.Redis.DB,
		}))
		defer rd.Close()
		dedupe = rd
	}

	job := alerting.NewJob(alerting.JobOptions{DedupeTTL: acfg.DedupeTTL}, store, notifiers, dedupe, a.Logger)

	start := time.Now()
	sent, err := job.Run(ctx)
	metrics.ObserveRun("send_alerts", start, err)
	if err != nil {
		return err
	}
	a.Logger.Info().Int("sent", sent).Msg("alert job finished")
	return nil
}
