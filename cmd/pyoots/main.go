package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/pyoots/internal/api"
	"github.com/BTreeMap/pyoots/internal/bot"
	"github.com/BTreeMap/pyoots/internal/catalog"
	"github.com/BTreeMap/pyoots/internal/delivery"
	"github.com/BTreeMap/pyoots/internal/genai"
	"github.com/BTreeMap/pyoots/internal/lockfile"
	"github.com/BTreeMap/pyoots/internal/messaging"
	"github.com/BTreeMap/pyoots/internal/navigation"
	"github.com/BTreeMap/pyoots/internal/scheduler"
	"github.com/BTreeMap/pyoots/internal/session"
	"github.com/BTreeMap/pyoots/internal/store"
	"github.com/BTreeMap/pyoots/internal/twiliowhatsapp"
	"github.com/BTreeMap/pyoots/internal/util"
	"github.com/BTreeMap/pyoots/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for assistant state data
	DefaultStateDir = "/var/lib/pyoots"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pyoots.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device store filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultCatalogDir holds the recipe CSV files
	DefaultCatalogDir = "data"
	// DefaultProductsCSV is the product list
	DefaultProductsCSV = "data/products.csv"
	// DefaultTimezone is used for cron expressions and admin broadcast times
	DefaultTimezone = "Europe/Moscow"
	// DefaultCheckinCron fires the daily mood check-in
	DefaultCheckinCron = "0 1 * * *"
	// DefaultSurveyCron fires the survey reminder flush
	DefaultSurveyCron = "1 15 * * *"
	// DefaultBroadcastInterval is how often due broadcasts are flushed
	DefaultBroadcastInterval = time.Minute
	// DefaultJobPollInterval is how often durable jobs are claimed
	DefaultJobPollInterval = 5 * time.Second

	// Supported chat transports
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	loadDotEnv()
	initializeLogger(os.Getenv("PYOOTS_LOG_LEVEL"))

	config := loadEnvironmentConfig()
	config, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	if err := config.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping pyoots", "transport", config.Transport, "state_dir", config.StateDir, "api_addr", config.APIAddr)
	if err := run(ctx, config); err != nil {
		slog.Error("pyoots failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("pyoots exited successfully")
}

// Config holds the resolved process configuration.
type Config struct {
	StateDir          string
	DatabaseURL       string
	WhatsAppDSN       string
	Transport         string
	QROutput          string
	NumericCode       bool
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioWebhookURL  string
	OpenAIKey         string
	OpenAIModel       string
	APIAddr           string
	CatalogDir        string
	ProductsCSV       string
	Admins            []string
	SpecialistChat    string
	SurveyURL         string
	Timezone          string
	CheckinCron       string
	SurveyCron        string
	BroadcastInterval time.Duration
}

// Validate checks settings that cannot be defaulted.
func (c Config) Validate() error {
	switch c.Transport {
	case TransportWhatsApp, TransportTwilio:
	default:
		return fmt.Errorf("unknown transport %q (want %s or %s)", c.Transport, TransportWhatsApp, TransportTwilio)
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast interval must be positive, got %s", c.BroadcastInterval)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// loadDotEnv loads a .env file from the working directory when present.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
}

// initializeLogger installs a text handler at the requested level; unknown levels fall back to info.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil || level == "" {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// loadEnvironmentConfig reads configuration from environment variables.
// Database paths left empty are derived from the state directory by applyDefaults.
func loadEnvironmentConfig() Config {
	config := Config{
		StateDir:          envOr("PYOOTS_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		Transport:         strings.ToLower(envOr("PYOOTS_TRANSPORT", TransportWhatsApp)),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:       os.Getenv("OPENAI_MODEL"),
		APIAddr:           envOr("API_ADDR", api.DefaultAddr),
		CatalogDir:        envOr("PYOOTS_CATALOG_DIR", DefaultCatalogDir),
		ProductsCSV:       envOr("PYOOTS_PRODUCTS_CSV", DefaultProductsCSV),
		Admins:            util.ParseListEnv("ADMIN_IDS"),
		SpecialistChat:    os.Getenv("SPECIALIST_CHAT_ID"),
		SurveyURL:         os.Getenv("SURVEY_URL"),
		Timezone:          envOr("PYOOTS_TIMEZONE", DefaultTimezone),
		CheckinCron:       envOr("CHECKIN_CRON", DefaultCheckinCron),
		SurveyCron:        envOr("SURVEY_CRON", DefaultSurveyCron),
		BroadcastInterval: util.ParseDurationEnv("BROADCAST_INTERVAL", DefaultBroadcastInterval),
		NumericCode:       util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
	}

	slog.Debug("environment variables loaded",
		"PYOOTS_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"PYOOTS_TRANSPORT", config.Transport,
		"TWILIO_CREDENTIALS_SET", config.TwilioAccountSID != "" && config.TwilioAuthToken != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"ADMIN_COUNT", len(config.Admins),
		"PYOOTS_TIMEZONE", config.Timezone)

	return config
}

// parseCommandLineFlags overrides config with command line flags and fills derived defaults.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Config, error) {
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory (overrides $PYOOTS_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "postgres DSN or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&config.WhatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&config.Transport, "transport", config.Transport, "chat transport: whatsapp or twilio (overrides $PYOOTS_TRANSPORT)")
	fs.StringVar(&config.QROutput, "qr-output", config.QROutput, "path to write login QR code")
	fs.BoolVar(&config.NumericCode, "numeric-code", config.NumericCode, "use numeric login code instead of QR code")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&config.CatalogDir, "catalog-dir", config.CatalogDir, "recipe CSV directory (overrides $PYOOTS_CATALOG_DIR)")
	fs.StringVar(&config.ProductsCSV, "products-csv", config.ProductsCSV, "product list CSV (overrides $PYOOTS_PRODUCTS_CSV)")
	fs.StringVar(&config.Timezone, "timezone", config.Timezone, "IANA timezone for schedules (overrides $PYOOTS_TIMEZONE)")

	if err := fs.Parse(args); err != nil {
		return config, err
	}
	config.Transport = strings.ToLower(strings.TrimSpace(config.Transport))
	config = applyDefaults(config)

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"dbDSN_set", config.DatabaseURL != "",
		"transport", config.Transport,
		"qrOutput", config.QROutput,
		"numeric", config.NumericCode,
		"apiAddr", config.APIAddr)
	return config, nil
}

// applyDefaults places unset database paths inside the state directory.
func applyDefaults(config Config) Config {
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return config
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(config Config) []store.Option {
	if store.DetectDSNType(config.DatabaseURL) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return []store.Option{store.WithPostgresDSN(config.DatabaseURL)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", config.DatabaseURL)
	return []store.Option{store.WithSQLiteDSN(config.DatabaseURL)}
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(config Config) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
	if config.QROutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(config.QROutput))
	}
	if config.NumericCode {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildTwilioOptions constructs Twilio configuration options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFromNumber))
	}
	return opts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(config Config) []genai.Option {
	var genaiOpts []genai.Option
	if config.OpenAIKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(config.OpenAIKey))
	}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	return genaiOpts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, webhook api.WebhookDeliverer) []api.Option {
	apiOpts := []api.Option{api.WithAddr(config.APIAddr)}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithWebhook(webhook))
		if config.TwilioAuthToken != "" {
			apiOpts = append(apiOpts, api.WithTwilioAuthToken(config.TwilioAuthToken))
		}
		if config.TwilioWebhookURL != "" {
			apiOpts = append(apiOpts, api.WithWebhookURL(config.TwilioWebhookURL))
		}
	}
	return apiOpts
}

// buildBotOptions constructs bot options; answerer may be nil.
func buildBotOptions(config Config, loc *time.Location, answerer bot.Answerer) []bot.Option {
	opts := []bot.Option{
		bot.WithAdmins(config.Admins),
		bot.WithLocation(loc),
	}
	if answerer != nil {
		opts = append(opts, bot.WithAnswerer(answerer))
	}
	if config.SpecialistChat != "" {
		opts = append(opts, bot.WithSpecialistChat(config.SpecialistChat))
	}
	return opts
}

// transport is the selected chat platform.
type transport struct {
	svc     messaging.Service
	webhook *messaging.TwilioService
	close   func()
}

func openTransport(ctx context.Context, config Config) (*transport, error) {
	switch config.Transport {
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return &transport{svc: svc, webhook: svc, close: func() {}}, nil
	default:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(config)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create whatsapp client: %w", err)
		}
		return &transport{svc: messaging.NewWhatsAppService(client), close: client.Disconnect}, nil
	}
}

// loadProducts falls back to an empty checker, which answers every lookup as unknown.
func loadProducts(path string) *catalog.ProductChecker {
	products, err := catalog.LoadProducts(path)
	if err != nil {
		slog.Warn("Product list unavailable, every product will be reported unknown", "path", path, "error", err)
		return catalog.NewProductChecker(nil, nil)
	}
	return products
}

// newAnswerer returns nil when no OpenAI key is configured.
func newAnswerer(config Config) bot.Answerer {
	if config.OpenAIKey == "" {
		slog.Info("OPENAI_API_KEY not set, free-text questions will not be answered")
		return nil
	}
	client, err := genai.NewClient(buildGenAIOptions(config)...)
	if err != nil {
		slog.Warn("GenAI client unavailable", "error", err)
		return nil
	}
	return client
}

// registerJobs schedules the recurring delivery passes.
func registerJobs(ctx context.Context, sched *scheduler.Scheduler, config Config, checkin *delivery.CheckIn, survey *delivery.SurveyReminder, broadcaster *delivery.Broadcaster) error {
	if err := sched.AddJob("daily-checkin", config.CheckinCron, func() {
		n, err := checkin.Schedule(ctx)
		if err != nil {
			slog.Error("CheckIn.Schedule failed", "error", err)
			return
		}
		slog.Info("Daily check-in enqueued", "jobs", n)
	}); err != nil {
		return err
	}

	if config.SurveyURL != "" {
		if err := sched.AddJob("survey-reminder", config.SurveyCron, func() {
			report, err := survey.Flush(ctx)
			if err != nil {
				slog.Error("SurveyReminder.Flush failed", "error", err)
			}
			slog.Info("Survey reminders sent", "attempted", report.Attempted, "failed", report.Failed)
		}); err != nil {
			return err
		}
	} else {
		slog.Info("SURVEY_URL not set, survey reminders disabled")
	}

	return sched.AddJob("broadcast-flush", "@every "+config.BroadcastInterval.String(), func() {
		report, err := broadcaster.Flush(ctx)
		if err != nil {
			slog.Error("Broadcaster.Flush failed", "error", err)
			return
		}
		if report.Attempted > 0 {
			slog.Info("Broadcasts delivered", "attempted", report.Attempted, "failed", report.Failed)
		}
	})
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		var lockErr *lockfile.LockError
		if errors.As(err, &lockErr) {
			return fmt.Errorf("another instance is using %s: %w", config.StateDir, err)
		}
		return err
	}
	defer lock.Release()

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", config.Timezone, err)
	}

	st, err := store.New(buildStoreOptions(config)...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	idx, err := catalog.Load(config.CatalogDir)
	if err != nil {
		return fmt.Errorf("failed to load recipe catalog: %w", err)
	}

	tr, err := openTransport(ctx, config)
	if err != nil {
		return err
	}
	defer tr.close()
	defer tr.svc.Stop()

	sender := messaging.NewDeactivatingSender(tr.svc, st)
	tracker := session.NewTracker(st)
	checkin := delivery.NewCheckIn(st, sender, loc)
	b := bot.New(bot.Deps{
		Store:     st,
		Navigator: navigation.NewNavigator(navigation.NewMachine(idx), st),
		Tracker:   tracker,
		Log:       session.NewInteractionLog(tracker, st),
		Products:  loadProducts(config.ProductsCSV),
		Moods:     checkin,
	}, buildBotOptions(config, loc, newAnswerer(config))...)

	runner := store.NewJobRunner(st, DefaultJobPollInterval)
	runner.RegisterHandler(delivery.JobKindDailyCheckin, checkin.HandleJob)
	if err := runner.RecoverStaleJobs(ctx); err != nil {
		slog.Warn("Failed to recover stale jobs", "error", err)
	}

	sched := scheduler.NewScheduler(scheduler.WithLocation(loc))
	defer sched.Stop()
	if err := registerJobs(ctx, sched, config, checkin, delivery.NewSurveyReminder(st, sender, config.SurveyURL), delivery.NewBroadcaster(st, sender)); err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}
	if err := sched.AddJob("conversation-evict", "@every 1h", func() {
		if n := b.EvictIdle(); n > 0 {
			slog.Debug("Idle conversations evicted", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule jobs: %w", err)
	}

	if err := tr.svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	go runner.Run(ctx)
	go messaging.NewDispatcher(tr.svc, b, st).Run(ctx)

	var webhook api.WebhookDeliverer
	if tr.webhook != nil {
		webhook = tr.webhook
	}
	return api.NewServer(st, buildAPIOptions(config, webhook)...).Run(ctx)
}
