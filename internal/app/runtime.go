package app

import (
	"fmt"

	"clientpulse/internal/config"
	"clientpulse/internal/httpx"
	"clientpulse/internal/integrations/llm"
	"clientpulse/internal/logger"
	"clientpulse/internal/notify"
	"clientpulse/internal/signals"
	"clientpulse/internal/storage/sqlite"
)

// runtime holds everything a command needs once config is loaded.
type runtime struct {
	cfg       config.Config
	store     *signals.Store
	notifiers []notify.Notifier
	close     func() error
}

// Swapped in tests.
var (
	loadConfig    = config.LoadConfig
	openRuntime   = defaultOpenRuntime
	newClassifier = llm.New
)

func setup() config.Config {
	cfg := loadConfig()
	logger.SetLevel(cfg.LogLevel)
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	logger.Debugf("Config loaded. Provider=%s Window=%d DB=%s Digest=%q Slack=%t Telegram=%t Timezone=%s ExternalHTTPTimeout=%s",
		cfg.LLMProvider, cfg.SignalWindow, cfg.DBPath, cfg.DigestSchedule,
		cfg.SlackConfigured(), cfg.TelegramConfigured(), cfg.Timezone, appliedHTTPTimeout)
	return cfg
}

// defaultOpenRuntime opens the sqlite store. Notifiers are only built when
// withNotifiers is set, since creating the Telegram client calls the API.
func defaultOpenRuntime(withNotifiers bool) (*runtime, error) {
	cfg := setup()

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	logger.Debugf("Database initialized at %s", cfg.DBPath)

	var notifiers []notify.Notifier
	if withNotifiers {
		notifiers, err = buildNotifiers(cfg)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	opts := []signals.Option{signals.WithWindow(cfg.SignalWindow)}
	if alerts := notify.NewAlerts(notifiers...); alerts.Enabled() {
		opts = append(opts, signals.WithObserver(alerts))
	}
	return &runtime{
		cfg:       cfg,
		store:     signals.NewStore(sqlite.NewRepository(db), opts...),
		notifiers: notifiers,
		close:     db.Close,
	}, nil
}

func buildNotifiers(cfg config.Config) ([]notify.Notifier, error) {
	var notifiers []notify.Notifier
	if cfg.SlackConfigured() {
		notifiers = append(notifiers, notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannelID))
	}
	if cfg.TelegramConfigured() {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, "")
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	return notifiers, nil
}
