package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"itslive-telegram-bot/config"
	"itslive-telegram-bot/internal/alert"
	"itslive-telegram-bot/internal/database"
	"itslive-telegram-bot/internal/feed"
	"itslive-telegram-bot/internal/metrics"
	"itslive-telegram-bot/internal/notify"
	"itslive-telegram-bot/internal/pending"
	"itslive-telegram-bot/internal/router"
	"itslive-telegram-bot/internal/telegram"
	"itslive-telegram-bot/internal/tokeninfo"
	"itslive-telegram-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	metricsSaveInterval = 5 * time.Minute
	dispatchConcurrency = 16
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure("locales", config.GetString("lang"))

	token := config.GetString("telegram_bot_token")
	if token == "" {
		log.Fatal("Missing TELEGRAM_BOT_TOKEN environment variable.")
	}
	socketURL := config.GetString("socket_url")
	if socketURL == "" {
		log.Fatal("Missing SOCKET_URL environment variable.")
	}

	store, err := database.Open(config.GetString("db_path"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	pendingStore, err := pending.Open(config.GetString("pending_path"), config.GetDuration("pending_ttl"))
	if err != nil {
		log.Fatalf("Failed to initialize pending alert store: %v", err)
	}
	defer pendingStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botMetrics := metrics.NewBotMetrics()
	if err := botMetrics.Load(ctx, store); err != nil {
		log.WithError(err).Error("Failed to load metrics from database")
	}

	tokens := tokeninfo.NewResolver(
		config.GetString("token_info_url"),
		nil,
		tokeninfo.NewPaprikaSearcher(config.GetString("api_pro_key")),
	)

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          token,
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	}, telegram.Deps{
		Store:    store,
		Pending:  pendingStore,
		Tokens:   tokens,
		Recorder: botMetrics,
	})
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	dispatcher := notify.NewDispatcher(bot, store, botMetrics, notify.Config{MaxConcurrency: dispatchConcurrency})
	streams := router.New(store, alert.NewEngine(store), dispatcher, botMetrics)

	feedConfig := feed.DefaultConfig()
	feedConfig.URL = socketURL
	feedConfig.APIKey = config.GetString("socket_api_key")
	feedConfig.MaxReconnectDelay = config.GetDuration("feed_reconnect_max")
	feedConfig.OnStateChange = func(s feed.State) {
		botMetrics.SetFeedConnected(s == feed.StateConnected)
	}
	feedClient, err := feed.NewClient(feedConfig, streams)
	if err != nil {
		log.Fatalf("Failed to create feed client: %v", err)
	}

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		log.Fatalf("Failed to get updates channel: %v", err)
	}

	server := newMetricsAndHealthServer(config.GetInt("metrics_port"), botMetrics, store)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return feedClient.Run(gctx)
	})
	g.Go(func() error {
		handleUpdates(gctx, bot, updates)
		return nil
	})
	g.Go(func() error {
		saveMetricsPeriodically(gctx, botMetrics, store)
		return nil
	})
	g.Go(func() error {
		log.Infof("Launching metrics and health endpoint on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down bot...")

		if err := feedClient.Close(); err != nil {
			log.WithError(err).Warn("Failed to close feed connection")
		}
		bot.StopReceivingUpdates()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.WithError(err).Error("Bot stopped with error")
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := botMetrics.Save(saveCtx, store); err != nil {
		log.WithError(err).Error("Failed to save metrics to database")
	}
	log.Info("Metrics saved, shutting down...")
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if raw := config.GetString("log_level"); raw != "" {
		level, err := log.ParseLevel(raw)
		if err != nil {
			log.Warnf("Ignoring invalid LOG_LEVEL %q", raw)
		} else {
			log.SetLevel(level)
		}
	}
	log.Debug("Starting telegram bot...")
}

func handleUpdates(ctx context.Context, bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			handleUpdate(ctx, bot, update)
		}
	}
}

func handleUpdate(ctx context.Context, bot *telegram.Bot, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			stackBuf := make([]byte, 1024)
			stackSize := runtime.Stack(stackBuf, false)
			stackTrace := bytes.TrimRight(stackBuf[:stackSize], "\x00")
			log.Errorf("Recovered from panic: %v\nStack trace: %s", r, stackTrace)
		}
	}()

	bot.HandleUpdate(ctx, update)
}

func saveMetricsPeriodically(ctx context.Context, botMetrics *metrics.BotMetrics, store *database.Store) {
	ticker := time.NewTicker(metricsSaveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := botMetrics.Save(ctx, store); err != nil {
				log.WithError(err).Error("Failed to save metrics to database")
			}
		}
	}
}

func newMetricsAndHealthServer(port int, botMetrics *metrics.BotMetrics, store *database.Store) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", botMetrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
