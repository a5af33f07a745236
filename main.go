package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tripsplit-backend/config"
	"tripsplit-backend/database"
	"tripsplit-backend/handlers"
	"tripsplit-backend/ledger"
	"tripsplit-backend/middleware"
	"tripsplit-backend/money"
	"tripsplit-backend/services"
	"tripsplit-backend/utils"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"github.com/gin-gonic/gin"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a development JWT for this user id and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(utils.NewLogger(cfg.LogLevel))

	if *issueToken != "" {
		token, err := utils.GenerateToken(cfg.JWTSecret, *issueToken, "", 30*24*time.Hour)
		if err != nil {
			slog.Error("failed to generate token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Exchange rates: configured table, overlaid by the Redis hash if reachable
	rates := maps.Clone(cfg.ExchangeRates)
	var directory services.Directory = services.NewStaticDirectory()
	var cache func(services.Directory) services.Directory
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			slog.Warn("redis not available, running without cache", "error", err)
		} else {
			defer rdb.Close()
			overrides, err := database.LoadRateOverrides(ctx, rdb)
			if err != nil {
				slog.Warn("ignoring exchange rate overrides", "error", err)
			}
			maps.Copy(rates, overrides)
			cache = func(d services.Directory) services.Directory {
				return database.NewCachedDirectory(d, rdb, 10*time.Minute)
			}
		}
	}
	conv, err := money.NewConverter(rates)
	if err != nil {
		return err
	}

	var app *firebase.App
	var fs *firestore.Client
	if cfg.UsesFirebase() {
		if app, err = database.NewFirebaseApp(ctx, cfg.FirebaseCredPath, cfg.FirebaseProjectID); err != nil {
			return err
		}
		if fs, err = app.Firestore(ctx); err != nil {
			return fmt.Errorf("opening firestore: %w", err)
		}
		defer fs.Close()
		directory = database.NewFirestoreDirectory(fs)
	}
	if cache != nil {
		directory = cache(directory)
	}

	// Notifications
	var push services.PushSender
	if app != nil {
		client, err := app.Messaging(ctx)
		if err != nil {
			slog.Warn("push notifications disabled", "error", err)
		} else {
			push = services.FCMSender{Client: client}
		}
	}
	var mail services.MailSender
	if cfg.SendGridAPIKey != "" {
		mail = services.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFrom, cfg.AppName)
	}
	notifier := services.NewNotifier(directory, push, mail, 100)
	notifier.Start()
	defer notifier.Shutdown()

	// Store, ledger and change feed
	l := ledger.New()
	var store services.Store
	var feed services.ChangeFeed
	var pgFeed *database.PGFeed
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = database.NewGormStore(db)
		pgFeed = &database.PGFeed{URL: cfg.DatabaseURL, Store: store}
		feed = pgFeed
	case config.BackendFirestore:
		store = database.NewFirestoreStore(fs)
		feed = database.NewFirestoreFeed(fs)
	}

	expenses := services.NewExpenseService(store, l, conv, cfg.SettlementCurrency, notifier)
	if err := expenses.Hydrate(ctx); err != nil {
		return err
	}
	if pgFeed != nil {
		pgFeed.Resync = expenses.Hydrate
	}
	if feed != nil {
		go func() {
			if err := feed.Watch(ctx, expenses.Apply); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("change feed stopped", "error", err)
			}
		}()
	}

	// Auth
	var verifier middleware.TokenVerifier = middleware.JWTVerifier{Secret: cfg.JWTSecret}
	if cfg.AuthMode == config.AuthFirebase {
		client, err := app.Auth(ctx)
		if err != nil {
			return fmt.Errorf("initializing firebase auth: %w", err)
		}
		verifier = middleware.FirebaseVerifier{Client: client}
	}

	// Setup router
	r := gin.Default()
	r.Use(middleware.CORS(cfg.CORSOrigins))

	h := &handlers.Handler{
		Expenses:   expenses,
		Settlement: services.NewSettlementService(l, services.NewCalculator(conv), directory, cfg.SettlementCurrency),
		Converter:  conv,
		Directory:  directory,
		AppName:    cfg.AppName,
	}
	h.Register(r, middleware.AuthRequired(verifier))

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting",
			"service", cfg.AppName,
			"addr", srv.Addr,
			"store", cfg.StoreBackend,
			"auth", cfg.AuthMode,
			"settlement_currency", cfg.SettlementCurrency,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
