package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/psds-microservice/assist-service/internal/auth"
	"github.com/psds-microservice/assist-service/internal/changefeed"
	"github.com/psds-microservice/assist-service/internal/config"
	"github.com/psds-microservice/assist-service/internal/database"
	"github.com/psds-microservice/assist-service/internal/gemini"
	"github.com/psds-microservice/assist-service/internal/handler"
	"github.com/psds-microservice/assist-service/internal/kafka"
	"github.com/psds-microservice/assist-service/internal/model"
	"github.com/psds-microservice/assist-service/internal/ratelimit"
	"github.com/psds-microservice/assist-service/internal/router"
	"github.com/psds-microservice/assist-service/internal/service"
	"github.com/psds-microservice/assist-service/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

const ServiceName = "assist-service"

// API приложение: HTTP-сервер, change feed и их источники (режим api).
type API struct {
	cfg       *config.Config
	log       *slog.Logger
	store     store.Store
	tickets   *changefeed.Hub[model.Ticket]
	drivers   *changefeed.Hub[model.Driver]
	listener  *changefeed.PGListener
	producer  *kafka.Producer
	ticketSvc *service.TicketService
	rdb       *goredis.Client
	httpSrv   *http.Server
}

// OpenStore возвращает хранилище по STORE_DRIVER. Для postgres сначала применяются миграции.
func OpenStore(cfg *config.Config, log *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	case config.StorePostgres:
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return store.NewPostgres(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// NewAPI создаёт приложение для режима api.
func NewAPI(ctx context.Context, cfg *config.Config, log *slog.Logger) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	st, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	a := &API{cfg: cfg, log: log, store: st}

	a.tickets = changefeed.NewHub(store.CollectionTickets, func(ctx context.Context) ([]model.Ticket, error) {
		return st.ListTickets(ctx, store.TicketFilter{})
	}, log)
	a.drivers = changefeed.NewHub(store.CollectionDrivers, st.ListDrivers, log)
	feeds := changefeed.NewRouter(a.tickets, a.drivers)
	switch s := st.(type) {
	case *store.Memory:
		s.OnChange(feeds.Dispatch)
	case *store.Postgres:
		if a.listener, err = changefeed.ListenPostgres(cfg.DSN(), feeds, log); err != nil {
			a.Close()
			return nil, fmt.Errorf("change feed: %w", err)
		}
	}

	a.producer = kafka.NewProducer(kafka.ParseBrokers(cfg.Kafka.Brokers), cfg.Kafka.TopicTicket, log)
	if !a.producer.Enabled() {
		log.Info("kafka not configured, ticket events disabled")
	}

	var limiter *ratelimit.Limiter
	if a.rdb, err = ratelimit.NewRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		if a.listener != nil {
			_ = a.listener.Close()
		}
		a.Close()
		return nil, err
	}
	if a.rdb != nil {
		limiter = ratelimit.New(a.rdb, "assist:chat", cfg.ChatRateLimit, cfg.ChatRateWindow, log)
	} else {
		log.Info("redis not configured, chat rate limiting disabled")
	}

	llm, err := gemini.NewClient(ctx, gemini.Config{
		BaseURL:    cfg.Gemini.BaseURL,
		APIVersion: cfg.Gemini.APIVersion,
		Model:      cfg.Gemini.Model,
		APIKey:     cfg.Gemini.APIKey,
		Timeout:    cfg.Gemini.Timeout,
	})
	if err != nil {
		if a.listener != nil {
			_ = a.listener.Close()
		}
		a.Close()
		return nil, err
	}
	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.TTL)

	ticketSvc := service.NewTicketService(service.TicketDeps{
		Tickets:         st,
		Drivers:         st,
		Describe:        service.NewDescriptionGenerator(llm, cfg.Gemini.Timeout, log),
		Events:          a.producer,
		Log:             log,
		ExclusiveAssign: cfg.AssignExclusive,
	})
	a.ticketSvc = ticketSvc
	driverSvc := service.NewDriverService(st, log)
	authSvc := service.NewAuthService(st, tokens, log)
	chatSvc := service.NewChatService(llm, cfg.Gemini.Timeout, log)

	a.httpSrv = &http.Server{
		Addr: cfg.Addr(),
		Handler: router.New(router.Deps{
			Handlers: router.Handlers{
				Health:  handler.NewHealthHandler(ServiceName, st),
				Auth:    handler.NewAuthHandler(authSvc, log),
				Tickets: handler.NewTicketHandler(ticketSvc, log),
				Drivers: handler.NewDriverHandler(driverSvc, log),
				Chat:    handler.NewChatHandler(chatSvc, log),
				Feed:    handler.NewFeedHandler(a.tickets, a.drivers, st, log),
			},
			Tokens:      tokens,
			ChatLimiter: limiter,
			Log:         log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// websocket streams manage their own write deadlines
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// Run запускает HTTP-сервер и фоновые задачи, блокируется до отмены ctx.
func (a *API) Run(ctx context.Context) error {
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	a.log.Info("HTTP server listening", "addr", a.httpSrv.Addr, "store", a.cfg.StoreDriver)
	a.log.Info("endpoints",
		"swagger", base+"/swagger",
		"health", base+"/health",
		"ready", base+"/ready",
		"tickets_ws", "ws://"+host+":"+a.cfg.HTTPPort+"/ws/tickets",
	)

	feedCtx, stopFeeds := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(feedCtx); err != nil {
				a.log.Error("background task stopped", "task", name, "error", err)
			}
		}()
	}
	start("tickets feed", a.tickets.Run)
	start("drivers feed", a.drivers.Run)
	if a.listener != nil {
		start("pg listener", a.listener.Run)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("http: %w", err)
		}
	}

	// hijacked websocket connections are not tracked by Shutdown; closing
	// the feeds ends them
	stopFeeds()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("http shutdown: %w", err)
	}
	wg.Wait()
	a.ticketSvc.Close()
	a.Close()
	a.log.Info("stopped")
	return runErr
}

// Close закрывает внешние соединения. Безопасен для частично собранного API.
func (a *API) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka close", "error", err)
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("store close", "error", err)
		}
	}
}
