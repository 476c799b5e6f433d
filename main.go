package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/notify"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
	"auction-engine/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := utils.InitTracer(ctx, utils.TracerName, cfg.OTLPEndpoint)
	if err != nil {
		utils.Fatal("Failed to init tracer", map[string]any{"error": err.Error()})
	}

	repo, err := openStore(cfg)
	if err != nil {
		utils.Fatal("Failed to open store", map[string]any{"driver": cfg.StoreDriver, "error": err.Error()})
	}

	rt, err := buildRealtime(ctx, cfg)
	if err != nil {
		utils.Fatal("Failed to connect realtime transports", map[string]any{"error": err.Error()})
	}

	biddingSvc := bidding.NewBiddingService(repo, rt.bus, bidding.WithMaxRetries(cfg.BidMaxRetries))
	sched := scheduler.New(repo, biddingSvc, rt.bus,
		scheduler.WithInterval(cfg.SchedulerInterval),
		scheduler.WithClock(biddingSvc.Now),
	)

	if cfg.StoreDriver == config.DriverMemory {
		prepopulateWallets(ctx, biddingSvc)
	}

	if cfg.SchedulerEnabled {
		sched.Start(ctx)
	}

	router := server.SetupRouter(server.Dependencies{
		Service:       biddingSvc,
		Scheduler:     sched,
		Websocket:     rt.hub,
		ExposeMetrics: cfg.MetricsEnabled,
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{"addr": srv.Addr, "store": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("HTTP server failed", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("HTTP server shutdown failed", map[string]any{"error": err.Error()})
	}
	sched.Stop()
	rt.close()
	if err := shutdownTracer(shutdownCtx); err != nil {
		utils.Warn("Tracer shutdown failed", map[string]any{"error": err.Error()})
	}
}

// openStore returns the configured repository, migrating the schema for postgres
func openStore(cfg config.App) (repository.AuctionDB, error) {
	if cfg.StoreDriver != config.DriverPostgres {
		return repository.NewMemoryRepo(), nil
	}

	db, err := repository.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	repo := repository.NewGormRepo(db)
	if err := repo.Migrate(); err != nil {
		return nil, err
	}
	return repo, nil
}

// realtime groups the notification bus with the connections it owns
type realtime struct {
	bus     *notify.Bus
	hub     *notify.Hub
	closers []func()
}

// close drains the bus first so queued events still reach the transports
func (r *realtime) close() {
	r.bus.Close()
	r.hub.Close()
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func buildRealtime(ctx context.Context, cfg config.App) (*realtime, error) {
	rt := &realtime{}

	var (
		redisPresence *notify.RedisPresence
		transports    []notify.Transport
	)

	if cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })

		instanceID := cfg.InstanceID
		if instanceID == "" {
			instanceID = utils.GenerateID()
		}
		redisPresence = notify.NewRedisPresence(client, instanceID, cfg.PresenceTTL)
		transports = append(transports, notify.NewRedisTransport(client))
		utils.Info("Redis presence enabled", map[string]any{"instance_id": instanceID, "ttl": cfg.PresenceTTL.String()})
	}

	var presence notify.Presence
	if redisPresence != nil {
		rt.hub = notify.NewHub(redisPresence, notify.WithPresenceRefresh(cfg.PresenceTTL/3))
		presence = notify.AnyPresence{rt.hub, redisPresence}
	} else {
		rt.hub = notify.NewHub(nil)
		presence = rt.hub
	}
	transports = append([]notify.Transport{rt.hub}, transports...)

	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = conn.Drain() })
		transports = append(transports, notify.NewNATSTransport(conn))
	}

	if cfg.AMQPURL != "" {
		amqpTransport, err := notify.NewAMQPTransport(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = amqpTransport.Close() })
		transports = append(transports, amqpTransport)
	}

	rt.bus = notify.NewBus(cfg.EventBuffer,
		notify.WithTransports(transports...),
		notify.WithPresence(presence),
		notify.WithDeliveryTimeout(cfg.DeliveryTimeout),
	)

	names := make([]string, 0, len(transports))
	for _, t := range transports {
		names = append(names, t.Name())
	}
	utils.Info("Realtime transports ready", map[string]any{"transports": names})
	return rt, nil
}

// prepopulateWallets adds demo wallets to the in-memory store
func prepopulateWallets(ctx context.Context, svc *bidding.BiddingService) {
	wallets := []struct {
		id      string
		balance int64
	}{
		{id: "user1", balance: 1000},
		{id: "user2", balance: 1000},
		{id: "user3", balance: 500},
	}

	for _, w := range wallets {
		if _, err := svc.CreateUser(ctx, w.id, w.balance); err != nil {
			utils.Warn("Failed to seed wallet", map[string]any{"user_id": w.id, "error": err.Error()})
		}
	}
}
