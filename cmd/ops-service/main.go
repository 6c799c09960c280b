package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqpbridge "bus-ops/internal/adapter/rabbitmq"
	"bus-ops/internal/adapter/rest"
	wsadapter "bus-ops/internal/adapter/websocket"
	"bus-ops/internal/audit"
	"bus-ops/internal/eventbus"
	"bus-ops/internal/fanout"
	"bus-ops/internal/store"
	"bus-ops/internal/writequeue"
	"bus-ops/pkg/auth"
	"bus-ops/pkg/config"
	"bus-ops/pkg/db"
	"bus-ops/pkg/logger"
	"bus-ops/pkg/rabbitmq"
)

func main() {
	log := logger.NewLogger("ops-service")
	log.Info("service_start", "Operational sync service is starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Error("config_load_failed", err)
		os.Exit(1)
	}

	pool, err := db.NewConnection(cfg, log)
	if err != nil {
		log.Error("postgres_init_failed", err)
		os.Exit(1)
	}
	defer pool.Close()

	rabbitConn, err := rabbitmq.NewConnection(cfg, log)
	if err != nil {
		log.Error("rabbitmq_init_failed", err)
		os.Exit(1)
	}
	defer rabbitConn.Close()

	jwtMgr := auth.NewJWTManager(cfg.App.JWTSecret, 24*time.Hour)
	directory := auth.NewMemoryDirectory()
	jwtMgr.SetClaimsObserver(func(c *auth.AppClaims) {
		directory.Record(c.UserID, c.Role)
	})
	checker := auth.Checker{
		Perms:   auth.DefaultPermissions(),
		Resolve: directory.Resolve,
	}

	bus := eventbus.New(log)
	dispatcher := fanout.New(bus, log)
	go dispatcher.Run(ctx)

	st := store.New(dispatcher, checker, log)

	wal, err := writequeue.OpenLog(cfg.Queue.Path)
	if err != nil {
		log.Error("writequeue_open_failed", err)
		os.Exit(1)
	}
	defer wal.Close()

	opts := writequeue.DefaultOptions()
	if cfg.Queue.MaxAttempts > 0 {
		opts.MaxAttempts = cfg.Queue.MaxAttempts
	}
	queues := writequeue.NewManager(wal, st, log, opts)

	auditRepo := audit.NewRepository(pool, log)
	if err := auditRepo.EnsureSchema(ctx); err != nil {
		log.Error("audit_schema_failed", err)
		os.Exit(1)
	}
	auditSub := dispatcher.Register("audit", "audit", auth.RoleAdmin, "")
	go auditRepo.Run(ctx, auditSub)

	bridge := amqpbridge.NewBridge(rabbitConn, dispatcher, log)
	go bridge.Run(ctx)

	wsMgr := wsadapter.NewManager(dispatcher, jwtMgr, log)
	defer wsMgr.CloseAll()

	handler := rest.NewHandler(st, queues, auditRepo, log)

	register := func(mux *http.ServeMux) {
		handler.Register(mux, jwtMgr)
		mux.HandleFunc("/ws", wsMgr.HandleWebSocket)
	}

	server := rest.New(cfg.App.Addr, log, register)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("http_server_failed", err)
			cancel()
		}
	}

	log.Info("service_shutdown", "Operational sync service stopped")
}
