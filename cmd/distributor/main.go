package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/moneytech/selenium/adapters"
	"github.com/moneytech/selenium/distributor"
	"github.com/moneytech/selenium/domain"
	"github.com/moneytech/selenium/eventbus"
	"github.com/moneytech/selenium/graverr"
	"github.com/moneytech/selenium/handlers"
	"github.com/moneytech/selenium/healthcheck"
	"github.com/moneytech/selenium/nodehandle"
	"github.com/moneytech/selenium/sessionmap"
	"github.com/moneytech/selenium/sessionmap/memory"
	"github.com/moneytech/selenium/sessionmap/relational"
)

func main() {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	logger = log.WithPrefix(logger, "ts", log.DefaultTimestampUTC)
	logger = log.WithPrefix(logger, "caller", log.DefaultCaller)

	level.Info(logger).Log("msg", "starting distributor")

	config, err := LoadConfig()
	if err != nil {
		level.Error(logger).Log("msg", "failed to load configuration", "err", err)
		os.Exit(1)
	}
	level.Info(logger).Log(
		"msg", "configuration loaded",
		"http_port", config.HTTPPort,
		"event_bus", config.EventBus,
		"session_map", config.SessionMap,
		"node_client", config.NodeClient,
	)

	var bus eventbus.Bus
	{
		switch config.EventBus {
		case BackendRedis:
			client := goredis.NewClient(&goredis.Options{Addr: config.RedisAddr})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Ping(ctx).Err(); err != nil {
				level.Error(logger).Log("msg", "failed to connect to redis for event bus", "err", err)
				os.Exit(1)
			}
			bus = eventbus.NewRedisBus(client, "grid", busCodecs(), logger)
		default:
			bus = eventbus.NewLocal(logger)
		}
	}

	var sessions sessionmap.Map
	{
		switch config.SessionMap {
		case BackendSQL:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			m, err := relational.Connect(ctx, config.PostgresDSN)
			if err != nil {
				level.Error(logger).Log("msg", "failed to connect session map database", "err", err)
				os.Exit(1)
			}
			sessions = m
		default:
			sessions = memory.New(bus)
		}
	}

	prober := healthcheck.NewHTTPProber(&http.Client{Timeout: 10 * time.Second})
	checker := healthcheck.New(prober, logger)

	var creator nodehandle.NodeCreator
	var closeCreator func() error
	switch config.NodeClient {
	case BackendGRPC:
		grpcClient := adapters.NewGRPCNodeClient()
		creator = grpcClient
		closeCreator = grpcClient.Close
	default:
		creator = adapters.NewHTTPNodeClient(&http.Client{}, 30*time.Second)
		closeCreator = func() error { return nil }
	}

	dist := distributor.New(bus, sessions, checker, creator, logger)
	if config.RegistrationSecret != "" {
		dist.SetRegistrationSecret(config.RegistrationSecret)
	}

	if config.EventBus == BackendRedis {
		client := goredis.NewClient(&goredis.Options{Addr: config.RedisAddr})
		mirror := adapters.NewRedisStatusCache(client, "grid:nodes")
		bus.Subscribe(eventbus.TopicNodeAdded, func(payload any) {
			id, ok := payload.(uuid.UUID)
			if !ok {
				return
			}
			for _, s := range dist.Status() {
				if s.ID == id {
					_ = mirror.Write(context.Background(), toStatus(s), time.Minute)
				}
			}
		})
		bus.Subscribe(eventbus.TopicNodeRemoved, func(payload any) {
			id, ok := payload.(uuid.UUID)
			if !ok {
				return
			}
			_ = mirror.Delete(context.Background(), id.String())
		})
	}

	server := handlers.NewServer(dist, logger)
	e := echo.New()
	e.HideBanner = true
	graverr.RegisterErrorHandler(e, logger)
	server.Register(e)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf(":%d", config.HTTPPort)
		level.Info(logger).Log("msg", "starting http server", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			level.Error(logger).Log("msg", "http server error", "err", err)
		}
	}()

	<-quit
	level.Info(logger).Log("msg", "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		level.Error(logger).Log("msg", "error during server shutdown", "err", err)
	}

	if err := dist.Close(); err != nil {
		level.Error(logger).Log("msg", "error closing distributor", "err", err)
	}
	if err := sessions.Close(); err != nil {
		level.Error(logger).Log("msg", "error closing session map", "err", err)
	}
	if err := bus.Close(); err != nil {
		level.Error(logger).Log("msg", "error closing event bus", "err", err)
	}
	if err := closeCreator(); err != nil {
		level.Error(logger).Log("msg", "error closing node client", "err", err)
	}

	level.Info(logger).Log("msg", "stopped")
}

// busCodecs registers the Marshal/Unmarshal pair for every topic
// RedisBus carries, keyed by the payload shape each topic actually
// publishes (spec.md §6).
func busCodecs() map[string]eventbus.Codec {
	return map[string]eventbus.Codec{
		eventbus.TopicNodeStatus:        nodeStatusCodec(),
		eventbus.TopicNodeDrainComplete: uuidCodec(),
		eventbus.TopicSessionClosed:     uuidCodec(),
		eventbus.TopicNodeAdded:         uuidCodec(),
		eventbus.TopicNodeRemoved:       uuidCodec(),
		eventbus.TopicNodeRejected:      stringCodec(),
	}
}

func nodeStatusCodec() eventbus.Codec {
	return eventbus.Codec{
		Marshal: func(v any) ([]byte, error) { return json.Marshal(v) },
		Unmarshal: func(b []byte) (any, error) {
			var s domain.NodeStatus
			if err := json.Unmarshal(b, &s); err != nil {
				return nil, err
			}
			return s, nil
		},
	}
}

func uuidCodec() eventbus.Codec {
	return eventbus.Codec{
		Marshal: func(v any) ([]byte, error) {
			id, ok := v.(uuid.UUID)
			if !ok {
				return nil, fmt.Errorf("eventbus: expected uuid.UUID payload, got %T", v)
			}
			return []byte(id.String()), nil
		},
		Unmarshal: func(b []byte) (any, error) { return uuid.Parse(string(b)) },
	}
}

func stringCodec() eventbus.Codec {
	return eventbus.Codec{
		Marshal:   func(v any) ([]byte, error) { return []byte(fmt.Sprint(v)), nil },
		Unmarshal: func(b []byte) (any, error) { return string(b), nil },
	}
}

func toStatus(s domain.NodeSummary) domain.NodeStatus {
	return domain.NodeStatus{
		NodeID:       s.ID,
		URI:          s.URI,
		Stereotypes:  s.Stereotypes,
		Availability: s.Status,
	}
}
