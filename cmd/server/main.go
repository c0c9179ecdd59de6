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

	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/roomcast/internal/adapters/http"
	"github.com/dkeye/roomcast/internal/adapters/memory"
	"github.com/dkeye/roomcast/internal/adapters/redis"
	"github.com/dkeye/roomcast/internal/adapters/ws"
	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/codec"
	"github.com/dkeye/roomcast/internal/config"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/dkeye/roomcast/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	d := core.NewDeferrer()
	defer d.Close()

	factory := memoryFactory(d)
	var health func(context.Context) error
	if cfg.Adapter == config.AdapterRedis {
		client, err := redis.Connect(ctx, redis.Config{
			URL:            cfg.Redis.URL,
			RetryAttempts:  cfg.Redis.RetryAttempts,
			RetryInterval:  cfg.Redis.RetryInterval,
			ConnectTimeout: cfg.Redis.ConnectTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()
		factory = redisFactory(ctx, d, client, cfg.Redis.ChannelPrefix)
		health = redis.Healthcheck(client)
	}

	m := metrics.New()
	nsps := app.NewNamespaces(factory, d,
		app.WithPolicy(app.SimplePolicy{}),
		app.WithRecorder(m),
		app.WithObserver(m.ForNamespace),
	)
	defer func() {
		if err := nsps.Close(); err != nil {
			log.Error().Err(err).Msg("close namespaces")
		}
	}()
	nsps.Restrict(cfg.Namespaces...)
	if _, err := nsps.GetOrCreate(cfg.Namespace); err != nil {
		log.Fatal().Err(err).Str("nsp", cfg.Namespace).Msg("failed to create default namespace")
	}

	ctl := ws.NewController(nsps, ws.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		RequestLimit: cfg.RequestLimit,
		RequestEvery: cfg.RequestEvery,
	})

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Namespaces: nsps,
		WS:         ctl,
		Metrics:    m.Handler(),
		Health:     health,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("adapter", cfg.Adapter).Msg("roomcast server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func memoryFactory(d *core.Deferrer) app.AdapterFactory {
	return func(nsp string, reg core.EndpointRegistry) (core.Adapter, error) {
		return memory.New(nsp, reg, codec.Encoder{}, memory.WithDeferrer(d)), nil
	}
}

func redisFactory(ctx context.Context, d *core.Deferrer, client *goredis.Client, prefix string) app.AdapterFactory {
	bus := redis.NewBus(client)
	return func(nsp string, reg core.EndpointRegistry) (core.Adapter, error) {
		local := memory.New(nsp, reg, codec.Encoder{}, memory.WithDeferrer(d))
		return redis.New(ctx, local, bus, prefix)
	}
}
