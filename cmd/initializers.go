package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tierscale/app/handler"
	"tierscale/app/router"
	"tierscale/pkg/autoscaler"
	"tierscale/pkg/config"
	"tierscale/pkg/fleet"
	"tierscale/pkg/logger"
	scalemetrics "tierscale/pkg/metrics"
	"tierscale/pkg/notification"
	"tierscale/pkg/queue"
	redisstore "tierscale/pkg/store/redis"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	cfg, err := config.Init()
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.InfoCtx(app.ctx, "Logging system has been closed")
		_ = logger.Sync()
	})
	return nil
}

// initPolicy builds the immutable scaling policy
func (app *Application) initPolicy() error {
	p, err := app.config.Scaling.Policy()
	if err != nil {
		return err
	}
	app.policy = p

	for _, entry := range p.Entries() {
		spec, _ := p.Lookup(entry.QueueType)
		logger.InfoCtx(app.ctx, "queue %s: priority=%d, min=%d, max=%d, ratio=%s",
			entry.QueueType, entry.Priority, spec.Bounds.Min, spec.Bounds.Max, spec.Ratio.Mode)
	}
	return nil
}

// initRedis initializes Redis. Without an address the poll lock runs in
// single-instance mode.
func (app *Application) initRedis() error {
	if app.config.Redis.Addr == "" {
		if app.config.Providers.Metrics == "asynq" {
			return fmt.Errorf("redis.addr is required for the asynq metrics provider")
		}
		logger.WarnCtx(app.ctx, "redis not configured, poll lock runs in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}
	app.redisClient = client
	app.registerCleanup(func() {
		if err := client.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close redis: %v", err)
		}
	})
	return nil
}

// initProviders initializes the queue metrics and fleet providers
func (app *Application) initProviders() error {
	metrics, err := queue.CreateMetricsProvider(app.config, app.policy, app.config.Providers.Metrics)
	if err != nil {
		return fmt.Errorf("failed to create metrics provider: %w", err)
	}
	app.metricsProvider = metrics
	app.registerCleanup(func() {
		if err := metrics.Close(); err != nil {
			logger.WarnCtx(app.ctx, "failed to close metrics provider: %v", err)
		}
	})

	fleetProvider, err := fleet.CreateFleetProvider(app.config, app.config.Providers.Fleet)
	if err != nil {
		return fmt.Errorf("failed to create fleet provider: %w", err)
	}
	app.fleetProvider = fleetProvider

	logger.InfoCtx(app.ctx, "providers: metrics=%s, fleet=%s",
		app.config.Providers.Metrics, fleetProvider.Backend().Name())
	return nil
}

// initAutoScaler wires event sinks, the controller and the trigger manager
func (app *Application) initAutoScaler() error {
	app.recorder = autoscaler.NewRecorder(app.config.AutoScaler.RecentEvents)

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	emitter, err := scalemetrics.NewEmitter(app.registry)
	if err != nil {
		return err
	}

	sinks := autoscaler.MultiSink{autoscaler.LogSink{}, app.recorder, emitter}
	if notifier := notification.NewFeishuNotifier(app.config.Notification.FeishuWebhookURL); notifier.Enabled() {
		sinks = append(sinks, notifier)
		logger.InfoCtx(app.ctx, "feishu notifications enabled")
	}

	app.controller = autoscaler.NewController(app.policy, app.metricsProvider, app.fleetProvider, sinks)
	app.autoscalerMgr = autoscaler.NewManager(app.controller, app.metricsProvider, app.fleetProvider, autoscaler.ManagerOptions{
		Async:    app.config.AutoScaler.Async,
		PollLock: autoscaler.NewRedisDistributedLock(app.redisClient.GetClient(), autoscaler.PollLockKey),
		Recorder: app.recorder,
	})
	return nil
}

// initHTTPServer initializes the HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(
		handler.NewHookHandler(app.autoscalerMgr),
		handler.NewAutoScalerHandler(app.autoscalerMgr),
		promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}),
		app.config.Server.APIKey,
	)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
