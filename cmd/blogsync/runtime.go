package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	blogsync "github.com/Sekunev/BE-WORKSHOP-sub000"
	"github.com/Sekunev/BE-WORKSHOP-sub000/store/badgerstore"
	"github.com/Sekunev/BE-WORKSHOP-sub000/store/sqlstore"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// runtime is the data layer assembled from the config for one command.
type runtime struct {
	cfg     *Config
	log     *zap.Logger
	storage blogsync.Storage
	client  *blogsync.Client
	source  blogsync.ConnectivitySource
	ws      *blogsync.WebSocketSource
	monitor *blogsync.NetworkMonitor
	cache   *blogsync.CacheManager
	offline *blogsync.OfflineCoordinator
}

// newLogger builds a production logger at level, falling back to info.
func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg.Build()
}

// openStorage opens the engine named by cfg.Driver.
func openStorage(cfg StorageConfig) (blogsync.Storage, error) {
	switch cfg.Driver {
	case "", "badger":
		return badgerstore.Open(badgerstore.Options{Dir: cfg.Path, Compress: cfg.Compress})
	case "sqlite":
		path := cfg.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "blogsync.db")
		}
		return sqlstore.Open(path)
	case "memory":
		return blogsync.NewMemoryStorage(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// sourceFunc picks the connectivity source once the client exists.
type sourceFunc func(ctx context.Context, rt *runtime) (blogsync.ConnectivitySource, error)

// openRuntime loads the config and wires storage, connectivity, cache and the
// offline coordinator. When checkHealth is set, the backend health endpoint decides
// whether the session starts online; otherwise it starts offline.
func openRuntime(ctx context.Context, checkHealth bool) (*runtime, error) {
	return newRuntime(ctx, func(ctx context.Context, rt *runtime) (blogsync.ConnectivitySource, error) {
		source := blogsync.NewManualSource(blogsync.OfflineConnectivity())
		if checkHealth {
			rt.checkHealth(ctx, source)
		}
		return source, nil
	})
}

func newRuntime(ctx context.Context, pick sourceFunc) (*runtime, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	rt := &runtime{cfg: cfg, log: log}
	if err := rt.open(ctx, pick); err != nil {
		return nil, multierr.Append(err, rt.Close())
	}
	return rt, nil
}

func (rt *runtime) open(ctx context.Context, pick sourceFunc) error {
	cfg := rt.cfg
	storage, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	rt.storage = storage

	rt.client = blogsync.NewClient(cfg.Default.APIKey,
		blogsync.WithBaseURL(cfg.Default.BaseURL),
		blogsync.WithRequestTimeout(cfg.Offline.RequestTimeout.Duration))

	rt.source, err = pick(ctx, rt)
	if err != nil {
		return err
	}
	rt.monitor = blogsync.NewNetworkMonitor(rt.source, storage, &blogsync.NetworkOptions{Logger: rt.log})
	if err := rt.monitor.Init(ctx); err != nil {
		return fmt.Errorf("init network monitor: %w", err)
	}

	rt.cache, err = blogsync.NewCacheManager(storage, &blogsync.CacheOptions{
		MaxSize:          cfg.Cache.MaxSize,
		HeadroomFraction: cfg.Cache.Headroom,
		SweepInterval:    cfg.Cache.SweepInterval.Duration,
		DefaultTTL:       cfg.Cache.TTL.Duration,
		Logger:           rt.log,
	})
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	if err := rt.cache.Init(); err != nil {
		return fmt.Errorf("init cache: %w", err)
	}

	rt.offline, err = blogsync.NewOfflineCoordinator(storage, rt.monitor, rt.client, &blogsync.OfflineOptions{
		MaxRetries: cfg.Offline.MaxRetries,
		Logger:     rt.log,
	})
	if err != nil {
		return fmt.Errorf("create offline coordinator: %w", err)
	}
	return rt.offline.Init(ctx)
}

// checkHealth marks the session online when the backend answers.
func (rt *runtime) checkHealth(ctx context.Context, source *blogsync.ManualSource) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.client.Health(ctx); err != nil {
		rt.log.Info("backend unreachable; working offline", zap.Error(err))
		source.SetOffline()
		return
	}
	source.SetOnline(blogsync.TransportUnknown)
}

// Close tears the runtime down in reverse order.
func (rt *runtime) Close() error {
	if rt.offline != nil {
		rt.offline.Destroy()
	}
	if rt.cache != nil {
		rt.cache.Stop()
	}
	if rt.monitor != nil {
		rt.monitor.Destroy()
	}
	var err error
	if rt.ws != nil {
		err = multierr.Append(err, rt.ws.Close())
	}
	if rt.storage != nil {
		err = multierr.Append(err, rt.storage.Close())
	}
	if rt.log != nil {
		// Sync on stderr returns EINVAL on some platforms.
		_ = rt.log.Sync()
	}
	return err
}
