package main

import (
	"fmt"

	"github.com/logicshop-core/server/internal/httpapi"
	"github.com/logicshop-core/server/internal/metrics"
	"github.com/logicshop-core/server/internal/shop/catalog"
	"github.com/logicshop-core/server/internal/shop/ledger"
	"github.com/logicshop-core/server/internal/shop/model"
	"github.com/logicshop-core/server/internal/shop/policy"
	"github.com/logicshop-core/server/internal/shop/processor"
	"github.com/logicshop-core/server/internal/shop/session"
	"github.com/logicshop-core/server/internal/shop/txlog"
	logx "github.com/logicshop-core/server/pkg/logger"
	goredis "github.com/redis/go-redis/v9"
)

type app struct {
	server    *httpapi.Server
	processor *processor.Processor
	rdb       *goredis.Client
}

func (a *app) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			logx.Warn().Err(err).Msg("closing redis client")
		}
	}
}

// buildApp wires stores, policy, processor and router from cfg.
func buildApp(cfg AppConfig) (*app, error) {
	set, err := policy.Load(cfg.Preset, cfg.PolicyFile)
	if err != nil {
		return nil, err
	}

	products := catalog.DefaultProducts()
	if cfg.Catalog.SeedFile != "" {
		products, err = catalog.LoadSeed(cfg.Catalog.SeedFile)
		if err != nil {
			return nil, err
		}
	}
	cat, err := catalog.New(products)
	if err != nil {
		return nil, err
	}

	led, err := ledger.New(cfg.User)
	if err != nil {
		return nil, err
	}

	a := &app{}
	var (
		sessions model.SessionStore   = session.NewMemoryStore()
		txLog    model.TransactionLog = txlog.NewMemoryLog()
	)
	if cfg.Redis.Enabled() {
		a.rdb, err = cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("initialise redis client: %w", err)
		}
		sessions = session.NewRedisStore(a.rdb, cfg.Redis.Namespace)
		txLog = txlog.NewRedisLog(a.rdb, cfg.Redis.Namespace)
		logx.Info().Str("namespace", cfg.Redis.Namespace).Msg("using redis for sessions and transaction log")
	}

	recorder := metrics.NewRecorder(set.Name)
	a.processor, err = processor.New(processor.Deps{
		Sessions: sessions,
		Catalog:  cat,
		Ledger:   led,
		Log:      txLog,
	}, set, cfg.Flag, processor.WithRecorder(recorder))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.server, err = httpapi.NewServer(a.processor, recorder, cfg.Routes, cfg.Server)
	if err != nil {
		a.Close()
		return nil, err
	}

	logx.Info().
		Str("preset", set.Name).
		Int("products", len(products)).
		Bool("redis", cfg.Redis.Enabled()).
		Msg("shop configured")
	return a, nil
}
