package main

import (
	"context"
	"fmt"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"ummah-sync/config"
	"ummah-sync/internal/alert"
	"ummah-sync/internal/db"
	"ummah-sync/internal/geo"
	"ummah-sync/internal/keystore"
	"ummah-sync/internal/model"
	"ummah-sync/internal/notification"
	"ummah-sync/internal/push"
	"ummah-sync/internal/reconciler"
	"ummah-sync/internal/remote"
	"ummah-sync/internal/store"
)

// app is the wired set of collaborators behind every command.
type app struct {
	cfg     *config.Config
	db      *gorm.DB
	keys    keystore.KeyStore
	webpush *webpush.Options
	relay   *notification.WorkerPool
	rec     *reconciler.Reconciler
	closers []func()
}

// newApp wires the collaborators. withPush enables the push channel and
// the Web Push relay, which only the daemon needs.
func newApp(ctx context.Context, cfg *config.Config, withPush bool) (*app, error) {
	a := &app{cfg: cfg}

	gormDB, err := db.Open(&cfg.Cache)
	if err != nil {
		return nil, err
	}
	a.db = gormDB
	if sqlDB, err := gormDB.DB(); err == nil {
		a.closers = append(a.closers, func() { sqlDB.Close() })
	}

	switch cfg.KeyStore.Driver {
	case "redis":
		rdb, err := keystore.NewRedis(ctx, cfg.KeyStore.RedisAddress, cfg.KeyStore.RedisUsername,
			cfg.KeyStore.RedisPassword, cfg.KeyStore.RedisDB, "ummah:")
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to connect key store: %w", err)
		}
		a.keys = rdb
		a.closers = append(a.closers, func() { rdb.Close() })
	case "memory":
		log.Warn().Msg("using in-memory key store; the session will not survive a restart")
		a.keys = keystore.NewMemory()
	default:
		a.Close()
		return nil, fmt.Errorf("unsupported keystore driver %q", cfg.KeyStore.Driver)
	}

	opts := reconciler.Options{
		Store:         store.NewGormStore(gormDB),
		Keys:          a.keys,
		Remote:        remote.NewClient(cfg.Remote),
		Locator:       geo.FromConfig(cfg.Location),
		SyncInterval:  cfg.Sync.Interval,
		AlertInterval: cfg.Sync.AlertInterval,
		Morning:       alert.Window{Start: cfg.Reminders.MorningStartHour, End: cfg.Reminders.MorningEndHour},
		Evening:       alert.Window{Start: cfg.Reminders.EveningStartHour, End: cfg.Reminders.EveningEndHour},
		DefaultCoordinate: model.Coordinate{
			Lat: cfg.Location.DefaultLat,
			Lng: cfg.Location.DefaultLng,
		},
		Zone: cfg.Location.Zone,
	}

	if withPush && cfg.Push.Enabled {
		opts.Push = push.NewMQTT(cfg.Push.TopicPrefix)
		opts.Endpoint = cfg.Push.BrokerURL
	}
	if withPush && cfg.WebPush.Enabled {
		if cfg.WebPush.PublicKey == "" || cfg.WebPush.PrivateKey == "" {
			a.Close()
			return nil, fmt.Errorf("webpush is enabled but VAPID keys are not configured")
		}
		a.webpush = &webpush.Options{
			VAPIDPublicKey:  cfg.WebPush.PublicKey,
			VAPIDPrivateKey: cfg.WebPush.PrivateKey,
			Subscriber:      cfg.WebPush.Subject,
			TTL:             cfg.WebPush.TTL,
		}
		a.relay = notification.NewWorkerPool(cfg.WebPush.Workers, gormDB, a.webpush)
		opts.Notifier = a.relay
	}

	a.rec = reconciler.New(opts)
	return a, nil
}

// start runs the reconciler in the background and waits for bootstrap.
// The returned function stops it and waits for teardown.
func (a *app) start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	if a.relay != nil {
		a.relay.Start(ctx)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := a.rec.Run(ctx); err != nil {
			log.Error().Err(err).Msg("reconciler stopped with error")
		}
	}()

	select {
	case <-a.rec.Ready():
	case <-ctx.Done():
	}
	return func() {
		cancel()
		<-done
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
