// Package app wires storage, chain clients, POS adapters, and domain
// services into one lifecycle-managed application.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-redis/redis/v8"

	"github.com/groundscore/commerce_layer/internal/config"
	"github.com/groundscore/commerce_layer/internal/httpapi"
	"github.com/groundscore/commerce_layer/internal/pos"
	"github.com/groundscore/commerce_layer/internal/pos/marketplace"
	"github.com/groundscore/commerce_layer/internal/pos/squarepos"
	"github.com/groundscore/commerce_layer/internal/services/cart"
	"github.com/groundscore/commerce_layer/internal/services/distribution"
	paymentsvc "github.com/groundscore/commerce_layer/internal/services/payment"
	"github.com/groundscore/commerce_layer/internal/services/syncer"
	"github.com/groundscore/commerce_layer/internal/storage"
	"github.com/groundscore/commerce_layer/internal/storage/postgres"
	"github.com/groundscore/commerce_layer/internal/system"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Shops   storage.ShopStore
	Orders  storage.OrderStore
	Farmers storage.FarmerStore
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	closers []io.Closer

	Cart    *cart.Service
	Builder *paymentsvc.Builder
	Syncer  *syncer.Service
	Handler *httpapi.Handler
}

// New builds a fully initialised application from configuration. Explicit
// stores override the config-driven choice (tests pass Memory directly).
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	a := &Application{manager: system.NewManager(), log: log}

	if stores.Shops == nil || stores.Orders == nil || stores.Farmers == nil {
		backend, err := a.openStores(cfg)
		if err != nil {
			return nil, err
		}
		if stores.Shops == nil {
			stores.Shops = backend
		}
		if stores.Orders == nil {
			stores.Orders = backend
		}
		if stores.Farmers == nil {
			stores.Farmers = backend
		}
	}

	nonces, err := a.openNonceRegistry(cfg)
	if err != nil {
		return nil, err
	}
	confirmer, err := a.openConfirmer(cfg, log)
	if err != nil {
		return nil, err
	}

	calc := distribution.NewCalculator()
	cartSvc := cart.New(stores.Orders, stores.Shops, confirmer, calc, log.WithField("service", "cart"))
	builder := paymentsvc.NewBuilder(cfg.Chain, nonces)

	registry := pos.NewRegistry(
		squarepos.New(cfg.POS.SquareBaseURL, cfg.POS.SquareAccessToken),
		marketplace.New(cfg.POS.MarketplaceURL, cfg.POS.MarketplaceAPIKey),
	)
	syncSvc := syncer.New(stores.Shops, cartSvc, registry, log.WithField("service", "syncer"))

	scheduler := syncer.NewScheduler(syncSvc, cfg.SyncSchedule, log.WithField("service", "shop-sync"))
	if err := a.manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register shop-sync: %w", err)
	}

	a.Cart = cartSvc
	a.Builder = builder
	a.Syncer = syncSvc
	a.Handler = httpapi.NewHandler(cartSvc, builder, syncSvc, stores.Shops, stores.Farmers, httpapi.Options{
		DevMode:   cfg.DevMode,
		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,
	}, log.WithField("service", "httpapi"))

	return a, nil
}

type combinedStore interface {
	storage.ShopStore
	storage.OrderStore
	storage.FarmerStore
}

func (a *Application) openStores(cfg *config.Config) (combinedStore, error) {
	if cfg.DatabaseURL == "" {
		a.log.Warn("DATABASE_URL not set; using in-memory storage")
		return storage.NewMemory(), nil
	}
	store, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *Application) openNonceRegistry(cfg *config.Config) (paymentsvc.NonceRegistry, error) {
	if cfg.RedisURL == "" {
		return paymentsvc.NewMemoryNonceRegistry(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	a.closers = append(a.closers, client)
	return paymentsvc.NewRedisNonceRegistry(client), nil
}

func (a *Application) openConfirmer(cfg *config.Config, log *logger.Logger) (cart.Confirmer, error) {
	if cfg.Chain.RPCURL == "" {
		a.log.Warn("CHAIN_RPC_URL not set; payment confirmation disabled")
		return nil, nil
	}
	client, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	a.closers = append(a.closers, closerFunc(func() error {
		client.Close()
		return nil
	}))
	return paymentsvc.NewPoller(client, cfg.Chain.ConfirmAttempts, cfg.Chain.ConfirmBackoff, log.WithField("service", "confirmer")), nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and releases held connections.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		if cerr := a.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
