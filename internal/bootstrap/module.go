package bootstrap

import (
	"context"
	"log/slog"
	"os"

	"github.com/Domenick1991/reservations/api"
	"github.com/Domenick1991/reservations/config"
	"github.com/Domenick1991/reservations/internal/cache"
	reservationsapi "github.com/Domenick1991/reservations/internal/api/reservations_service_api"
	"github.com/Domenick1991/reservations/internal/clock"
	"github.com/Domenick1991/reservations/internal/kafka"
	"github.com/Domenick1991/reservations/internal/logger"
	"github.com/Domenick1991/reservations/internal/repository"
	"github.com/Domenick1991/reservations/internal/service/catalog"
	"github.com/Domenick1991/reservations/internal/service/reservation"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// Module wires the API process: HTTP and gRPC over the reservation manager.
var Module = fx.Options(
	ConfigModule,
	InfraModule,
	ServiceModule,
	TransportModule,
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		func() (config.Config, error) { return config.LoadConfig(ConfigPath()) },
		func(cfg config.Config) *slog.Logger { return logger.New(cfg.Log, os.Stdout) },
	),
)

// NamedCheck is collected into the "health" group and served on /healthz.
type NamedCheck struct {
	Name  string
	Check api.HealthCheck
}

type storeOut struct {
	fx.Out
	Store  repository.Store
	Health NamedCheck `group:"health"`
}

type cacheOut struct {
	fx.Out
	Cache  *cache.RedisCache
	Health NamedCheck `group:"health"`
}

var InfraModule = fx.Module("infra",
	fx.Provide(
		provideStore,
		provideCache,
		provideProducer,
	),
)

func provideStore(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (storeOut, error) {
	store, err := OpenStore(context.Background(), cfg.Database, logger)
	if err != nil {
		return storeOut{}, err
	}
	lc.Append(fx.StopHook(store.Close))
	return storeOut{Store: store.Store, Health: NamedCheck{Name: "store", Check: store.Ping}}, nil
}

func provideCache(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) (cacheOut, error) {
	c, err := OpenCache(context.Background(), cfg.Redis, logger)
	if err != nil || c == nil {
		return cacheOut{}, err
	}
	lc.Append(fx.StopHook(c.Close))
	return cacheOut{Cache: c, Health: NamedCheck{Name: "redis", Check: c.Ping}}, nil
}

func provideProducer(lc fx.Lifecycle, cfg config.Config, logger *slog.Logger) *kafka.Producer {
	p := OpenProducer(context.Background(), cfg.Kafka, logger)
	if p != nil {
		lc.Append(fx.StopHook(p.Close))
	}
	return p
}

var ServiceModule = fx.Module("service",
	fx.Provide(
		NewManager,
		func(m *reservation.Manager) reservation.UseCase { return m },
		provideCatalog,
		func(s *catalog.CatalogService) catalog.CatalogUseCase { return s },
	),
)

func provideCatalog(store repository.Store, redisCache *cache.RedisCache, logger *slog.Logger) *catalog.CatalogService {
	var snapshots catalog.SnapshotCache
	if redisCache != nil {
		snapshots = redisCache
	}
	return catalog.NewCatalogService(store, snapshots, clock.NewSystem(), logger)
}

type routerIn struct {
	fx.In
	Config    config.Config
	Logger    *slog.Logger
	Checks    []NamedCheck `group:"health"`
	Holds     *api.HoldsHandler
	Inventory *api.InventoryHandler
}

var TransportModule = fx.Module("transport",
	fx.Provide(
		api.NewHoldsHandler,
		api.NewInventoryHandler,
		provideRouter,
		func(uc reservation.UseCase, pools *catalog.CatalogService, logger *slog.Logger) reservationsapi.ReservationServiceServer {
			return reservationsapi.NewServer(uc, pools, logger)
		},
		NewGRPCServer,
		NewServers,
	),
	fx.Invoke(registerServers),
)

func provideRouter(in routerIn) *gin.Engine {
	checks := make(map[string]api.HealthCheck, len(in.Checks))
	for _, c := range in.Checks {
		if c.Check != nil {
			checks[c.Name] = c.Check
		}
	}
	return api.NewRouter(in.Config, in.Logger, checks, in.Holds, in.Inventory)
}

func registerServers(lc fx.Lifecycle, shutdowner fx.Shutdowner, servers *Servers, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			errCh, err := servers.Start()
			if err != nil {
				return err
			}
			go func() {
				err := <-errCh
				logger.Error("server failed", "error", err)
				_ = shutdowner.Shutdown(fx.ExitCode(1))
			}()
			return nil
		},
		OnStop: servers.Stop,
	})
}
