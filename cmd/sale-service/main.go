// cmd/sale-service/main.go
package main

import (
	"context"
	"fmt"

	"nexus-sale/internal/pkg/bootstrap"
	"nexus-sale/internal/pkg/database"
	"nexus-sale/internal/pkg/httpclient"
	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/mq"
	"nexus-sale/internal/pkg/redis"
	"nexus-sale/internal/service/sale/application"
	"nexus-sale/internal/service/sale/domain"
	"nexus-sale/internal/service/sale/domain/port"
	"nexus-sale/internal/service/sale/infrastructure"
	"nexus-sale/internal/service/sale/infrastructure/adapter"
	"nexus-sale/internal/service/sale/infrastructure/rule"
	"nexus-sale/internal/service/sale/interfaces"

	"github.com/go-zookeeper/zk"
	"go.opentelemetry.io/otel"
)

const serviceName = "sale-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: registerHandlers,
	})
}

func registerHandlers(appCtx bootstrap.AppCtx) error {
	cfg := appCtx.Config
	tracer := otel.Tracer(serviceName)

	// 1. 存储
	store, err := buildStore(appCtx)
	if err != nil {
		return err
	}

	// 2. 订单锁
	locker, err := buildLocker(appCtx)
	if err != nil {
		return err
	}

	// 3. 授权策略
	policy, err := rule.NewCELPolicy(cfg.Sale.Policy)
	if err != nil {
		return err
	}

	// 4. 事件：Kafka + WebSocket 推送
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := interfaces.NewHub()
	go hub.Run(hubCtx)
	appCtx.OnShutdown(func(context.Context) error {
		stopHub()
		return nil
	})
	publishers := adapter.FanoutPublisher{hub}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic)
		appCtx.OnShutdown(func(context.Context) error { return writer.Close() })
		publishers = append(publishers, adapter.NewEventKafkaAdapter(writer))
	}

	// 5. 远端服务
	httpClient := httpclient.NewClient(tracer)
	wallet := adapter.NewWalletHTTPAdapter(httpClient, resolver(appCtx, cfg.Sale.WalletURL, cfg.Sale.WalletService))
	destinations := adapter.NewDestinationHTTPAdapter(httpClient, resolver(appCtx, cfg.Sale.DestinationURL, cfg.Sale.DestinationService))

	svc, err := application.NewSaleService(application.Deps{
		Store:               store,
		Wallet:              wallet,
		Destinations:        destinations,
		Locker:              locker,
		Authorizer:          policy,
		Publisher:           publishers,
		Tracer:              tracer,
		RemoteTimeout:       cfg.Sale.RemoteTimeout,
		CompensationTimeout: cfg.Sale.CompensationTimeout,
		PublishTimeout:      cfg.Sale.PublishTimeout,
	})
	if err != nil {
		return err
	}

	interfaces.NewSaleHandler(svc, hub).RegisterRoutes(appCtx.Mux)
	return nil
}

func buildStore(appCtx bootstrap.AppCtx) (domain.Store, error) {
	cfg := appCtx.Config
	switch cfg.Sale.StoreDriver {
	case "memory":
		logger.Logger.Warn().Msg("using in-memory store, data will be lost on restart")
		return infrastructure.NewMemoryStore(), nil
	case "mysql", "":
		db, err := database.OpenMySQL(cfg.Infra.MySQL.FormatDSN(), cfg.Infra.MySQL.MaxOpenConns, cfg.Infra.MySQL.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := infrastructure.AutoMigrate(db); err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error { return database.Close(db) })
		return infrastructure.NewGormStore(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Sale.StoreDriver)
}

func buildLocker(appCtx bootstrap.AppCtx) (port.OrderLocker, error) {
	cfg := appCtx.Config
	switch cfg.Sale.LockBackend {
	case "memory", "":
		return application.NewLockTable(), nil
	case "redis":
		client, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addrs, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
		if err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error { return client.Close() })
		return adapter.NewRedisLocker(client, cfg.Infra.Redis.LockTTL)
	case "zookeeper":
		conn, _, err := zk.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect zookeeper: %w", err)
		}
		appCtx.OnShutdown(func(context.Context) error {
			conn.Close()
			return nil
		})
		return adapter.NewZookeeperLocker(conn, cfg.Infra.Zookeeper.LockRoot), nil
	}
	return nil, fmt.Errorf("unknown lock backend %q", cfg.Sale.LockBackend)
}

// resolver 显式配置的 URL 优先，否则通过 Nacos 按服务名发现
func resolver(appCtx bootstrap.AppCtx, url, service string) httpclient.Resolver {
	if url == "" && appCtx.Nacos != nil {
		return appCtx.Nacos.Resolver(service)
	}
	return httpclient.StaticResolver(url)
}
