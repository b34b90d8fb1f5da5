// cmd/wallet-service/main.go
package main

import (
	"context"
	"fmt"

	"nexus-sale/internal/pkg/bootstrap"
	"nexus-sale/internal/pkg/database"
	"nexus-sale/internal/service/wallet/application"
	"nexus-sale/internal/service/wallet/domain"
	"nexus-sale/internal/service/wallet/infrastructure"
	"nexus-sale/internal/service/wallet/interfaces"
)

const serviceName = "wallet-service"

func main() {
	bootstrap.Init(serviceName)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) error {
			repo, err := buildRepository(appCtx)
			if err != nil {
				return err
			}
			interfaces.NewWalletHandler(application.NewWalletService(repo)).RegisterRoutes(appCtx.Mux)
			return nil
		},
	})
}

func buildRepository(appCtx bootstrap.AppCtx) (domain.Repository, error) {
	cfg := appCtx.Config
	switch cfg.Wallet.StoreDriver {
	case "memory":
		return infrastructure.NewMemoryRepository(), nil
	case "mysql", "":
		db, err := database.OpenMySQL(cfg.Infra.MySQL.FormatDSN(), cfg.Infra.MySQL.MaxOpenConns, cfg.Infra.MySQL.MaxIdleConns)
		if err != nil {
			return nil, err
		}
		if err := infrastructure.AutoMigrate(db); err != nil {
			return nil, err
		}
		appCtx.OnShutdown(func(context.Context) error { return database.Close(db) })
		return infrastructure.NewGormRepository(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Wallet.StoreDriver)
}
