// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"nexus-sale/internal/pkg/logger"
	"nexus-sale/internal/pkg/nacos"
	"nexus-sale/internal/tracing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type AppCtx struct {
	Mux    *http.ServeMux
	Nacos  *nacos.Registry // 未配置 Nacos 时为 nil
	Config *Config
	// OnShutdown 注册关停时执行的清理函数，按注册的逆序执行
	OnShutdown func(func(ctx context.Context) error)
}

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) error // 一个函数，允许每个服务注册自己独特的 HTTP 路由
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	cfg := GetCurrentConfig()
	if info.Port == 0 {
		info.Port = cfg.App.Port
	}
	logger.Init(info.ServiceName, cfg.App.LogLevel)
	log := logger.Logger

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 服务注册（可选）
	var namingClient *nacos.Registry
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.New(nacos.Config{
			ServerAddrs: cfg.Infra.Nacos.ServerAddrs,
			Namespace:   cfg.Infra.Nacos.Namespace,
			Group:       cfg.Infra.Nacos.Group,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
	}

	var cleanups []func(ctx context.Context) error
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		err := info.RegisterHandlers(AppCtx{
			Mux:        mux,
			Nacos:      namingClient,
			Config:     cfg,
			OnShutdown: func(fn func(ctx context.Context) error) { cleanups = append(cleanups, fn) },
		})
		if err != nil {
			log.Fatal().Err(err).Msgf("failed to wire %s", info.ServiceName)
		}
	}

	if namingClient != nil {
		ip, err := outboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		inst := nacos.Instance{Service: info.ServiceName, IP: ip, Port: info.Port, Metadata: map[string]string{"protocol": "http"}}
		if err := namingClient.Register(inst); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	// 3. 启动 HTTP Server，收到信号后优雅关停
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msgf("Shutting down service %s...", info.ServiceName)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// 按顺序执行清理操作 (后进先出)
		if namingClient != nil {
			if err := namingClient.Close(); err != nil {
				log.Error().Err(err).Msg("Error deregistering from Nacos")
			}
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down http server")
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Error running shutdown hook")
			}
		}
		// 最后关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down tracer provider")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msgf("%s stopped with error", info.ServiceName)
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// outboundIP 返回本机对外通信使用的 IP，用于服务注册
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
