package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/tools/ids"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("[Main] %v", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, watcher, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)
	defer logger.Sync()
	config.Global = cfg
	ids.SetNodeID(cfg.NodeID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	if watcher != nil {
		watchConfig(watcher)
	}

	// ---- gRPC 健康检查 ----
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	lis, err := net.Listen("tcp", cfg.GrpcAddr)
	if err != nil {
		app.close()
		return err
	}
	go func() {
		if err := gs.Serve(lis); err != nil {
			logger.Warnf("[gRPC] serve stopped: %v", err)
		}
	}()

	// ---- HTTP / WebSocket ----
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: app.routes(cfg)}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("[Main] gateway %s listening http=%s grpc=%s", cfg.GatewayID, cfg.HTTPAddr, cfg.GrpcAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	app.announce(cfg)

	select {
	case <-ctx.Done():
		logger.Infof("[Main] shutdown signal received")
	case err = <-errCh:
		logger.Errorf("[Main] http server: %v", err)
	}

	// ---- 优雅退出：先摘流量，再断连接，最后等投递收尾 ----
	hs.Shutdown()
	app.withdraw()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if e := srv.Shutdown(shutdownCtx); e != nil {
		logger.Warnf("[Main] http shutdown: %v", e)
	}
	if e := app.gateway.Shutdown(shutdownCtx); e != nil {
		logger.Warnf("[Main] gateway shutdown: %v", e)
	}
	app.coordinator.Wait()
	gs.GracefulStop()
	app.close()
	return err
}
