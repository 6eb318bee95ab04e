package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/vvv37912/iotedge/internal/common/logging"
	"github.com/vvv37912/iotedge/internal/condition"
	"github.com/vvv37912/iotedge/internal/config"
	"github.com/vvv37912/iotedge/internal/diagnostics"
	"github.com/vvv37912/iotedge/internal/handlers"
	"github.com/vvv37912/iotedge/internal/middleware"
	"github.com/vvv37912/iotedge/internal/routing"
	"github.com/vvv37912/iotedge/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.NewZapLogger(logging.LogConfig{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Prefix: "iotedge",
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)
	defer logging.MustSync()

	routerCfg, err := config.LoadRouterConfig(cfg.RoutesFile)
	if err != nil {
		log.Fatalf("Failed to load routes: %v", err)
	}

	compiler, err := condition.NewCompiler()
	if err != nil {
		log.Fatalf("Failed to initialize condition compiler: %v", err)
	}

	diag := diagnostics.NewLogSink(logger)
	evaluator, err := routing.NewEvaluator(routerCfg, compiler, diag)
	if err != nil {
		log.Fatalf("Failed to build route table: %v", err)
	}
	logger.Info("route table ready",
		logging.Field{Key: "route_count", Value: len(routerCfg.Routes)},
		logging.Field{Key: "has_fallback", Value: routerCfg.Fallback != nil},
	)

	h := handlers.New(evaluator, diag, logger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/routes", h.GetRoutes).Methods("GET")
	api.HandleFunc("/routes", h.ReplaceRoutes).Methods("PUT")
	api.HandleFunc("/routes/test", h.TestEvaluate).Methods("POST")
	api.HandleFunc("/routes/{id}", h.SetRoute).Methods("PUT")
	api.HandleFunc("/routes/{id}", h.DeleteRoute).Methods("DELETE")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")

	router.HandleFunc("/health", h.HealthCheck).Methods("GET")

	srv := server.New(router, cfg.Port, cfg.TLSCert, cfg.TLSKey)
	errCh := make(chan error, 1)
	srv.Start(errCh)
	logger.Info("admin API listening", logging.Field{Key: "port", Value: cfg.Port})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-quit:
	}
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if err := evaluator.Close(ctx); err != nil {
		logger.Error("evaluator close failed", err)
	}
	logger.Info("server exited")
}
