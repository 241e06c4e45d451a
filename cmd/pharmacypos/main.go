// Package main boots the pharmacy stock and point-of-sale HTTP service.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	inventory "pharmacyinventory"
	"pharmacyinventory/internal/config"
	"pharmacyinventory/internal/httpapi"
	"pharmacyinventory/internal/obs"
)

func main() {
	cfg := config.Load()
	obs.InitLogger()
	obs.Logger.Info("service_starting", "warehouse_id", cfg.WarehouseID)

	st, err := inventory.OpenSQLite(cfg.DBPath)
	if err != nil {
		obs.Logger.Error("store_open_failed", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	app := httpapi.NewApp(cfg, st)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		obs.Logger.Info("http_listen", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obs.Logger.Error("http_server_error", "error", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				obs.Logger.Info("http_shutdown")
				return srv.Shutdown(ctx)
			},
		},
	)
	exitCode := <-wait
	if err := st.Close(); err != nil {
		obs.Logger.Error("store_close_failed", "error", err)
	}
	obs.Logger.Info("service_stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}
