package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Unleash/unleash-edge/internal/edgeapp"
	"github.com/Unleash/unleash-edge/internal/httpapi"
	"github.com/Unleash/unleash-edge/pkg/config"
)

// serve builds the composition root from cfg, starts its background loops,
// binds the downstream HTTP listener, and blocks until SIGINT/SIGTERM or an
// unrecoverable startup fault. It is shared by the edge and offline
// subcommands; only the mode on cfg differs between them.
func serve(cfg *config.Config) error {
	app, err := edgeapp.New(cfg)
	if err != nil {
		return runtimeFault("build instance: %v", err)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		return runtimeFault("start instance: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return runtimeFault("listen on %s: %v", addr, err)
	}

	server := &http.Server{
		Handler: httpapi.NewHandler(app),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	app.Logger.WithFields(map[string]interface{}{
		"address": addr,
		"mode":    string(cfg.Mode),
	}).Info("edge proxy listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		app.Logger.WithFields(map[string]interface{}{"signal": sig.String()}).Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return runtimeFault("http server: %v", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.WithError(err).Warn("http server shutdown did not complete cleanly")
	}
	if err := app.Stop(shutdownCtx); err != nil {
		app.Logger.WithError(err).Warn("instance shutdown did not complete cleanly")
	}
	return nil
}
