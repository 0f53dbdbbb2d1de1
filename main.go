package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corvus-paas/controlplane/config"
	"github.com/corvus-paas/controlplane/daemon"
	"github.com/corvus-paas/controlplane/engine"
	"github.com/corvus-paas/controlplane/httpapi"
	"github.com/corvus-paas/controlplane/store"
)

func main() {
	appConfig := config.LoadAppConfig() // loads the config and stores pointer
	logger := appConfig.NewLogger()     // return a logger (slog) based on `LogFormat` (text or json)

	logger.Info("corvus-paas control plane starting",
		"port", appConfig.Port,
		"db_path", appConfig.DBPath,
		"log_format", appConfig.LogFormat,
	)

	// opening the database and running schema migration (init tables).
	// if this fails, the application cannot serve requests, so exit immediately.
	projectStore, err := store.Open(appConfig.DBPath, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer projectStore.Close()

	// Docker client setup
	dockerClient, err := daemon.NewAdapter(logger)
	if err != nil {
		log.Fatalf("failed to connect to docker daemon: %v", err)
	}

	// projectStore satisfies collab.TeamStore, collab.CourseOfferingStore,
	// and collab.AuthOracle directly; a richer collaborators implementation
	// would be swapped in here without touching engine.New's call site.
	corvusEngine := engine.New(projectStore, dockerClient, projectStore, projectStore, projectStore, logger, appConfig)

	startContext, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()
	if err := corvusEngine.Start(startContext); err != nil {
		log.Fatalf("failed to start engine: %v", err)
	}
	defer corvusEngine.Stop()

	router := httpapi.NewRouter(httpapi.Dependencies{
		Logger: logger,
		Engine: corvusEngine,
	})

	// Explicit HTTP Server Instantiation:
	// the standard library's http.ListenAndServe leaves timeouts at their
	// infinite zero-values; a production service sets finite deadlines
	// instead so a slow or hung client cannot pin a connection forever.
	server := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// the server runs in a goroutine so the main goroutine can block on the
	// signal channel. When an OS signal (SIGINT/SIGTERM) is received, the
	// server is given a 10-second window to finish in-flight requests.
	shutdownChannel := make(chan error, 1)

	go func() {
		logger.Info("http server listening", "addr", server.Addr)

		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			shutdownChannel <- err
		}
		close(shutdownChannel)
	}()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("startup complete, server ready to serve", "port", appConfig.Port)

	select {
	case sig := <-signalChannel:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-shutdownChannel:
		if err != nil {
			log.Fatalf("http server failed: %v", err)
		}
	}

	shutdownContext, cancelShutdownContext := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdownContext()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	} else {
		logger.Info("server shut down cleanly")
	}
}
