package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/internal/api"
	"parley/internal/auth"
	"parley/internal/commands"
	"parley/internal/config"
	"parley/internal/filestore"
	"parley/internal/http"
	"parley/internal/storage"
	"parley/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("parley", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Username to create on a running server (prints a session token)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, cfg, os.Stdout)
	}

	log := cfg.Logger(os.Stderr)
	slog.SetDefault(log)

	authService, err := auth.NewAuthService(ctx, auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	})
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	hub := ws.NewHub(bbStorage, log)
	wsServer := ws.NewServer(authService, hub, ws.ServerConfig{
		SendBuffer:   cfg.SendBuffer,
		PingInterval: cfg.PingInterval,
	}, log)

	apiHandlers := api.New(api.Config{
		Auth:           authService,
		Store:          bbStorage,
		Hub:            hub,
		Files:          files,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Log:            log,
	})
	adminHandler := api.NewAdminHandler(authService, bbStorage, hub, log)

	adminServer := http.NewAdminServer(adminHandler, cfg.AdminAddr, log)
	apiServer := http.NewAPIServer(apiHandlers, wsServer, cfg.APIAddr, log)

	// The presence worker outlives the servers so the offline transitions of
	// the connections closed on shutdown are still written.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(workerCtx)
	})

	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("API server shutdown error", "error", err)
		}
		// Websocket connections are hijacked and not closed by Shutdown.
		hub.CloseAll()
		stopWorker()
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
