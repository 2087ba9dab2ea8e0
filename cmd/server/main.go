package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/roomchat/internal/auth"
	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/moderation"
	"github.com/Tyrowin/roomchat/internal/server"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2

	shutdownTimeout = 10 * time.Second
)

type exitError struct {
	code int
	err  error
}

func (e exitError) Error() string { return e.err.Error() }

func main() {
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "roomchat",
		Usage: "real-time room-based chat relay",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "port",
				Usage:   "listen address, e.g. :8908",
				Sources: cli.EnvVars("SERVER_PORT"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "roomchat terminated with error: %v\n", err)
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return exitError{code: exitConfig, err: err}
	}
	if port := cmd.String("port"); port != "" {
		cfg.Port = port
	}
	server.SetConfig(cfg)
	active := server.CurrentConfig()

	logger := logs.GetLoggerFromString(active.LogLevel)
	slog.SetDefault(logger)

	moderator, err := moderation.NewModerator(active.CensoredWords, active.CensorCharacter, logger)
	if err != nil {
		return exitError{code: exitConfig, err: fmt.Errorf("moderator: %w", err)}
	}

	var verifier *auth.Verifier
	if active.AuthSecret != "" {
		verifier = auth.NewVerifier(active.AuthSecret)
		logger.Info("Login tokens required on /ws")
	}

	registry := chat.NewRegistry(logger)
	router := chat.NewRouter(registry, logger)
	dispatcher := chat.NewDispatcher(registry, router, moderator, active.DefaultRoom, logger)
	hub := server.NewHub(dispatcher, logger)
	server.StartHub(hub)

	httpServer := server.CreateServer(active.Port, server.SetupRoutes(hub, verifier))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		_ = hub.Shutdown(shutdownTimeout)
		return exitError{code: exitRuntime, err: fmt.Errorf("http server: %w", err)}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("Hub shutdown incomplete", "error", err)
	}
	logger.Info("Program stopped cleanly")
	return nil
}
