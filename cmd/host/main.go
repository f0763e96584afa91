package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/DoyleJ11/nofus-backend/internal/config"
	"github.com/DoyleJ11/nofus-backend/internal/content"
	"github.com/DoyleJ11/nofus-backend/internal/host"
	"github.com/DoyleJ11/nofus-backend/internal/hostclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.LoadHost()
	if err != nil {
		return err
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, token := cfg.RoomCode, cfg.HostToken
	if code == "" {
		created, err := hostclient.CreateRoom(ctx, nil, cfg.RelayURL)
		if err != nil {
			return err
		}
		code, token = created.RoomCode, created.HostToken
		// The token is needed to rejoin this room after a restart.
		log.Info("room created", zap.String("room", code), zap.String("hostToken", token))
	}

	conn, err := hostclient.Dial(ctx, cfg.RelayURL, code, token)
	if err != nil {
		return err
	}
	defer conn.Close()

	var provider content.Provider = content.NewWikipedia(cfg.ContentURL)
	if cfg.ContentProvider == "static" {
		provider = content.NewStatic()
	}

	sess, err := host.NewSession(code, token, conn, host.Options{
		Config:          cfg.Game,
		Provider:        provider,
		TickInterval:    cfg.TickInterval,
		RecoveryTimeout: cfg.RecoveryTimeout,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	log.Info("hosting", zap.String("room", code))
	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, hostclient.ErrClosed) {
		return nil
	}
	return err
}
