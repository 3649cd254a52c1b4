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

	"github.com/spf13/cobra"

	"github.com/mediafetch/fetchd/internal/api"
	"github.com/mediafetch/fetchd/internal/engine"
	"github.com/mediafetch/fetchd/internal/netprobe"
	"github.com/mediafetch/fetchd/internal/session"
	"github.com/mediafetch/fetchd/internal/store"
	"github.com/mediafetch/fetchd/internal/tool"
	"github.com/mediafetch/fetchd/internal/vault"
)

const shutdownGrace = 10 * time.Second

func doServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	toolPath, err := tool.Lookup(engineCfg.Tool.Path)
	if err != nil {
		return err
	}

	key, err := engineCfg.CredentialsKey()
	if err != nil {
		return err
	}
	if key == nil {
		// No key configured: credentials survive only this process.
		key, err = vault.NewKey()
		if err != nil {
			return fmt.Errorf("generating credentials key: %w", err)
		}
		slog.WarnContext(ctx, "credentials.key not configured, using an ephemeral key")
	}

	keeper, err := vault.NewKeeper(engineCfg.Credentials.Dir, key)
	if err != nil {
		return err
	}

	eng := engine.New(ctx, engineCfg, store.NewMemory(), keeper, netprobe.NewDialer())

	scheduler, err := eng.StartJanitor(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.ErrorContext(ctx, "shutting down janitor", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    serviceCfg.Listen,
		Handler: api.New(session.NewManager(eng)).Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	}()

	slog.InfoContext(ctx, "fetchd serving", "listen", serviceCfg.Listen, "tool", toolPath)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// Workers observe the cancelled context; give them time to tear
	// down their processes before the binary exits.
	eng.Wait()
	return nil
}
