package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mediafetch/fetchd/internal/engine"
	"github.com/mediafetch/fetchd/internal/model"
	"github.com/mediafetch/fetchd/internal/session"
	"github.com/mediafetch/fetchd/internal/store"
	"github.com/mediafetch/fetchd/internal/vault"

	"github.com/stretchr/testify/require"
)

type okProber struct{}

func (okProber) Connectivity(context.Context) bool      { return true }
func (okProber) Reachable(context.Context, string) bool { return true }

// newManager wires a manager over an engine whose tool is a shell
// script exiting cleanly.
func newManager(t *testing.T) (*session.Manager, *engine.Engine) {
	t.Helper()

	toolPath := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(toolPath, []byte("#!/bin/sh\ntrue\n"), 0o755))

	var cfg engine.Config
	cfg.Tool.Path = toolPath
	cfg.Tool.WallTimeout = 10 * time.Second
	cfg.Tool.StallTimeout = 5 * time.Second
	cfg.Tool.Grace = time.Second
	cfg.Retry.Delay = 10 * time.Millisecond
	cfg.Janitor.Retention = "1h"
	cfg.DownloadsDir = t.TempDir()
	cfg.Credentials.Dir = filepath.Join(t.TempDir(), "creds")

	key, err := vault.NewKey()
	require.NoError(t, err)
	keeper, err := vault.NewKeeper(cfg.Credentials.Dir, key)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, cfg, store.NewMemory(), keeper, okProber{})
	t.Cleanup(func() {
		cancel()
		eng.Wait()
	})
	return session.NewManager(eng), eng
}

func waitDone(t *testing.T, mgr *session.Manager, owner, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		job, err := mgr.Status(owner, id)
		return err == nil && job.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)
}

func TestManagerIsolation(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t)

	id, err := mgr.Start(t.Context(), "alice", "https://example.com/g", nil)
	require.NoError(t, err)

	// the owner sees the job
	_, err = mgr.Status("alice", id)
	require.NoError(t, err)
	require.Len(t, mgr.List("alice"), 1)

	// everyone else gets the same answer as for an unknown id
	_, err = mgr.Status("bob", id)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = mgr.Status("bob", "no-such-id")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, mgr.List("bob"))
	require.False(t, mgr.Cancel(t.Context(), "bob", id))
	require.False(t, mgr.Delete(t.Context(), "bob", id))

	// the job is untouched by the denied calls
	waitDone(t, mgr, "alice", id)
	job, err := mgr.Status("alice", id)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, job.Status)
}

func TestManagerDelete(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t)

	id, err := mgr.Start(t.Context(), "alice", "https://example.com/g", nil)
	require.NoError(t, err)
	waitDone(t, mgr, "alice", id)

	require.True(t, mgr.Delete(t.Context(), "alice", id))
	_, err = mgr.Status("alice", id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.False(t, mgr.Delete(t.Context(), "alice", id))
}

func TestManagerEngineDeleteEvictsOwnership(t *testing.T) {
	t.Parallel()
	mgr, eng := newManager(t)

	id, err := mgr.Start(t.Context(), "alice", "https://example.com/g", nil)
	require.NoError(t, err)
	waitDone(t, mgr, "alice", id)

	// deletion behind the manager's back, as the janitor would do it
	require.True(t, eng.Delete(t.Context(), id))

	_, err = mgr.Status("alice", id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Empty(t, mgr.List("alice"))
}

func TestManagerClearHistory(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t)

	aliceID, err := mgr.Start(t.Context(), "alice", "https://example.com/a", nil)
	require.NoError(t, err)
	bobID, err := mgr.Start(t.Context(), "bob", "https://example.com/b", nil)
	require.NoError(t, err)
	waitDone(t, mgr, "alice", aliceID)
	waitDone(t, mgr, "bob", bobID)

	mgr.ClearHistory(t.Context(), "alice")

	require.Empty(t, mgr.List("alice"))
	require.Len(t, mgr.List("bob"), 1)
}

func TestManagerStatistics(t *testing.T) {
	t.Parallel()
	mgr, _ := newManager(t)

	aliceID, err := mgr.Start(t.Context(), "alice", "https://example.com/a", nil)
	require.NoError(t, err)
	bobID, err := mgr.Start(t.Context(), "bob", "https://example.com/b", nil)
	require.NoError(t, err)
	waitDone(t, mgr, "alice", aliceID)
	waitDone(t, mgr, "bob", bobID)

	require.Equal(t, model.Statistics{Total: 1, Completed: 1}, mgr.Statistics("alice"))
	require.Equal(t, model.Statistics{Total: 1, Completed: 1}, mgr.Statistics("bob"))
	require.Equal(t, model.Statistics{}, mgr.Statistics("carol"))
}
