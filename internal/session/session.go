// Package session scopes job visibility to the caller that created the
// job. Ownership is tracked server-side, keyed by a server-minted owner
// token; a job belonging to someone else is indistinguishable from a
// job that does not exist.
package session

import (
	"context"
	"sync"

	"github.com/mediafetch/fetchd/internal/engine"
	"github.com/mediafetch/fetchd/internal/model"
	"github.com/mediafetch/fetchd/internal/store"
)

// Manager wraps the engine's upward interface with a per-owner
// allow-list. Ownership sets are created lazily, grow only through
// Start and shrink on deletion, including deletions performed by the
// janitor.
type Manager struct {
	engine *engine.Engine

	mx    sync.Mutex
	owned map[string]map[string]struct{}
}

func NewManager(eng *engine.Engine) *Manager {
	m := &Manager{
		engine: eng,
		owned:  make(map[string]map[string]struct{}),
	}
	eng.OnDelete(m.evict)
	return m
}

// Start creates a job owned by owner.
func (m *Manager) Start(ctx context.Context, owner, rawURL string, credentials []byte) (string, error) {
	id, err := m.engine.Start(ctx, rawURL, owner, credentials)
	if err != nil {
		return "", err
	}

	m.mx.Lock()
	set, ok := m.owned[owner]
	if !ok {
		set = make(map[string]struct{})
		m.owned[owner] = set
	}
	set[id] = struct{}{}
	m.mx.Unlock()
	return id, nil
}

// Status returns the owner's job snapshot, or ErrNotFound for ids the
// owner does not hold, existence is never leaked across callers.
func (m *Manager) Status(owner, id string) (model.Job, error) {
	if !m.owns(owner, id) {
		return model.Job{}, store.ErrNotFound
	}
	return m.engine.Status(id)
}

// List returns snapshots of the owner's jobs, newest first.
func (m *Manager) List(owner string) []model.Job {
	jobs := m.engine.List()
	visible := jobs[:0]
	for _, job := range jobs {
		if m.owns(owner, job.ID) {
			visible = append(visible, job)
		}
	}
	return visible
}

// Cancel cancels the owner's job. Non-member ids report false, same as
// unknown ones.
func (m *Manager) Cancel(ctx context.Context, owner, id string) bool {
	if !m.owns(owner, id) {
		return false
	}
	return m.engine.Cancel(ctx, id)
}

// Delete removes the owner's job and its resources.
func (m *Manager) Delete(ctx context.Context, owner, id string) bool {
	if !m.owns(owner, id) {
		return false
	}
	return m.engine.Delete(ctx, id)
}

// ClearHistory deletes all of the owner's jobs.
func (m *Manager) ClearHistory(ctx context.Context, owner string) {
	for _, job := range m.List(owner) {
		m.engine.Delete(ctx, job.ID)
	}
}

// Statistics aggregates over the owner's jobs only.
func (m *Manager) Statistics(owner string) model.Statistics {
	var stats model.Statistics
	for _, job := range m.List(owner) {
		stats.Total++
		switch job.Status {
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		case model.StatusStarting, model.StatusDownloading, model.StatusRetrying:
			stats.InProgress++
		}
	}
	return stats
}

func (m *Manager) owns(owner, id string) bool {
	m.mx.Lock()
	defer m.mx.Unlock()
	_, ok := m.owned[owner][id]
	return ok
}

// evict drops id from every ownership set. Registered as the engine's
// delete hook so janitor sweeps shrink ownership too.
func (m *Manager) evict(id string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	for owner, set := range m.owned {
		delete(set, id)
		if len(set) == 0 {
			delete(m.owned, owner)
		}
	}
}
