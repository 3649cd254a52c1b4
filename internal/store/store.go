// Package store keeps job records for the lifetime of the process.
//
// The store is the sole owner of job records: every read hands out an
// independent copy and every write goes through an atomic field merge,
// so concurrent readers never observe a torn record.
package store

import (
	"errors"
	"sync"

	"github.com/mediafetch/fetchd/internal/model"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrExists   = errors.New("job already exists")
)

// Store is the registry of in-flight and historical jobs. It is
// implemented by Memory; an external backend only has to satisfy this
// interface.
type Store interface {
	Create(job model.Job) error
	Update(id string, patch model.Patch) error
	Get(id string) (model.Job, error)
	List() []model.Job
	Delete(id string)
}

// Memory is a concurrency-safe in-memory Store. A single coarse lock
// guards the backing map; no lock is ever held across blocking I/O.
type Memory struct {
	mx   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*model.Job),
	}
}

// Create inserts a new record, ErrExists when the id is already taken.
func (m *Memory) Create(job model.Job) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return ErrExists
	}
	clone := job.Clone()
	m.jobs[job.ID] = &clone
	return nil
}

// Update merges patch into the record, last writer wins per field.
// Patches arriving after the job reached a terminal state are dropped,
// there are no outgoing transitions from completed/failed/cancelled.
func (m *Memory) Update(id string, patch model.Patch) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	patch.Apply(job)
	return nil
}

// Get returns an independent snapshot of the record.
func (m *Memory) Get(id string) (model.Job, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return model.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

// List returns snapshots of all records in unspecified order.
func (m *Memory) List() []model.Job {
	m.mx.Lock()
	defer m.mx.Unlock()
	out := make([]model.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Clone())
	}
	return out
}

// Delete removes the record, calling it on an unknown id is a no-op.
func (m *Memory) Delete(id string) {
	m.mx.Lock()
	defer m.mx.Unlock()
	delete(m.jobs, id)
}
