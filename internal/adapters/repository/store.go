// Package repository holds the in-memory registry of job records.
package repository

import (
	"context"

	"github.com/okian/pickle/internal/domain/model"
)

// Store is the single point of truth for job state. One writer per job
// publishes snapshots; any number of readers observe them.
type Store interface {
	// Create registers a new job in the processing state.
	Create(ctx context.Context, id string) error
	// Get returns the latest published snapshot of a job.
	Get(ctx context.Context, id string) (model.Record, error)
	// Update applies fn to a copy of the current snapshot and publishes the
	// result atomically. Terminal jobs reject further updates.
	Update(ctx context.Context, id string, fn func(*model.Record)) error
	// Watch returns the current snapshot and a channel closed on the next publish.
	Watch(ctx context.Context, id string) (model.Record, <-chan struct{}, error)
	// Delete removes a job.
	Delete(ctx context.Context, id string) error
	// Restore inserts a finished record, typically loaded from the archive.
	Restore(ctx context.Context, rec model.Record) error
	// Count returns the number of jobs held.
	Count(ctx context.Context) int
	// CountByStatus returns the number of jobs per status.
	CountByStatus(ctx context.Context) map[model.Status]int
}
