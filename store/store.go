// Package store defines the aggregate persistence interface. Each
// subsystem (job, pro, emergency) defines its own store interface; the
// composite Store composes them all. Backends: Postgres and Memory,
// with an optional Redis presence overlay.
package store

import (
	"context"

	"github.com/alanoney1-alt/UpTend-sub013/emergency"
	"github.com/alanoney1-alt/UpTend-sub013/job"
	"github.com/alanoney1-alt/UpTend-sub013/pro"
)

// Store is the aggregate persistence interface. Each subsystem store is
// a composable interface; a single backend implements all of them.
type Store interface {
	job.Store
	pro.Store
	emergency.SurgeStore

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
