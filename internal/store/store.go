package store

import (
	"context"

	"avion/internal/license"
	"avion/internal/profile"
)

// Store is the combined persistence surface the server wires against.
// Both Memory and Postgres satisfy it.
type Store interface {
	license.Repository
	profile.Repository
	Ping(ctx context.Context) error
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*Postgres)(nil)
)
