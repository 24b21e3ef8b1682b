// Package server runs the network servers of a CyPlan binary under one
// start and graceful stop lifecycle.
package server

import "context"

// Lifecycle is implemented by anything the Manager starts and stops.
type Lifecycle interface {
	// Start begins serving and returns once the server accepts work.
	Start(ctx context.Context) error
	// Stop drains in-flight work until ctx expires.
	Stop(ctx context.Context) error
}

// Runnable is a named Lifecycle.
type Runnable interface {
	Lifecycle
	Name() string
}
