// Package ratelimit tracks failed download attempts per device over a
// sliding window. The tracker gates admission: a device over the failure
// budget is denied regardless of signature validity.
package ratelimit

import "context"

// Tracker is the failure-tracking interface consumed by the admission
// pipeline. Allowed is read-only: it prunes expired failures but never
// records new ones. Successful requests do not clear the window; only time
// does.
type Tracker interface {
	// RecordFailure appends a failure at the current time for the device.
	RecordFailure(ctx context.Context, deviceID string) error

	// Allowed reports whether the device is under the failure budget for
	// the trailing window.
	Allowed(ctx context.Context, deviceID string) (bool, error)

	Close() error
}

// NoOpTracker allows every request (for tests or disabled rate limiting).
type NoOpTracker struct{}

func (n *NoOpTracker) RecordFailure(ctx context.Context, deviceID string) error {
	return nil
}

func (n *NoOpTracker) Allowed(ctx context.Context, deviceID string) (bool, error) {
	return true, nil
}

func (n *NoOpTracker) Close() error {
	return nil
}
