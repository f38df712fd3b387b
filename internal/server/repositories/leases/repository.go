// Package leases stores the short-lived handoff leases that serialize
// dedup-then-upload for one (target folder, file name) pair.
package leases

import (
	"context"
	"time"
)

type Repository interface {
	// Acquire takes the lease if it is free or expired at now.
	Acquire(ctx context.Context, folderID, fileName, owner string, now time.Time, ttl time.Duration) (bool, error)
	// Release drops the lease if owner still holds it.
	Release(ctx context.Context, folderID, fileName, owner string) error
}
