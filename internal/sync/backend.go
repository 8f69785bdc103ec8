// Package sync implements the offline-first synchronization engine: gating,
// queue draining, delta-aware full-state backups, chunked batch uploads and
// incremental sync.
package sync

import (
	"context"
	"time"
)

// BlobInfo describes a stored remote object.
type BlobInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// RemoteBackend is the blob store the engine syncs against. All operations
// return explicit errors; a hung call is bounded by the implementation's own
// timeout and surfaces as a failure for the current attempt.
type RemoteBackend interface {
	// IsAuthenticated reports whether an authenticated session exists.
	IsAuthenticated(ctx context.Context) bool

	// Upload writes data under key, overwriting any previous object.
	Upload(ctx context.Context, key string, data []byte) error

	// Download reads the object stored under key.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error

	// List returns metadata for all objects under prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// DeviceStatus is a point-in-time snapshot of the conditions the gating
// logic cares about.
type DeviceStatus struct {
	BatteryLevel int // percent, 0-100
	PowerSaving  bool
	OnWifi       bool
}

// DeviceMonitor reports current device conditions. The concrete
// implementation is platform-specific and injected.
type DeviceMonitor interface {
	Status() DeviceStatus
}

// StaticDevice is a DeviceMonitor with fixed readings. It serves as the
// default on platforms without battery or transport reporting, and as a test
// double.
type StaticDevice struct {
	DeviceStatus
}

// Status returns the fixed readings.
func (d StaticDevice) Status() DeviceStatus {
	return d.DeviceStatus
}

// Settings is the persisted configuration surface read by the gating logic
// and the delta/incremental bookkeeping. *config.Store satisfies it.
type Settings interface {
	AutoSyncEnabled() bool
	WifiOnly() bool
	QuietHours() (start, end int)
	BatteryThreshold() int
	MaxRetries() int
	LastBackupHash() string
	SetLastBackupHash(hash string) error
	LastIncrementalSync() time.Time
	SetLastIncrementalSync(t time.Time) error
}
