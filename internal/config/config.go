// Package config persists the user-facing settings surface read by the sync
// gating logic and the scheduler glue.
//
// Settings live in a single studyloop.yaml inside the data directory and are
// accessed through typed getters so the rest of the core never touches raw
// keys.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Setting keys.
const (
	keyAutoSyncEnabled   = "sync.auto_enabled"
	keyWifiOnly          = "sync.wifi_only"
	keyQuietHoursStart   = "sync.quiet_hours.start"
	keyQuietHoursEnd     = "sync.quiet_hours.end"
	keyBatteryThreshold  = "sync.battery_threshold"
	keyMaxRetries        = "sync.max_retries"
	keyLastBackupHash    = "sync.last_backup_hash"
	keyLastIncrementalAt = "sync.last_incremental_at"
	keySyncEveryReviews  = "sync.incremental_every_reviews"
	keySyncIntervalMin   = "sync.interval_minutes"
	keyResumeStaleMin    = "sync.resume_stale_minutes"

	keyRemoteProvider  = "remote.provider"
	keyRemoteBucket    = "remote.bucket"
	keyRemoteAccessKey = "remote.access_key"
	keyRemoteSecretKey = "remote.secret_key"
	keyRemoteRegion    = "remote.region"
	keyRemoteEndpoint  = "remote.endpoint"
	keyRemoteAccountID = "remote.account_id"
	keyRemoteUseSSL    = "remote.use_ssl"
)

// Store wraps a viper instance bound to the on-disk settings file.
// Setters write through to disk so a crash never loses the last backup hash.
type Store struct {
	mu   sync.Mutex
	v    *viper.Viper
	path string
}

// Load opens (or creates) the settings file under dataDir.
func Load(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "studyloop.yaml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault(keyAutoSyncEnabled, true)
	v.SetDefault(keyWifiOnly, false)
	v.SetDefault(keyQuietHoursStart, 0)
	v.SetDefault(keyQuietHoursEnd, 0)
	v.SetDefault(keyBatteryThreshold, 15)
	v.SetDefault(keyMaxRetries, 3)
	v.SetDefault(keyLastBackupHash, "")
	v.SetDefault(keyLastIncrementalAt, int64(0))
	v.SetDefault(keySyncEveryReviews, 5)
	v.SetDefault(keySyncIntervalMin, 15)
	v.SetDefault(keyResumeStaleMin, 60)

	v.SetDefault(keyRemoteProvider, "")
	v.SetDefault(keyRemoteBucket, "")
	v.SetDefault(keyRemoteAccessKey, "")
	v.SetDefault(keyRemoteSecretKey, "")
	v.SetDefault(keyRemoteRegion, "")
	v.SetDefault(keyRemoteEndpoint, "")
	v.SetDefault(keyRemoteAccountID, "")
	v.SetDefault(keyRemoteUseSSL, true)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	return &Store{v: v, path: path}, nil
}

func (s *Store) set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// AutoSyncEnabled reports whether background sync is allowed at all.
func (s *Store) AutoSyncEnabled() bool { return s.v.GetBool(keyAutoSyncEnabled) }

// SetAutoSyncEnabled toggles background sync.
func (s *Store) SetAutoSyncEnabled(on bool) error { return s.set(keyAutoSyncEnabled, on) }

// WifiOnly reports whether sync is restricted to Wi-Fi transports.
func (s *Store) WifiOnly() bool { return s.v.GetBool(keyWifiOnly) }

// SetWifiOnly toggles the Wi-Fi-only restriction.
func (s *Store) SetWifiOnly(on bool) error { return s.set(keyWifiOnly, on) }

// QuietHours returns the configured quiet-hours window as hours of day.
// A window with start == end is inactive.
func (s *Store) QuietHours() (start, end int) {
	return s.v.GetInt(keyQuietHoursStart), s.v.GetInt(keyQuietHoursEnd)
}

// SetQuietHours configures the quiet-hours window. The window may wrap
// midnight (start > end).
func (s *Store) SetQuietHours(start, end int) error {
	if start < 0 || start > 23 || end < 0 || end > 23 {
		return fmt.Errorf("quiet hours must be within 0-23, got %d-%d", start, end)
	}
	if err := s.set(keyQuietHoursStart, start); err != nil {
		return err
	}
	return s.set(keyQuietHoursEnd, end)
}

// BatteryThreshold returns the minimum battery percentage required to sync.
func (s *Store) BatteryThreshold() int { return s.v.GetInt(keyBatteryThreshold) }

// SetBatteryThreshold sets the minimum battery percentage required to sync.
func (s *Store) SetBatteryThreshold(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("battery threshold must be within 0-100, got %d", pct)
	}
	return s.set(keyBatteryThreshold, pct)
}

// MaxRetries returns the retry budget for queued sync operations.
func (s *Store) MaxRetries() int { return s.v.GetInt(keyMaxRetries) }

// LastBackupHash returns the content hash of the last successful full backup.
func (s *Store) LastBackupHash() string { return s.v.GetString(keyLastBackupHash) }

// SetLastBackupHash persists the content hash of a successful full backup.
func (s *Store) SetLastBackupHash(hash string) error { return s.set(keyLastBackupHash, hash) }

// LastIncrementalSync returns the watermark used by incremental sync.
func (s *Store) LastIncrementalSync() time.Time {
	sec := s.v.GetInt64(keyLastIncrementalAt)
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}

// SetLastIncrementalSync advances the incremental sync watermark.
func (s *Store) SetLastIncrementalSync(t time.Time) error {
	return s.set(keyLastIncrementalAt, t.Unix())
}

// IncrementalEveryReviews returns how many reviews trigger an incremental
// sync.
func (s *Store) IncrementalEveryReviews() int { return s.v.GetInt(keySyncEveryReviews) }

// SyncInterval returns the base interval for the periodic trigger.
func (s *Store) SyncInterval() time.Duration {
	return time.Duration(s.v.GetInt(keySyncIntervalMin)) * time.Minute
}

// ResumeStaleAfter returns how stale the last successful sync must be before
// an app-resume event triggers a new pass.
func (s *Store) ResumeStaleAfter() time.Duration {
	return time.Duration(s.v.GetInt(keyResumeStaleMin)) * time.Minute
}

// Remote holds the backend connection settings. Provider selects the
// constructor: "aws", "r2", "minio", or empty when no remote is configured.
type Remote struct {
	Provider  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string
	AccountID string
	UseSSL    bool
}

// Remote returns the configured remote backend settings.
func (s *Store) Remote() Remote {
	return Remote{
		Provider:  s.v.GetString(keyRemoteProvider),
		Bucket:    s.v.GetString(keyRemoteBucket),
		AccessKey: s.v.GetString(keyRemoteAccessKey),
		SecretKey: s.v.GetString(keyRemoteSecretKey),
		Region:    s.v.GetString(keyRemoteRegion),
		Endpoint:  s.v.GetString(keyRemoteEndpoint),
		AccountID: s.v.GetString(keyRemoteAccountID),
		UseSSL:    s.v.GetBool(keyRemoteUseSSL),
	}
}
