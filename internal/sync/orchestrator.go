package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kwlin/studyloop/internal/db"
	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/models"
)

// BackupKey is the remote object holding the latest full-state backup.
// Uploads overwrite it; conflict resolution is last-write-wins.
const BackupKey = "backups/snapshot.json"

// Outcome classifies how a sync pass ended.
type Outcome string

const (
	// OutcomeCompleted means the pass ran to the end, possibly with
	// per-item failures left in the queue for the next pass.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSkipped means gating conditions blocked the pass before any
	// work started.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAlreadyRunning means another pass held the in-progress flag.
	OutcomeAlreadyRunning Outcome = "already_running"
	// OutcomeFailed means the final backup step could not complete.
	OutcomeFailed Outcome = "failed"
)

// Result summarizes a sync pass.
type Result struct {
	Outcome    Outcome
	SkipReason string

	// Queue drain counters.
	Succeeded int
	Failed    int
	Abandoned int

	// BackupUploaded is false when the final full-state pass short-circuited
	// because the content hash was unchanged.
	BackupUploaded bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator runs sync passes: it gates on device and settings conditions,
// drains the durable queue against the remote backend, prunes operations that
// exhausted their retry budget, and finishes with a delta-aware full-state
// backup.
type Orchestrator struct {
	repo    *db.Repository
	backend RemoteBackend
	cfg     Settings
	device  DeviceMonitor
	log     *logrus.Logger

	limiter *rate.Limiter
	now     func() time.Time

	// BatchLimit caps how many queue items one pass drains.
	BatchLimit int
	// ChunkSize is the number of topics per batch-upload object.
	ChunkSize int
}

// NewOrchestrator wires an orchestrator with default tunables. The device
// monitor may be nil, in which case gating assumes a healthy mains-powered
// device on Wi-Fi.
func NewOrchestrator(repo *db.Repository, backend RemoteBackend, cfg Settings, device DeviceMonitor, log *logrus.Logger) *Orchestrator {
	if device == nil {
		device = StaticDevice{DeviceStatus{BatteryLevel: 100, OnWifi: true}}
	}
	return &Orchestrator{
		repo:       repo,
		backend:    backend,
		cfg:        cfg,
		device:     device,
		log:        log,
		limiter:    rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		now:        time.Now,
		BatchLimit: 50,
		ChunkSize:  10,
	}
}

// inQuietHours reports whether hour falls inside the [start, end) window.
// A window with start > end wraps midnight; start == end disables it.
func inQuietHours(start, end, hour int) bool {
	if start == end {
		return false
	}
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// ShouldSync evaluates every gating condition and returns the first reason
// a pass is not allowed right now.
func (o *Orchestrator) ShouldSync(ctx context.Context) (bool, string) {
	if !o.cfg.AutoSyncEnabled() {
		return false, "auto-sync disabled"
	}
	if !o.backend.IsAuthenticated(ctx) {
		return false, "not authenticated"
	}

	status := o.device.Status()
	if status.BatteryLevel < o.cfg.BatteryThreshold() {
		return false, fmt.Sprintf("battery %d%% below threshold %d%%", status.BatteryLevel, o.cfg.BatteryThreshold())
	}
	if status.PowerSaving {
		return false, "power saving mode active"
	}
	if o.cfg.WifiOnly() && !status.OnWifi {
		return false, "waiting for wi-fi"
	}

	start, end := o.cfg.QuietHours()
	if inQuietHours(start, end, o.now().Hour()) {
		return false, fmt.Sprintf("inside quiet hours %02d:00-%02d:00", start, end)
	}
	return true, ""
}

// PerformSync runs one full sync pass. Only one pass runs at a time; a call
// while another pass holds the in-progress flag returns immediately with
// OutcomeAlreadyRunning and does no work.
func (o *Orchestrator) PerformSync(ctx context.Context) (*Result, error) {
	started := o.now()
	result := &Result{StartedAt: started}

	status, err := o.repo.ReadSyncStatus()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to read sync status", err)
	}
	if status.IsSyncing {
		result.Outcome = OutcomeAlreadyRunning
		result.FinishedAt = o.now()
		return result, nil
	}

	if ok, reason := o.ShouldSync(ctx); !ok {
		o.log.WithField("reason", reason).Debug("sync pass skipped")
		result.Outcome = OutcomeSkipped
		result.SkipReason = reason
		result.FinishedAt = o.now()
		return result, nil
	}

	status.IsSyncing = true
	status.LastSyncAttemptAt = started.Unix()
	if err := o.writeStatus(status); err != nil {
		return nil, err
	}

	o.drainQueue(ctx, result)

	abandoned, err := o.repo.EvictExceeding(o.cfg.MaxRetries())
	if err != nil {
		o.log.WithError(err).Error("failed to evict exhausted sync operations")
	} else if abandoned > 0 {
		o.log.WithField("count", abandoned).Warn("abandoned sync operations past retry budget")
	}
	result.Abandoned = abandoned

	uploaded, backupErr := o.backupIfChanged(ctx)
	result.BackupUploaded = uploaded

	status.IsSyncing = false
	if pending, err := o.repo.QueueSize(); err == nil {
		status.PendingCount = pending
	}
	if backupErr != nil {
		o.log.WithError(backupErr).Error("final backup failed")
		result.Outcome = OutcomeFailed
		result.FinishedAt = o.now()
		if err := o.writeStatus(status); err != nil {
			return result, err
		}
		return result, backupErr
	}

	status.LastSuccessfulSyncAt = o.now().Unix()
	result.Outcome = OutcomeCompleted
	result.FinishedAt = o.now()
	if err := o.writeStatus(status); err != nil {
		return result, err
	}

	o.log.WithFields(logrus.Fields{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"abandoned": result.Abandoned,
		"uploaded":  result.BackupUploaded,
	}).Info("sync pass completed")
	return result, nil
}

// drainQueue processes up to BatchLimit pending operations in queue order.
// Failures increment the retry counter and leave the item for a later pass.
func (o *Orchestrator) drainQueue(ctx context.Context, result *Result) {
	items, err := o.repo.PeekPending(o.BatchLimit)
	if err != nil {
		o.log.WithError(err).Error("failed to read pending sync operations")
		return
	}

	for _, item := range items {
		if err := o.dispatch(ctx, item); err != nil {
			result.Failed++
			o.log.WithFields(logrus.Fields{
				"id":    item.ID,
				"kind":  item.Kind,
				"retry": item.RetryCount + 1,
			}).WithError(err).Warn("sync operation failed")
			if rerr := o.repo.IncrementRetry(item.ID, err.Error()); rerr != nil {
				o.log.WithError(rerr).Error("failed to record sync retry")
			}
			continue
		}
		result.Succeeded++
		if rerr := o.repo.RemoveSyncItem(item.ID); rerr != nil {
			o.log.WithError(rerr).Error("failed to remove completed sync operation")
		}
	}
}

// dispatch executes one queued operation. Every kind currently resolves to a
// forced full-state backup: the backup is the remote representation, so a
// topic update or delete is synced by re-uploading the whole state.
func (o *Orchestrator) dispatch(ctx context.Context, item *models.SyncQueueItem) error {
	switch item.Kind {
	case models.OpFullBackup, models.OpUpdateTopic, models.OpDeleteTopic:
		return o.uploadBackup(ctx)
	default:
		// Unknown kinds are treated as permanent failures so the retry
		// budget eventually drops them.
		return apperrors.Newf(apperrors.ErrInvalid, "unknown sync operation kind %q", item.Kind)
	}
}

// backupIfChanged uploads a full-state backup only when the content hash
// differs from the last successful upload. Returns whether an upload
// happened.
func (o *Orchestrator) backupIfChanged(ctx context.Context) (bool, error) {
	data, digest, err := o.buildBackup()
	if err != nil {
		return false, err
	}
	if digest == o.cfg.LastBackupHash() {
		o.log.WithField("hash", digest).Debug("backup unchanged, skipping upload")
		return false, nil
	}
	if err := o.backend.Upload(ctx, BackupKey, data); err != nil {
		return false, apperrors.Wrap(apperrors.ErrSyncTransient, "backup upload failed", err)
	}
	if err := o.cfg.SetLastBackupHash(digest); err != nil {
		return true, err
	}
	return true, nil
}

// uploadBackup performs an unconditional full-state backup and records its
// hash, so the end-of-pass delta check can short-circuit.
func (o *Orchestrator) uploadBackup(ctx context.Context) error {
	data, digest, err := o.buildBackup()
	if err != nil {
		return err
	}
	if err := o.backend.Upload(ctx, BackupKey, data); err != nil {
		return apperrors.Wrap(apperrors.ErrSyncTransient, "backup upload failed", err)
	}
	return o.cfg.SetLastBackupHash(digest)
}

func (o *Orchestrator) buildBackup() ([]byte, string, error) {
	topics, err := o.repo.ListTopics()
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrDatabase, "failed to list topics for backup", err)
	}
	data, digest, err := BuildSnapshot(topics, o.cfg).Encode()
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to encode backup snapshot", err)
	}
	return data, digest, nil
}

func (o *Orchestrator) writeStatus(status *models.SyncStatus) error {
	if err := o.repo.WriteSyncStatus(status); err != nil {
		return apperrors.Wrap(apperrors.ErrDatabase, "failed to write sync status", err)
	}
	return nil
}
