package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/kwlin/studyloop/internal/models"
)

// snapshotTopic is the wire form of a topic inside a full-state backup.
// Field order is fixed so encoding is deterministic.
type snapshotTopic struct {
	ID             models.UUID `json:"id"`
	Title          string      `json:"title"`
	Notes          string      `json:"notes"`
	Stage          int         `json:"stage"`
	NextDueAt      int64       `json:"next_due_at"`
	LastReviewedAt int64       `json:"last_reviewed_at,omitempty"`
	ReviewCount    int         `json:"review_count"`
	ManualSchedule bool        `json:"manual_schedule,omitempty"`
	ManualDueAt    int64       `json:"manual_due_at,omitempty"`
	CreatedAt      int64       `json:"created_at"`
	LastModifiedAt int64       `json:"last_modified_at"`
}

// snapshotSettings carries the user preferences that travel with a backup.
// Volatile bookkeeping (the backup hash itself, watermarks) is excluded so
// the digest only changes when user-visible state does.
type snapshotSettings struct {
	AutoSyncEnabled  bool `json:"auto_sync_enabled"`
	WifiOnly         bool `json:"wifi_only"`
	QuietHoursStart  int  `json:"quiet_hours_start"`
	QuietHoursEnd    int  `json:"quiet_hours_end"`
	BatteryThreshold int  `json:"battery_threshold"`
	MaxRetries       int  `json:"max_retries"`
}

// Snapshot is the full-state backup payload: every topic plus the settings
// surface, in a canonical order.
type Snapshot struct {
	Version  int              `json:"version"`
	Topics   []snapshotTopic  `json:"topics"`
	Settings snapshotSettings `json:"settings"`
}

const snapshotVersion = 1

// BuildSnapshot assembles the canonical snapshot for the given topics and
// settings. Topics are sorted by ID so the same state always encodes to the
// same bytes.
func BuildSnapshot(topics []*models.Topic, cfg Settings) *Snapshot {
	snap := &Snapshot{
		Version: snapshotVersion,
		Topics:  make([]snapshotTopic, 0, len(topics)),
	}
	for _, t := range topics {
		snap.Topics = append(snap.Topics, snapshotTopic{
			ID:             t.ID,
			Title:          t.Title,
			Notes:          t.Notes,
			Stage:          t.Stage,
			NextDueAt:      t.NextDueAt,
			LastReviewedAt: t.LastReviewedAt,
			ReviewCount:    t.ReviewCount,
			ManualSchedule: t.ManualSchedule,
			ManualDueAt:    t.ManualDueAt,
			CreatedAt:      t.CreatedAt,
			LastModifiedAt: t.LastModifiedAt,
		})
	}
	sort.Slice(snap.Topics, func(i, j int) bool {
		return snap.Topics[i].ID < snap.Topics[j].ID
	})

	start, end := cfg.QuietHours()
	snap.Settings = snapshotSettings{
		AutoSyncEnabled:  cfg.AutoSyncEnabled(),
		WifiOnly:         cfg.WifiOnly(),
		QuietHoursStart:  start,
		QuietHoursEnd:    end,
		BatteryThreshold: cfg.BatteryThreshold(),
		MaxRetries:       cfg.MaxRetries(),
	}
	return snap
}

// Encode serializes the snapshot and returns the bytes together with their
// SHA-256 content hash in hex.
func (s *Snapshot) Encode() ([]byte, string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}
