package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	apperrors "github.com/kwlin/studyloop/internal/errors"
	"github.com/kwlin/studyloop/internal/models"
)

// batchChunk is the wire form of one batch-upload object.
type batchChunk struct {
	Version   int             `json:"version"`
	Chunk     int             `json:"chunk"`
	Total     int             `json:"total"`
	CreatedAt int64           `json:"created_at"`
	Topics    []snapshotTopic `json:"topics"`
}

// PerformBatchUpload uploads topics in chunks of ChunkSize, pacing requests
// through the rate limiter so a large collection does not hammer the backend.
// A failed chunk is logged and skipped; the remaining chunks still upload.
// Returns how many chunks succeeded out of the total.
func (o *Orchestrator) PerformBatchUpload(ctx context.Context, topics []*models.Topic) (succeeded, total int, err error) {
	if len(topics) == 0 {
		return 0, 0, nil
	}

	size := o.ChunkSize
	if size <= 0 {
		size = 10
	}
	total = (len(topics) + size - 1) / size
	stamp := o.now().Unix()

	for i := 0; i < total; i++ {
		if err := o.limiter.Wait(ctx); err != nil {
			return succeeded, total, err
		}

		lo := i * size
		hi := lo + size
		if hi > len(topics) {
			hi = len(topics)
		}

		chunk := batchChunk{
			Version:   snapshotVersion,
			Chunk:     i + 1,
			Total:     total,
			CreatedAt: stamp,
			Topics:    make([]snapshotTopic, 0, hi-lo),
		}
		for _, t := range topics[lo:hi] {
			chunk.Topics = append(chunk.Topics, snapshotTopic{
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

		data, merr := json.Marshal(chunk)
		if merr != nil {
			return succeeded, total, apperrors.Wrap(apperrors.ErrInternal, "failed to encode batch chunk", merr)
		}

		key := fmt.Sprintf("batches/%d-%03d.json", stamp, i+1)
		if uerr := o.backend.Upload(ctx, key, data); uerr != nil {
			o.log.WithFields(logrus.Fields{
				"chunk": i + 1,
				"total": total,
			}).WithError(uerr).Warn("batch chunk upload failed")
			continue
		}
		succeeded++
	}

	o.log.WithFields(logrus.Fields{
		"succeeded": succeeded,
		"total":     total,
	}).Info("batch upload finished")
	return succeeded, total, nil
}

// PerformIncrementalSync uploads only the topics modified since the stored
// watermark. The watermark advances to the pass start time only when every
// chunk uploaded, so a partial failure re-sends the same window next time.
func (o *Orchestrator) PerformIncrementalSync(ctx context.Context) (*Result, error) {
	started := o.now()
	result := &Result{StartedAt: started}

	if ok, reason := o.ShouldSync(ctx); !ok {
		result.Outcome = OutcomeSkipped
		result.SkipReason = reason
		result.FinishedAt = o.now()
		return result, nil
	}

	since := o.cfg.LastIncrementalSync()
	topics, err := o.repo.QueryModifiedSince(since)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to query modified topics", err)
	}
	if len(topics) == 0 {
		o.log.WithField("since", since.Unix()).Debug("incremental sync found nothing to send")
		result.Outcome = OutcomeCompleted
		result.FinishedAt = o.now()
		return result, nil
	}

	succeeded, total, err := o.PerformBatchUpload(ctx, topics)
	if err != nil {
		return result, err
	}
	result.Succeeded = succeeded
	result.Failed = total - succeeded

	if succeeded == total {
		if err := o.cfg.SetLastIncrementalSync(started); err != nil {
			return result, err
		}
		result.Outcome = OutcomeCompleted
	} else {
		result.Outcome = OutcomeFailed
	}
	result.FinishedAt = o.now()

	o.log.WithFields(logrus.Fields{
		"topics":  len(topics),
		"chunks":  total,
		"failed":  result.Failed,
		"outcome": result.Outcome,
	}).Info("incremental sync finished")
	return result, nil
}
