// Package workers holds the per-stage message handlers. Each worker
// consumes one event type, transitions the media status with a
// compare-and-set, does its work, persists results, and publishes the
// follow-on event. All effects are idempotent so at-least-once delivery is
// safe.
package workers

import (
	"context"
	"log/slog"

	"mediarag/core"
	"mediarag/storage"
)

// StatusStore is the slice of the datastore the workers use for the status
// state machine.
type StatusStore interface {
	Transition(ctx context.Context, mediaID string, expected, target core.Status) (core.TransitionResult, error)
	UpdateProgress(ctx context.Context, mediaID string, stage storage.ProgressStage, percent float64)
	Finalize(ctx context.Context, mediaID string, final core.Status) error
	SetMediaDuration(ctx context.Context, mediaID string, seconds float64) error
}

// TranscriptStore persists transcripts and their segments.
type TranscriptStore interface {
	ResetTranscription(ctx context.Context, mediaID string) error
	CreateTranscription(ctx context.Context, t core.Transcription) error
	FinishTranscription(ctx context.Context, id, text, language string, processingSeconds float64, segmentCount int) error
	InsertSegment(ctx context.Context, seg core.TranscriptSegment) error
	ListSegments(ctx context.Context, mediaID string) ([]core.TranscriptSegment, error)
}

// Publisher emits a stage's follow-on event.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// enterProcessing runs the stage-entry compare-and-set: first from the
// normal predecessor state, then from Failed so an external retry can
// re-submit the event. The returned bool says whether the stage may proceed.
func enterProcessing(ctx context.Context, store StatusStore, log *slog.Logger, mediaID string, expected, target core.Status) (bool, core.Status, error) {
	res, err := store.Transition(ctx, mediaID, expected, target)
	if err != nil {
		return false, "", err
	}
	switch res {
	case core.TransitionApplied, core.TransitionAlreadyAtTarget:
		return true, target, nil
	case core.TransitionNotFound:
		log.Warn("media not found, discarding event", "media_id", mediaID)
		return false, "", nil
	}

	// Mismatch: maybe the item failed earlier and this is a retry.
	res, err = store.Transition(ctx, mediaID, core.StatusFailed, target)
	if err != nil {
		return false, "", err
	}
	switch res {
	case core.TransitionApplied, core.TransitionAlreadyAtTarget:
		return true, target, nil
	default:
		log.Warn("media in unexpected state, skipping",
			"media_id", mediaID, "expected", expected, "target", target)
		return false, "", nil
	}
}
