package core

import "fmt"

// Status is the lifecycle state of a media item. Stored as text so that
// ordering is defined only by the transition table below, never by value
// comparison.
type Status string

const (
	StatusUploaded                Status = "uploaded"
	StatusTranscriptionProcessing Status = "transcription_processing"
	StatusTranscriptionCompleted  Status = "transcription_completed"
	StatusEmbeddingProcessing     Status = "embedding_processing"
	StatusCompleted               Status = "completed"
	StatusFailed                  Status = "failed"
)

var transitions = map[Status][]Status{
	StatusUploaded:                {StatusTranscriptionProcessing},
	StatusTranscriptionProcessing: {StatusTranscriptionCompleted, StatusFailed},
	StatusTranscriptionCompleted:  {StatusEmbeddingProcessing},
	StatusEmbeddingProcessing:     {StatusCompleted, StatusFailed},
	// A failed item is re-entered at whichever processing stage the
	// redelivered event targets.
	StatusFailed:    {StatusTranscriptionProcessing, StatusEmbeddingProcessing},
	StatusCompleted: {},
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further pipeline work is expected. Failed is
// terminal until an external retry re-submits the stage event.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is an edge of the status graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown media status %q", s)
	}
	return st, nil
}

// TransitionResult is the outcome of a conditional status update. Expected
// idempotency cases are values, not errors; callers branch on the result.
type TransitionResult int

const (
	// TransitionApplied: the compare-and-set matched and the row was updated.
	TransitionApplied TransitionResult = iota
	// TransitionAlreadyAtTarget: the row is already at the target status,
	// almost always a message redelivery. Treated as success.
	TransitionAlreadyAtTarget
	// TransitionMismatch: the row exists but is in some other state. The
	// caller must skip processing rather than overwrite it.
	TransitionMismatch
	// TransitionNotFound: no row for the media id.
	TransitionNotFound
)

func (r TransitionResult) String() string {
	switch r {
	case TransitionApplied:
		return "applied"
	case TransitionAlreadyAtTarget:
		return "already-at-target"
	case TransitionMismatch:
		return "mismatch"
	case TransitionNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}
