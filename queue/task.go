package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of background work a task requests.
type Kind string

const (
	// KindLinkDiscovery asks the discovery engine to find and classify
	// relationships for a freshly ingested note.
	KindLinkDiscovery Kind = "link_discovery"

	// KindMetadataRefresh asks for a note's keywords and tags to be
	// re-derived after its neighborhood changed.
	KindMetadataRefresh Kind = "metadata_refresh"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid returns true if the kind is one of the defined constants.
func (k Kind) IsValid() bool {
	switch k {
	case KindLinkDiscovery, KindMetadataRefresh:
		return true
	default:
		return false
	}
}

// Task is one unit of background work tied to a single note.
type Task struct {
	// ID uniquely identifies this task instance.
	ID string `json:"id"`

	// Kind selects the handler that will process the task.
	Kind Kind `json:"kind"`

	// NoteID is the note the work applies to.
	NoteID string `json:"note_id"`

	// EnqueuedAt is when the task entered the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Attempt counts processing attempts, starting at 0.
	Attempt int `json:"attempt,omitempty"`
}

// NewTask builds a task with a fresh ID and timestamp.
func NewTask(kind Kind, noteID string) Task {
	return Task{
		ID:         uuid.New().String(),
		Kind:       kind,
		NoteID:     noteID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks that the task is well-formed.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task ID is required")
	}
	if !t.Kind.IsValid() {
		return fmt.Errorf("invalid task kind: %q", t.Kind)
	}
	if t.NoteID == "" {
		return fmt.Errorf("task note_id is required")
	}
	return nil
}
