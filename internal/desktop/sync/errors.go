package sync

import (
	"errors"
	"fmt"

	"github.com/dealersoft/dealerdesk/internal/desktop/models"
)

// ErrTimeout marks a cycle abandoned because it exceeded its time budget.
// Records already marked synced stay reconciled; the rest stay dirty.
var ErrTimeout = errors.New("sync cycle timed out")

// PushError is a failure while pushing records of one kind. ID is empty for a
// transport-level failure covering the whole batch.
type PushError struct {
	Kind models.Kind
	ID   string
	Err  error
}

func (e *PushError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("push %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("push %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *PushError) Unwrap() error { return e.Err }

// PullError is a failure while pulling or applying records of one kind.
type PullError struct {
	Kind models.Kind
	ID   string
	Err  error
}

func (e *PullError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("pull %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("pull %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *PullError) Unwrap() error { return e.Err }
