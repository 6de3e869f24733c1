package distrib

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/oar-dist/oar-dist/internal/logging"
)

// State is a step in a single restoration attempt.
type State string

const (
	StateNotCached State = "not_cached"
	StateReserving State = "reserving"
	StateCopying   State = "copying"
	StateCached    State = "cached"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can follow.
func (s State) Terminal() bool {
	return s == StateCached || s == StateFailed
}

// attempt tracks one restoration from NotCached to Cached or Failed. There is
// no retry: a new call to EnsureCached starts a new attempt.
type attempt struct {
	id       string
	objectID string
	volume   string
	state    State
	started  time.Time
	logger   *logrus.Logger
}

func newAttempt(logger *logrus.Logger, objectID string) *attempt {
	return &attempt{
		id:       uuid.NewString(),
		objectID: objectID,
		state:    StateNotCached,
		started:  time.Now(),
		logger:   logger,
	}
}

// advance moves to next; transitions out of a terminal state are ignored.
func (a *attempt) advance(next State) {
	if a.state.Terminal() {
		return
	}
	a.state = next
	a.logger.WithFields(a.fields()).Debug("restore_state")
}

func (a *attempt) succeed() {
	a.advance(StateCached)
	fields := a.fields()
	fields["duration_ms"] = time.Since(a.started).Milliseconds()
	a.logger.WithFields(fields).Info("restore_completed")
}

func (a *attempt) fail(err error) {
	from := a.state
	a.advance(StateFailed)
	fields := a.fields()
	fields["failed_in"] = string(from)
	fields["duration_ms"] = time.Since(a.started).Milliseconds()
	a.logger.WithFields(fields).WithError(err).Warn("restore_failed")
}

func (a *attempt) fields() logrus.Fields {
	fields := logging.RestoreFields(a.objectID, a.volume, a.id)
	fields["state"] = string(a.state)
	return fields
}
