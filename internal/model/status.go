package model

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a crawl session.
//
//	Idle -> Running -> Draining -> Completed
//	                 \-> Stopped
//	                 \-> Failed
type Status int

const (
	// StatusIdle means no session has been started.
	StatusIdle Status = iota

	// StatusRunning means the frontier is being processed.
	StatusRunning

	// StatusDraining means the frontier is empty and the cache is being
	// packaged into archives.
	StatusDraining

	// StatusCompleted means every archive was delivered and the cache cleared.
	StatusCompleted

	// StatusStopped means the user stopped the session.
	StatusStopped

	// StatusFailed means the session aborted with an error.
	StatusFailed
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusDraining:
		return "draining"
	case StatusCompleted:
		return "completed"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusFailed
}

// MarshalJSON encodes the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for candidate := StatusIdle; candidate <= StatusFailed; candidate++ {
		if candidate.String() == name {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}
