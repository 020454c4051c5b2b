// Package progress implements the poll-friendly progress record exchanged
// between independent HTTP requests.
//
// A record is identified by an opaque, caller-generated token. It is created
// at phase start, overwritten on every state transition, and read by the
// polling client. Absence of a record is a normal transient state ("phase has
// not started writing yet"), not a fault; callers distinguish it via
// storage.IsNotFound.
package progress

import (
	"github.com/spf13/cast"
)

// Status is the lifecycle state of a progress record.
type Status string

const (
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the record's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError || s == StatusCancelled
}

// Record is the unit of state exchanged with the polling client.
type Record struct {
	Status   Status         `json:"status"`
	Progress int            `json:"progress"`
	Message  string         `json:"message"`
	Details  string         `json:"details,omitempty"`
	Current  int            `json:"current"`
	Total    int            `json:"total"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// ExtraInt reads an integer value from the Extra map, tolerating the numeric
// widening JSON round-trips introduce.
func (r *Record) ExtraInt(key string) int {
	if r.Extra == nil {
		return 0
	}
	return cast.ToInt(r.Extra[key])
}

// ExtraString reads a string value from the Extra map.
func (r *Record) ExtraString(key string) string {
	if r.Extra == nil {
		return ""
	}
	return cast.ToString(r.Extra[key])
}

// Store reads and writes progress records keyed by token.
//
// Write overwrites the full record; it is best-effort and callers swallow
// write failures rather than failing the phase. Read returns an error
// wrapping storage.ErrNotFound when no record exists yet. No locking is
// provided; the client serializes its own polling and phase requests.
type Store interface {
	Write(token string, rec Record) error
	Read(token string) (Record, error)
}

// Running builds a running record with a percentage derived from
// current/total when total is known.
func Running(message string, current, total int) Record {
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	}
	return Record{
		Status:   StatusRunning,
		Progress: clampPercent(pct),
		Message:  message,
		Current:  current,
		Total:    total,
	}
}

// Complete builds a terminal success record.
func Complete(message string) Record {
	return Record{Status: StatusComplete, Progress: 100, Message: message}
}

// Failed builds a terminal error record.
func Failed(message, details string) Record {
	return Record{Status: StatusError, Message: message, Details: details}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
