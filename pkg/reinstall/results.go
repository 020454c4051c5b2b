package reinstall

import (
	"fmt"

	"github.com/sitemedic/sitemedic/pkg/storage"
)

// Origin names the reinstall track an outcome belongs to.
type Origin string

const (
	OriginRepository Origin = "repository"
	OriginPremium    Origin = "premium"
)

// OutcomeStatus is the terminal state of one plugin's reinstall.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
)

// OutcomeEntry is the canonical per-plugin result shape used uniformly by
// every phase. Collaborators wanting a different shape translate at the
// boundary.
type OutcomeEntry struct {
	Name   string        `json:"name"`
	Key    PluginKey     `json:"key"`
	Status OutcomeStatus `json:"status"`
	Origin Origin        `json:"origin"`
	Reason string        `json:"reason,omitempty"`
	// ReactivationError records a reactivation failure separately from the
	// install outcome: the plugin installed fine but did not come back up.
	ReactivationError string `json:"reactivation_error,omitempty"`
}

// Accumulated carries the per-track outcome lists across batches. Each HTTP
// request is a fresh process, so the lists are persisted to the side-store
// keyed by the progress token and merged, not replaced, on every batch.
type Accumulated struct {
	Successful []OutcomeEntry `json:"successful"`
	Failed     []OutcomeEntry `json:"failed"`
	// CleanupFailures lists suspicious-file paths that could not be deleted.
	CleanupFailures []string `json:"cleanup_failures,omitempty"`
}

// Merge folds other into a, deduplicating by plugin key: a retried batch
// replaces a plugin's earlier outcome instead of double-counting it.
func (a *Accumulated) Merge(other Accumulated) {
	seen := func(entries []OutcomeEntry) map[PluginKey]int {
		m := make(map[PluginKey]int, len(entries))
		for i, e := range entries {
			m[e.Key] = i
		}
		return m
	}

	drop := func(entries []OutcomeEntry, key PluginKey) []OutcomeEntry {
		out := entries[:0]
		for _, e := range entries {
			if e.Key != key {
				out = append(out, e)
			}
		}
		return out
	}

	for _, e := range other.Successful {
		a.Failed = drop(a.Failed, e.Key)
		if i, ok := seen(a.Successful)[e.Key]; ok {
			a.Successful[i] = e
		} else {
			a.Successful = append(a.Successful, e)
		}
	}
	for _, e := range other.Failed {
		a.Successful = drop(a.Successful, e.Key)
		if i, ok := seen(a.Failed)[e.Key]; ok {
			a.Failed[i] = e
		} else {
			a.Failed = append(a.Failed, e)
		}
	}
	a.CleanupFailures = append(a.CleanupFailures, other.CleanupFailures...)
}

// loadAccumulated reads the accumulated results for token. A missing record
// yields an empty accumulator: the first batch has nothing to merge into.
func loadAccumulated(store storage.Store, token string) (Accumulated, error) {
	var acc Accumulated
	err := store.Get(token, &acc)
	if err != nil && !storage.IsNotFound(err) {
		return Accumulated{}, fmt.Errorf("load accumulated results: %w", err)
	}
	return acc, nil
}

// saveAccumulated persists the accumulator for the next batch request.
func saveAccumulated(store storage.Store, token string, acc Accumulated) error {
	if err := store.Put(token, acc); err != nil {
		return fmt.Errorf("save accumulated results: %w", err)
	}
	return nil
}
