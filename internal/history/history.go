package history

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/headwind-sh/headwind/internal/policy"
)

// MaxEntriesPerSlot bounds the ledger per (workload, slot).
const MaxEntriesPerSlot = 10

// Entry is one applied update recorded on the workload.
type Entry struct {
	Slot              string    `json:"slot"`
	Image             string    `json:"image"`
	Timestamp         time.Time `json:"timestamp"`
	UpdateRequestName string    `json:"updateRequestName,omitempty"`
	ApprovedBy        string    `json:"approvedBy,omitempty"`
	Rollback          bool      `json:"rollback,omitempty"`
}

// Load parses the update-history annotation. A missing annotation is an
// empty ledger; a malformed one is surfaced so the caller can decide
// whether to reset it.
func Load(ann map[string]string) ([]Entry, error) {
	raw, ok := ann[policy.AnnotationUpdateHistory]
	if !ok || raw == "" {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("malformed update-history annotation: %w", err)
	}
	return entries, nil
}

// Marshal serializes the ledger back into annotation form.
func Marshal(entries []Entry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshaling update history: %w", err)
	}
	return string(data), nil
}

// Append adds an entry, stamping it with now. Timestamps are strictly
// monotonic within a slot: a clock that runs behind the previous entry is
// bumped to previous+1ms. The slot is truncated to its newest
// MaxEntriesPerSlot entries; other slots are untouched.
func Append(entries []Entry, e Entry, now time.Time) []Entry {
	ts := now
	if last, ok := LastForSlot(entries, e.Slot); ok && !ts.After(last.Timestamp) {
		ts = last.Timestamp.Add(time.Millisecond)
	}
	e.Timestamp = ts
	entries = append(entries, e)

	count := 0
	for _, existing := range entries {
		if existing.Slot == e.Slot {
			count++
		}
	}
	if count <= MaxEntriesPerSlot {
		return entries
	}

	drop := count - MaxEntriesPerSlot
	trimmed := entries[:0:0]
	for _, existing := range entries {
		if existing.Slot == e.Slot && drop > 0 {
			drop--
			continue
		}
		trimmed = append(trimmed, existing)
	}
	return trimmed
}

// LastForSlot returns the newest entry for a slot.
func LastForSlot(entries []Entry, slot string) (Entry, bool) {
	var (
		last  Entry
		found bool
	)
	for _, e := range entries {
		if e.Slot != slot {
			continue
		}
		if !found || e.Timestamp.After(last.Timestamp) {
			last, found = e, true
		}
	}
	return last, found
}

// Previous returns the rollback target for a slot: the entry recorded
// immediately before the newest one. The ledger is independent of the
// platform's own revision history, so this is the authoritative "what we
// ran before the last apply".
func Previous(entries []Entry, slot string) (Entry, bool) {
	var forSlot []Entry
	for _, e := range entries {
		if e.Slot == slot {
			forSlot = append(forSlot, e)
		}
	}
	if len(forSlot) < 2 {
		return Entry{}, false
	}
	// Entries are ordered ascending at insert; the penultimate is the target.
	return forSlot[len(forSlot)-2], true
}
