package api

import (
	"maps"
	"slices"
	"time"
)

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is one of the known workflow statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// LockType describes the kind of reservation a caller asks for.
//
// Only exclusive semantics are enforced: every lock, whatever its type,
// blocks other users on the same (workflow, stage) pair. Shared and
// read-only are recorded so callers can extend on them later.
type LockType string

const (
	LockExclusive LockType = "exclusive"
	LockShared    LockType = "shared"
	LockReadOnly  LockType = "read_only"
)

// Metadata carries the bookkeeping fields of a WorkflowState.
type Metadata struct {
	CreatedBy      string    `json:"createdBy"`
	CreatedAt      time.Time `json:"createdAt"`
	LastModifiedBy string    `json:"lastModifiedBy"`
	LastModifiedAt time.Time `json:"lastModifiedAt"`

	// Version increases by exactly one per committed mutation.
	Version int64 `json:"version"`

	// Checksum is a non-cryptographic digest of Data. It is diagnostic only
	// and never used as a commit precondition.
	Checksum string `json:"checksum"`
}

// WorkflowState is the canonical representation of one workflow instance.
type WorkflowState struct {
	ID          string         `json:"id"`
	WorkflowID  string         `json:"workflowId"`
	Stage       string         `json:"stage"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Data        map[string]any `json:"data"`
	Metadata    Metadata       `json:"metadata"`
	Transitions []Transition   `json:"transitions"`
	Locks       []Lock         `json:"locks"`
}

// Clone returns a copy of s that shares no mutable state with it.
// Maps and slices nested inside Data are copied as well.
func (s *WorkflowState) Clone() *WorkflowState {
	if s == nil {
		return nil
	}
	c := *s
	c.Data = CloneData(s.Data)
	c.Transitions = make([]Transition, len(s.Transitions))
	for i, t := range s.Transitions {
		c.Transitions[i] = t.clone()
	}
	c.Locks = slices.Clone(s.Locks)
	if c.Locks == nil {
		c.Locks = []Lock{}
	}
	return &c
}

// Transition is the immutable record of one committed stage move.
type Transition struct {
	ID          string         `json:"id"`
	FromStage   string         `json:"fromStage"`
	ToStage     string         `json:"toStage"`
	TriggeredBy string         `json:"triggeredBy"`
	TriggeredAt time.Time      `json:"triggeredAt"`
	Data        map[string]any `json:"data,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (t Transition) clone() Transition {
	t.Data = CloneData(t.Data)
	t.Metadata = CloneData(t.Metadata)
	return t
}

// Lock is an exclusive reservation of one (workflow, stage) pair.
type Lock struct {
	ID         string            `json:"id"`
	WorkflowID string            `json:"workflowId"`
	UserID     string            `json:"userId"`
	Stage      string            `json:"stage"`
	LockedAt   time.Time         `json:"lockedAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	LockType   LockType          `json:"lockType"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Expired reports whether the lock is no longer valid at now.
func (l Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// ConflictReason tells a caller why an advance was refused up front.
type ConflictReason string

const (
	ConflictLocked  ConflictReason = "locked"
	ConflictVersion ConflictReason = "version_mismatch"
)

// LockConflict describes a refused advance. It is a value, not an error:
// the caller decides whether to wait, force or give up.
type LockConflict struct {
	Reason     ConflictReason `json:"reason"`
	WorkflowID string         `json:"workflowId"`
	Stage      string         `json:"stage"`

	// Holder is the blocking lock when Reason is ConflictLocked.
	Holder *Lock `json:"holder,omitempty"`

	// ExpectedVersion / ActualVersion are set when Reason is ConflictVersion.
	ExpectedVersion int64 `json:"expectedVersion,omitempty"`
	ActualVersion   int64 `json:"actualVersion,omitempty"`
}

// WorkflowFilter selects workflows in ListWorkflows.
// Empty fields mean "no filter".
type WorkflowFilter struct {
	Stage  string
	Status Status
}

// CloneData copies a payload map, including nested maps and slices. A nil
// map yields an empty, non-nil map.
func CloneData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the container types a JSON payload is made of.
// Any other value is returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		return CloneData(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}
		return out
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, e := range t {
			if e != nil {
				out[i] = CloneData(e)
			}
		}
		return out
	case map[string]string:
		return maps.Clone(t)
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
