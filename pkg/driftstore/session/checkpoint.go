// Package session owns the checkpoint lifecycle across a run: begin,
// mark-dirty, commit-step, end. The checkpoint is the durable record of
// in-flight work that lets the next startup classify an unclean shutdown.
package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// Version is the current checkpoint format version.
// Increment when making breaking changes to checkpoint structure.
const Version = 1

// DefaultKey is the storage slot holding the checkpoint document.
const DefaultKey = "checkpoint"

// Checkpoint is the persisted record of session progress. It is mutated
// only by the Manager and becomes immutable once Closed is true.
type Checkpoint struct {
	Version   int       `json:"version"`
	PlanID    string    `json:"plan_id"`
	StepIndex int       `json:"step_index"`
	DirtyKeys []string  `json:"dirty_keys"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Closed    bool      `json:"closed"`
}

// New creates an open checkpoint at step zero for the given plan.
func New(planID string) *Checkpoint {
	now := time.Now().UTC()
	return &Checkpoint{
		Version:   Version,
		PlanID:    planID,
		StepIndex: 0,
		DirtyKeys: []string{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Marshal serializes a checkpoint to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint from JSON and validates the envelope.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if c.Version < 1 {
		return nil, fmt.Errorf("checkpoint missing version marker")
	}
	if c.PlanID == "" {
		return nil, fmt.Errorf("checkpoint missing plan id")
	}
	if c.StepIndex < 0 {
		return nil, fmt.Errorf("checkpoint step index %d is negative", c.StepIndex)
	}
	if c.DirtyKeys == nil {
		c.DirtyKeys = []string{}
	}
	return &c, nil
}

// IsDirty reports whether key was touched since the last committed step.
func (c *Checkpoint) IsDirty(key string) bool {
	return slices.Contains(c.DirtyKeys, key)
}

// clone returns a copy safe to hand to callers.
func (c *Checkpoint) clone() *Checkpoint {
	out := *c
	out.DirtyKeys = slices.Clone(c.DirtyKeys)
	return &out
}
