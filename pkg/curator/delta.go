// Package curator converts reflection insights into deterministic playbook
// mutations. The curator decides (using similarity search) whether an insight
// reinforces an existing bullet or becomes a new one; the merger applies the
// resulting delta with no further inference.
package curator

import (
	"time"
)

// OpKind identifies a delta operation.
type OpKind string

const (
	OpAdd    OpKind = "ADD"
	OpUpdate OpKind = "UPDATE"
)

// Operation is a single proposed playbook mutation.
type Operation struct {
	Kind             OpKind `json:"operation"`
	BulletID         string `json:"bullet_id,omitempty"` // UPDATE only
	Content          string `json:"content,omitempty"`
	Section          string `json:"section,omitempty"` // ADD only
	HelpfulIncrement int    `json:"helpful_increment"`
	HarmfulIncrement int    `json:"harmful_increment"`
}

// Delta is an ordered set of operations produced from one feedback event.
// Ephemeral: applied by the merger immediately, archived to the audit log.
type Delta struct {
	Operations       []Operation `json:"operations"`
	Timestamp        time.Time   `json:"timestamp"`
	SourceFeedbackID string      `json:"source_feedback_id"`
	TotalOperations  int         `json:"total_operations"`
}

// NewDelta creates a delta for the given feedback id.
func NewDelta(feedbackID string, ops ...Operation) Delta {
	return Delta{
		Operations:       ops,
		Timestamp:        time.Now(),
		SourceFeedbackID: feedbackID,
		TotalOperations:  len(ops),
	}
}

// Empty reports whether the delta carries no operations.
func (d *Delta) Empty() bool {
	return len(d.Operations) == 0
}

// AddCount returns how many operations are ADDs.
func (d *Delta) AddCount() int {
	n := 0
	for _, op := range d.Operations {
		if op.Kind == OpAdd {
			n++
		}
	}
	return n
}

// UpdateCount returns how many operations are UPDATEs.
func (d *Delta) UpdateCount() int {
	n := 0
	for _, op := range d.Operations {
		if op.Kind == OpUpdate {
			n++
		}
	}
	return n
}
