package plan

import (
	"time"

	"github.com/google/uuid"
)

// ChangesetStatus is the approval state of a changeset.
type ChangesetStatus string

const (
	ChangesetPending  ChangesetStatus = "pending"
	ChangesetApproved ChangesetStatus = "approved"
	ChangesetRejected ChangesetStatus = "rejected"
)

// Changeset records code changes produced by an executed plan.
type Changeset struct {
	ID              string
	TraceID         string
	Portal          string
	Branch          string
	Status          ChangesetStatus
	Description     string
	CommitSHA       string
	FilesChanged    int
	Created         time.Time
	CreatedBy       string
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason string
}

// NewChangeset creates a pending changeset for a trace.
func NewChangeset(traceID, description, createdBy string) *Changeset {
	return &Changeset{
		ID:          uuid.New().String(),
		TraceID:     traceID,
		Status:      ChangesetPending,
		Description: description,
		Created:     time.Now(),
		CreatedBy:   createdBy,
	}
}

// Approve marks the changeset approved. No-op if already terminal.
func (c *Changeset) Approve() {
	if c.Status != ChangesetPending {
		return
	}
	now := time.Now()
	c.Status = ChangesetApproved
	c.ApprovedAt = &now
}

// Reject marks the changeset rejected with a reason. No-op if already
// terminal.
func (c *Changeset) Reject(reason string) {
	if c.Status != ChangesetPending {
		return
	}
	now := time.Now()
	c.Status = ChangesetRejected
	c.RejectedAt = &now
	c.RejectionReason = reason
}

// ChangesetRegistrar persists a changeset with an external system and
// returns the resulting commit sha.
type ChangesetRegistrar interface {
	Register(changeset *Changeset) (commitSHA string, err error)
}
