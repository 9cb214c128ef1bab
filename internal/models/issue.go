package models

import "time"

// IssueStatus represents the lifecycle stage of an issue. The empty
// string means the status has never been set (or was cleared when
// the assignee was removed).
type IssueStatus string

const (
	IssueStatusUnset      IssueStatus = ""
	IssueStatusOpen       IssueStatus = "open"
	IssueStatusInProgress IssueStatus = "in_progress"
	IssueStatusResolved   IssueStatus = "resolved"
)

// Valid reports whether s is one of the three lifecycle stages.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueStatusOpen, IssueStatusInProgress, IssueStatusResolved:
		return true
	}
	return false
}

// IssuePriority represents the urgency of an issue.
type IssuePriority string

const (
	IssuePriorityLow    IssuePriority = "low"
	IssuePriorityMedium IssuePriority = "medium"
	IssuePriorityHigh   IssuePriority = "high"
)

// Valid reports whether p is a known priority.
func (p IssuePriority) Valid() bool {
	switch p {
	case IssuePriorityLow, IssuePriorityMedium, IssuePriorityHigh:
		return true
	}
	return false
}

// Issue represents a tracked issue.
//
// ReporterID is set once at creation and never changes. AssigneeID
// is empty while the issue is unassigned; Status is empty until the
// assignee sets it and is cleared whenever the assignee is cleared.
type Issue struct {
	ID          string
	Title       string
	Description string
	ReporterID  string
	AssigneeID  string
	Status      IssueStatus
	Priority    IssuePriority
	Archived    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Assigned reports whether the issue currently has an assignee.
func (i *Issue) Assigned() bool { return i.AssigneeID != "" }
