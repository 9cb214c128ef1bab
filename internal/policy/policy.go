// Package policy implements the object-level permission rules for
// issues and comments as pure functions over an entity snapshot, the
// acting user, and the requested action. It performs no I/O and is
// safe for concurrent use.
package policy

import "github.com/trk-project/trk/internal/models"

// Action names a mutation or read that the evaluator can decide on.
type Action string

const (
	ActionIssueCreate  Action = "issue.create"
	ActionIssueRead    Action = "issue.read"
	ActionIssueEdit    Action = "issue.edit" // title, description, priority
	ActionIssueAssign  Action = "issue.assign"
	ActionIssueStatus  Action = "issue.status"
	ActionIssueArchive Action = "issue.archive" // archive and unarchive
	ActionIssueDelete  Action = "issue.delete"

	ActionUserList Action = "user.list"

	ActionCommentCreate Action = "comment.create"
	ActionCommentRead   Action = "comment.read"
	ActionCommentEdit   Action = "comment.edit"
	ActionCommentDelete Action = "comment.delete"
)

// Reason is the caller-visible cause attached to a denial.
type Reason string

const (
	ReasonNotOwner    Reason = "not_owner"
	ReasonNotAssignee Reason = "not_assignee"
	ReasonArchived    Reason = "archived"
	ReasonNoAssignee  Reason = "no_assignee"
	ReasonAnonymous   Reason = "anonymous"
)

// Actor identifies the user a request is acting as. The zero value
// is the anonymous actor.
type Actor struct {
	ID        string
	Superuser bool
}

// Anonymous reports whether the actor carries no authenticated identity.
func (a Actor) Anonymous() bool { return a.ID == "" }

// Decision is the outcome of an evaluation. Reason is set only when
// Allowed is false.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision        { return Decision{Allowed: true} }
func deny(r Reason) Decision { return Decision{Reason: r} }

// Config holds the tunable parts of the permission model.
type Config struct {
	// AllowUnarchive controls whether a reporter may reverse the
	// archive freeze. The archive itself is always permitted.
	AllowUnarchive bool
}

// DefaultConfig returns the baseline policy: unarchiving permitted.
func DefaultConfig() Config {
	return Config{AllowUnarchive: true}
}

// Evaluator decides whether an action on an entity is permitted.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator with the given policy config.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// EvaluateIssue decides action against the given issue snapshot.
// For ActionIssueCreate the issue may be nil. Unknown (entity,
// action) pairs are a caller contract violation and are denied as
// not_owner rather than panicking in production paths.
func (e *Evaluator) EvaluateIssue(issue *models.Issue, actor Actor, action Action) Decision {
	if actor.Anonymous() {
		return deny(ReasonAnonymous)
	}

	switch action {
	case ActionIssueCreate, ActionIssueRead:
		return allow()

	case ActionIssueEdit, ActionIssueAssign, ActionIssueDelete:
		if issue.Archived {
			return deny(ReasonArchived)
		}
		if issue.ReporterID != actor.ID {
			return deny(ReasonNotOwner)
		}
		return allow()

	case ActionIssueStatus:
		if issue.Archived {
			return deny(ReasonArchived)
		}
		// Cheap precondition first: an unassigned issue cannot bear
		// a status, regardless of who asks.
		if !issue.Assigned() {
			return deny(ReasonNoAssignee)
		}
		if issue.AssigneeID != actor.ID {
			return deny(ReasonNotAssignee)
		}
		return allow()

	case ActionIssueArchive:
		if issue.ReporterID != actor.ID {
			return deny(ReasonNotOwner)
		}
		if issue.Archived && !e.cfg.AllowUnarchive {
			return deny(ReasonArchived)
		}
		return allow()
	}

	return deny(ReasonNotOwner)
}

// EvaluateComment decides action against a comment and its parent
// issue snapshot. For ActionCommentCreate the comment may be nil;
// the parent issue is always required.
func (e *Evaluator) EvaluateComment(comment *models.Comment, parent *models.Issue, actor Actor, action Action) Decision {
	if actor.Anonymous() {
		return deny(ReasonAnonymous)
	}

	switch action {
	case ActionCommentRead:
		return allow()

	case ActionCommentCreate:
		if parent.Archived {
			return deny(ReasonArchived)
		}
		return allow()

	case ActionCommentEdit, ActionCommentDelete:
		if parent.Archived {
			return deny(ReasonArchived)
		}
		if comment.AuthorID != actor.ID {
			return deny(ReasonNotOwner)
		}
		return allow()
	}

	return deny(ReasonNotOwner)
}

// EvaluateListUsers decides whether the actor may list users.
func (e *Evaluator) EvaluateListUsers(actor Actor) Decision {
	if actor.Anonymous() {
		return deny(ReasonAnonymous)
	}
	return allow()
}
