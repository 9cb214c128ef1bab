// Package tracker is the boundary service for issues, comments, and
// users. Every operation takes an explicit actor; permission checks
// run before any write, and coupled field changes (clearing the
// assignee resets the status) happen inside a single store
// transaction.
package tracker

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/trk-project/trk/internal/auth"
	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/store"
)

// Service implements the tracker operations over a Store.
type Service struct {
	store    store.Store
	eval     *policy.Evaluator
	validate *validator.Validate
}

// NewService creates a Service with the given permission policy.
func NewService(s store.Store, cfg policy.Config) *Service {
	return &Service{
		store:    s,
		eval:     policy.NewEvaluator(cfg),
		validate: validator.New(),
	}
}

func (s *Service) checkIssue(issue *models.Issue, actor policy.Actor, action policy.Action) error {
	if d := s.eval.EvaluateIssue(issue, actor, action); !d.Allowed {
		return &DeniedError{Action: action, Reason: d.Reason}
	}
	return nil
}

func (s *Service) checkComment(c *models.Comment, parent *models.Issue, actor policy.Actor, action policy.Action) error {
	if d := s.eval.EvaluateComment(c, parent, actor, action); !d.Allowed {
		return &DeniedError{Action: action, Reason: d.Reason}
	}
	return nil
}

// --- Issues ---

// CreateIssueParams are the caller-supplied fields for a new issue.
type CreateIssueParams struct {
	Title       string `validate:"required,max=255"`
	Description string
	Priority    models.IssuePriority
}

// CreateIssue creates an issue reported by the actor. Priority
// defaults to medium; status starts unset.
func (s *Service) CreateIssue(ctx context.Context, actor policy.Actor, p CreateIssueParams) (*models.Issue, error) {
	if err := s.checkIssue(nil, actor, policy.ActionIssueCreate); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(p); err != nil {
		return nil, validationf("invalid issue: %v", err)
	}
	if p.Priority == "" {
		p.Priority = models.IssuePriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, validationf("unknown priority %q", p.Priority)
	}

	issue := &models.Issue{
		Title:       p.Title,
		Description: p.Description,
		ReporterID:  actor.ID,
		Priority:    p.Priority,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return nil, err
	}
	return issue, nil
}

// GetIssue returns a single issue.
func (s *Service) GetIssue(ctx context.Context, actor policy.Actor, id string) (*models.Issue, error) {
	if err := s.checkIssue(nil, actor, policy.ActionIssueRead); err != nil {
		return nil, err
	}
	return s.store.GetIssue(ctx, id)
}

// IssueFilter selects issues for listing. String enum fields are
// validated; pagination and ordering are passed through to the store.
type IssueFilter struct {
	Status     string
	Priority   string
	AssigneeID string
	ReporterID string
	Archived   *bool
	Search     string
	OrderBy    string
	Limit      int
	Offset     int
}

// ListIssues lists issues matching the filter.
func (s *Service) ListIssues(ctx context.Context, actor policy.Actor, f IssueFilter) ([]*models.Issue, error) {
	if err := s.checkIssue(nil, actor, policy.ActionIssueRead); err != nil {
		return nil, err
	}
	if f.Status != "" && !models.IssueStatus(f.Status).Valid() {
		return nil, validationf("unknown status %q", f.Status)
	}
	if f.Priority != "" && !models.IssuePriority(f.Priority).Valid() {
		return nil, validationf("unknown priority %q", f.Priority)
	}
	return s.store.ListIssues(ctx, store.IssueListFilter{
		Status:     models.IssueStatus(f.Status),
		Priority:   models.IssuePriority(f.Priority),
		AssigneeID: f.AssigneeID,
		ReporterID: f.ReporterID,
		Archived:   f.Archived,
		Search:     f.Search,
		OrderBy:    f.OrderBy,
		Limit:      f.Limit,
		Offset:     f.Offset,
	})
}

// IssuePatch carries optional edits to title, description, and
// priority. Nil fields are left unchanged.
type IssuePatch struct {
	Title       *string
	Description *string
	Priority    *models.IssuePriority
}

// UpdateIssue applies a patch to title/description/priority.
// Reporter only; denied on archived issues.
func (s *Service) UpdateIssue(ctx context.Context, actor policy.Actor, id string, patch IssuePatch) (*models.Issue, error) {
	return s.store.MutateIssue(ctx, id, func(issue *models.Issue) error {
		if err := s.checkIssue(issue, actor, policy.ActionIssueEdit); err != nil {
			return err
		}
		if patch.Title != nil {
			if *patch.Title == "" || len(*patch.Title) > 255 {
				return validationf("title must be 1-255 characters")
			}
			issue.Title = *patch.Title
		}
		if patch.Description != nil {
			issue.Description = *patch.Description
		}
		if patch.Priority != nil {
			if !patch.Priority.Valid() {
				return validationf("unknown priority %q", *patch.Priority)
			}
			issue.Priority = *patch.Priority
		}
		return nil
	})
}

// SetAssignee sets or clears the assignee. Reporter only. Clearing
// the assignee resets the status in the same transaction, so no
// issue is ever observable with a status and no assignee.
func (s *Service) SetAssignee(ctx context.Context, actor policy.Actor, id, assigneeID string) (*models.Issue, error) {
	if assigneeID != "" {
		if _, err := s.store.GetUser(ctx, assigneeID); err != nil {
			return nil, err
		}
	}
	return s.store.MutateIssue(ctx, id, func(issue *models.Issue) error {
		if err := s.checkIssue(issue, actor, policy.ActionIssueAssign); err != nil {
			return err
		}
		issue.AssigneeID = assigneeID
		if assigneeID == "" {
			issue.Status = models.IssueStatusUnset
		}
		return nil
	})
}

// SetStatus moves the issue between open/in_progress/resolved.
// Assignee only; fails no_assignee while unassigned. Transitions
// among the three stages are unrestricted.
func (s *Service) SetStatus(ctx context.Context, actor policy.Actor, id string, status models.IssueStatus) (*models.Issue, error) {
	if !status.Valid() {
		return nil, validationf("unknown status %q", status)
	}
	return s.store.MutateIssue(ctx, id, func(issue *models.Issue) error {
		if err := s.checkIssue(issue, actor, policy.ActionIssueStatus); err != nil {
			return err
		}
		issue.Status = status
		return nil
	})
}

// SetArchived archives or unarchives the issue. Reporter only;
// unarchive is additionally gated by the policy config. Setting the
// flag to its current value is a validation error.
func (s *Service) SetArchived(ctx context.Context, actor policy.Actor, id string, archived bool) (*models.Issue, error) {
	return s.store.MutateIssue(ctx, id, func(issue *models.Issue) error {
		if err := s.checkIssue(issue, actor, policy.ActionIssueArchive); err != nil {
			return err
		}
		if issue.Archived == archived {
			if archived {
				return validationf("issue already archived")
			}
			return validationf("issue is not archived")
		}
		issue.Archived = archived
		return nil
	})
}

// DeleteIssue removes an issue and its comments. Reporter only;
// denied on archived issues.
func (s *Service) DeleteIssue(ctx context.Context, actor policy.Actor, id string) error {
	return s.store.DeleteIssue(ctx, id, func(issue *models.Issue) error {
		return s.checkIssue(issue, actor, policy.ActionIssueDelete)
	})
}

// --- Comments ---

// CreateComment adds a comment to an issue. Any authenticated user;
// denied while the parent issue is archived.
func (s *Service) CreateComment(ctx context.Context, actor policy.Actor, issueID, body string) (*models.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationf("comment body is required")
	}
	c := &models.Comment{
		IssueID:  issueID,
		AuthorID: actor.ID,
		Body:     body,
	}
	err := s.store.CreateComment(ctx, c, func(_ *models.Comment, parent *models.Issue) error {
		return s.checkComment(nil, parent, actor, policy.ActionCommentCreate)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments lists an issue's comments in creation order.
func (s *Service) ListComments(ctx context.Context, actor policy.Actor, issueID string, limit, offset int) ([]*models.Comment, error) {
	if err := s.checkComment(nil, nil, actor, policy.ActionCommentRead); err != nil {
		return nil, err
	}
	if _, err := s.store.GetIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, issueID, limit, offset)
}

// UpdateComment replaces a comment's body. Author only; denied while
// the parent issue is archived.
func (s *Service) UpdateComment(ctx context.Context, actor policy.Actor, commentID, body string) (*models.Comment, error) {
	if strings.TrimSpace(body) == "" {
		return nil, validationf("comment body is required")
	}
	return s.store.MutateComment(ctx, commentID, func(c *models.Comment, parent *models.Issue) error {
		if err := s.checkComment(c, parent, actor, policy.ActionCommentEdit); err != nil {
			return err
		}
		c.Body = body
		return nil
	})
}

// DeleteComment removes a comment. Author only; denied while the
// parent issue is archived.
func (s *Service) DeleteComment(ctx context.Context, actor policy.Actor, commentID string) error {
	return s.store.DeleteComment(ctx, commentID, func(c *models.Comment, parent *models.Issue) error {
		return s.checkComment(c, parent, actor, policy.ActionCommentDelete)
	})
}

// --- Users ---

// RegisterParams are the fields for open user registration.
type RegisterParams struct {
	Handle      string `validate:"required,min=2,max=64,alphanum"`
	Email       string `validate:"required,email"`
	DisplayName string `validate:"max=128"`
	Password    string `validate:"required,min=8"`
}

// RegisterUser creates an account. Registration is open to anyone.
func (s *Service) RegisterUser(ctx context.Context, p RegisterParams) (*models.User, error) {
	if err := s.validate.Struct(p); err != nil {
		return nil, validationf("invalid registration: %v", err)
	}

	if _, err := s.store.GetUserByHandle(ctx, p.Handle); err == nil {
		return nil, validationf("handle %q is already taken", p.Handle)
	} else if !IsNotFound(err) {
		return nil, err
	}

	hash, err := auth.HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		Handle:       p.Handle,
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, validationf("handle or email already in use")
		}
		return nil, err
	}
	return u, nil
}

// ListUsers lists registered users, excluding superusers.
// Authenticated actors only.
func (s *Service) ListUsers(ctx context.Context, actor policy.Actor, limit, offset int) ([]*models.User, error) {
	if d := s.eval.EvaluateListUsers(actor); !d.Allowed {
		return nil, &DeniedError{Action: policy.ActionUserList, Reason: d.Reason}
	}
	return s.store.ListUsers(ctx, limit, offset)
}

// GetUserByHandle resolves a handle to a user record.
func (s *Service) GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	return s.store.GetUserByHandle(ctx, handle)
}
