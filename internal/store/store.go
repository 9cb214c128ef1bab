package store

import (
	"context"
	"errors"

	"github.com/trk-project/trk/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// IssueListFilter specifies filters for listing issues. Zero fields
// are ignored. Search matches title and description case-insensitively.
type IssueListFilter struct {
	Status     models.IssueStatus
	Priority   models.IssuePriority
	AssigneeID string
	ReporterID string
	Archived   *bool
	Search     string
	OrderBy    string // created_at (default), updated_at, priority
	Limit      int
	Offset     int
}

// IssueMutator is applied to a freshly read issue row inside the
// same transaction that writes it back. Returning an error aborts
// the transaction and leaves the row untouched.
type IssueMutator func(issue *models.Issue) error

// CommentGuard runs inside the transaction of a comment write with
// the comment (nil on create) and its parent issue. Returning an
// error aborts the write.
type CommentGuard func(comment *models.Comment, parent *models.Issue) error

// Store defines the persistence interface for trk.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByHandle(ctx context.Context, handle string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)

	// Tokens (opaque bearer tokens, stored as SHA-256 digests)
	CreateToken(ctx context.Context, userID, tokenHash string) error
	GetUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	RevokeTokens(ctx context.Context, userID string) error

	// Issues
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	MutateIssue(ctx context.Context, id string, fn IssueMutator) (*models.Issue, error)
	DeleteIssue(ctx context.Context, id string, fn IssueMutator) error

	// Comments
	CreateComment(ctx context.Context, c *models.Comment, guard CommentGuard) error
	GetComment(ctx context.Context, id string) (*models.Comment, error)
	ListComments(ctx context.Context, issueID string, limit, offset int) ([]*models.Comment, error)
	MutateComment(ctx context.Context, id string, guard CommentGuard) (*models.Comment, error)
	DeleteComment(ctx context.Context, id string, guard CommentGuard) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
