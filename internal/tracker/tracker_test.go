package tracker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trk-project/trk/internal/models"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/store"
)

func newTestService(t *testing.T, cfg policy.Config) *Service {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return NewService(s, cfg)
}

// newUser registers a user and returns them as an actor.
func newUser(t *testing.T, svc *Service, handle string) policy.Actor {
	t.Helper()
	u, err := svc.RegisterUser(context.Background(), RegisterParams{
		Handle:   handle,
		Email:    handle + "@example.com",
		Password: "correcthorse",
	})
	require.NoError(t, err)
	return policy.Actor{ID: u.ID}
}

func newIssue(t *testing.T, svc *Service, reporter policy.Actor, title string) *models.Issue {
	t.Helper()
	issue, err := svc.CreateIssue(context.Background(), reporter, CreateIssueParams{Title: title})
	require.NoError(t, err)
	return issue
}

func assertDenied(t *testing.T, err error, reason policy.Reason) {
	t.Helper()
	got, ok := Denied(err)
	require.True(t, ok, "expected a permission denial, got %v", err)
	assert.Equal(t, reason, got)
}

// --- Issue creation ---

func TestCreateIssue_Defaults(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")

	issue, err := svc.CreateIssue(ctx, alice, CreateIssueParams{Title: "login broken"})
	require.NoError(t, err)

	assert.Equal(t, alice.ID, issue.ReporterID)
	assert.Equal(t, models.IssuePriorityMedium, issue.Priority, "priority defaults to medium")
	assert.Equal(t, models.IssueStatusUnset, issue.Status, "status starts unset")
	assert.Empty(t, issue.AssigneeID)
	assert.False(t, issue.Archived)
}

func TestCreateIssue_Validation(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")

	_, err := svc.CreateIssue(ctx, alice, CreateIssueParams{Title: ""})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateIssue(ctx, alice, CreateIssueParams{Title: "x", Priority: "urgent"})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateIssue(ctx, policy.Actor{}, CreateIssueParams{Title: "x"})
	assertDenied(t, err, policy.ReasonAnonymous)
}

// --- Edit ---

func TestUpdateIssue_ReporterOnly(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "typo")

	title := "typo on signup page"
	updated, err := svc.UpdateIssue(ctx, alice, issue.ID, IssuePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	_, err = svc.UpdateIssue(ctx, bob, issue.ID, IssuePatch{Title: &title})
	assertDenied(t, err, policy.ReasonNotOwner)
}

// --- Assignment and status lifecycle ---

func TestAssignAndStatusLifecycle(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "login broken")

	// Status cannot be set while unassigned, even by the reporter.
	_, err := svc.SetStatus(ctx, alice, issue.ID, models.IssueStatusOpen)
	assertDenied(t, err, policy.ReasonNoAssignee)

	// Only the reporter can assign.
	_, err = svc.SetAssignee(ctx, bob, issue.ID, bob.ID)
	assertDenied(t, err, policy.ReasonNotOwner)

	updated, err := svc.SetAssignee(ctx, alice, issue.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, updated.AssigneeID)

	// Only the assignee can progress the status.
	_, err = svc.SetStatus(ctx, alice, issue.ID, models.IssueStatusInProgress)
	assertDenied(t, err, policy.ReasonNotAssignee)

	updated, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusInProgress, updated.Status)

	// Transitions among the three stages are free.
	updated, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusResolved)
	require.NoError(t, err)
	updated, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusOpen)
	require.NoError(t, err)
	assert.Equal(t, models.IssueStatusOpen, updated.Status)
}

func TestClearAssignee_ResetsStatus(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "login broken")

	_, err := svc.SetAssignee(ctx, alice, issue.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusInProgress)
	require.NoError(t, err)

	updated, err := svc.SetAssignee(ctx, alice, issue.ID, "")
	require.NoError(t, err)
	assert.Empty(t, updated.AssigneeID)
	assert.Equal(t, models.IssueStatusUnset, updated.Status,
		"clearing the assignee resets the status in the same write")

	// The old assignee lost status rights along with the assignment.
	_, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusResolved)
	assertDenied(t, err, policy.ReasonNoAssignee)
}

func TestSetAssignee_UnknownUser(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	issue := newIssue(t, svc, alice, "login broken")

	_, err := svc.SetAssignee(ctx, alice, issue.ID, "no-such-user")
	assert.True(t, IsNotFound(err))
}

func TestSetStatus_InvalidValue(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	issue := newIssue(t, svc, alice, "login broken")

	_, err := svc.SetStatus(ctx, alice, issue.ID, "closed")
	assert.True(t, IsValidation(err))
}

// --- Archive freeze ---

func TestArchiveFreeze(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "stale report")

	_, err := svc.SetAssignee(ctx, alice, issue.ID, bob.ID)
	require.NoError(t, err)

	comment, err := svc.CreateComment(ctx, bob, issue.ID, "looking into it")
	require.NoError(t, err)

	// Only the reporter can archive.
	_, err = svc.SetArchived(ctx, bob, issue.ID, true)
	assertDenied(t, err, policy.ReasonNotOwner)

	archivedIssue, err := svc.SetArchived(ctx, alice, issue.ID, true)
	require.NoError(t, err)
	assert.True(t, archivedIssue.Archived)

	// Every mutation is frozen, including the reporter's own edits.
	title := "new title"
	_, err = svc.UpdateIssue(ctx, alice, issue.ID, IssuePatch{Title: &title})
	assertDenied(t, err, policy.ReasonArchived)

	_, err = svc.SetAssignee(ctx, alice, issue.ID, "")
	assertDenied(t, err, policy.ReasonArchived)

	_, err = svc.SetStatus(ctx, bob, issue.ID, models.IssueStatusResolved)
	assertDenied(t, err, policy.ReasonArchived)

	err = svc.DeleteIssue(ctx, alice, issue.ID)
	assertDenied(t, err, policy.ReasonArchived)

	// Comments on the archived issue are frozen too.
	_, err = svc.CreateComment(ctx, bob, issue.ID, "one more thing")
	assertDenied(t, err, policy.ReasonArchived)

	_, err = svc.UpdateComment(ctx, bob, comment.ID, "edited")
	assertDenied(t, err, policy.ReasonArchived)

	err = svc.DeleteComment(ctx, bob, comment.ID)
	assertDenied(t, err, policy.ReasonArchived)

	// Reads still work.
	got, err := svc.GetIssue(ctx, bob, issue.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	comments, err := svc.ListComments(ctx, bob, issue.ID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, comments, 1)
}

func TestArchive_AlreadyArchived(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	issue := newIssue(t, svc, alice, "stale")

	_, err := svc.SetArchived(ctx, alice, issue.ID, true)
	require.NoError(t, err)

	_, err = svc.SetArchived(ctx, alice, issue.ID, true)
	assert.True(t, IsValidation(err), "archiving twice is a validation error, not a denial")

	_, err = svc.SetArchived(ctx, alice, issue.ID, false)
	require.NoError(t, err)

	_, err = svc.SetArchived(ctx, alice, issue.ID, false)
	assert.True(t, IsValidation(err))
}

func TestUnarchive_RestoresMutability(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	issue := newIssue(t, svc, alice, "stale")

	_, err := svc.SetArchived(ctx, alice, issue.ID, true)
	require.NoError(t, err)
	_, err = svc.SetArchived(ctx, alice, issue.ID, false)
	require.NoError(t, err)

	title := "revived"
	updated, err := svc.UpdateIssue(ctx, alice, issue.ID, IssuePatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "revived", updated.Title)
}

func TestUnarchive_DisabledByPolicy(t *testing.T) {
	svc := newTestService(t, policy.Config{AllowUnarchive: false})
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	issue := newIssue(t, svc, alice, "stale")

	_, err := svc.SetArchived(ctx, alice, issue.ID, true)
	require.NoError(t, err)

	_, err = svc.SetArchived(ctx, alice, issue.ID, false)
	assertDenied(t, err, policy.ReasonArchived)
}

// --- Delete ---

func TestDeleteIssue(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "doomed")

	_, err := svc.CreateComment(ctx, bob, issue.ID, "noted")
	require.NoError(t, err)

	err = svc.DeleteIssue(ctx, bob, issue.ID)
	assertDenied(t, err, policy.ReasonNotOwner)

	require.NoError(t, svc.DeleteIssue(ctx, alice, issue.ID))

	_, err = svc.GetIssue(ctx, alice, issue.ID)
	assert.True(t, IsNotFound(err))
	_, err = svc.ListComments(ctx, alice, issue.ID, 0, 0)
	assert.True(t, IsNotFound(err))
}

// --- Comments ---

func TestComments(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")
	bob := newUser(t, svc, "bob")
	issue := newIssue(t, svc, alice, "thread")

	// Any authenticated user can comment, not just participants.
	carol := newUser(t, svc, "carol")
	c, err := svc.CreateComment(ctx, carol, issue.ID, "same here")
	require.NoError(t, err)
	assert.Equal(t, carol.ID, c.AuthorID)

	_, err = svc.CreateComment(ctx, policy.Actor{}, issue.ID, "drive-by")
	assertDenied(t, err, policy.ReasonAnonymous)

	_, err = svc.CreateComment(ctx, bob, issue.ID, "   ")
	assert.True(t, IsValidation(err))

	// Only the author can edit or delete, regardless of issue roles.
	_, err = svc.UpdateComment(ctx, alice, c.ID, "hijacked")
	assertDenied(t, err, policy.ReasonNotOwner)

	updated, err := svc.UpdateComment(ctx, carol, c.ID, "same here, on firefox")
	require.NoError(t, err)
	assert.Equal(t, "same here, on firefox", updated.Body)

	err = svc.DeleteComment(ctx, bob, c.ID)
	assertDenied(t, err, policy.ReasonNotOwner)
	require.NoError(t, svc.DeleteComment(ctx, carol, c.ID))
}

func TestListComments_MissingIssue(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	alice := newUser(t, svc, "alice")

	_, err := svc.ListComments(context.Background(), alice, "nope", 0, 0)
	assert.True(t, IsNotFound(err))
}

// --- Listing ---

func TestListIssues_FilterValidation(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()
	alice := newUser(t, svc, "alice")

	_, err := svc.ListIssues(ctx, alice, IssueFilter{Status: "closed"})
	assert.True(t, IsValidation(err))

	_, err = svc.ListIssues(ctx, alice, IssueFilter{Priority: "urgent"})
	assert.True(t, IsValidation(err))

	_, err = svc.ListIssues(ctx, policy.Actor{}, IssueFilter{})
	assertDenied(t, err, policy.ReasonAnonymous)
}

// --- Users ---

func TestRegisterUser(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()

	u, err := svc.RegisterUser(ctx, RegisterParams{
		Handle:   "alice",
		Email:    "alice@example.com",
		Password: "correcthorse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "correcthorse", u.PasswordHash)

	// Duplicate handle
	_, err = svc.RegisterUser(ctx, RegisterParams{
		Handle:   "alice",
		Email:    "alice2@example.com",
		Password: "correcthorse",
	})
	assert.True(t, IsValidation(err))

	// Short password
	_, err = svc.RegisterUser(ctx, RegisterParams{
		Handle:   "bob",
		Email:    "bob@example.com",
		Password: "short",
	})
	assert.True(t, IsValidation(err))

	// Bad email
	_, err = svc.RegisterUser(ctx, RegisterParams{
		Handle:   "bob",
		Email:    "not-an-email",
		Password: "correcthorse",
	})
	assert.True(t, IsValidation(err))
}

func TestListUsers(t *testing.T) {
	svc := newTestService(t, policy.DefaultConfig())
	ctx := context.Background()

	alice := newUser(t, svc, "alice")
	newUser(t, svc, "bob")

	users, err := svc.ListUsers(ctx, alice, 0, 0)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	_, err = svc.ListUsers(ctx, policy.Actor{}, 0, 0)
	assertDenied(t, err, policy.ReasonAnonymous)
}
