package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trk-project/trk/internal/models"
)

var (
	reporter = Actor{ID: "u-reporter"}
	assignee = Actor{ID: "u-assignee"}
	other    = Actor{ID: "u-other"}
	nobody   = Actor{}
)

func testIssue(mod ...func(*models.Issue)) *models.Issue {
	issue := &models.Issue{
		ID:         "i-1",
		Title:      "broken login",
		ReporterID: reporter.ID,
		Priority:   models.IssuePriorityMedium,
	}
	for _, fn := range mod {
		fn(issue)
	}
	return issue
}

func assigned(issue *models.Issue) {
	issue.AssigneeID = assignee.ID
	issue.Status = models.IssueStatusOpen
}

func archived(issue *models.Issue) {
	issue.Archived = true
}

func TestEvaluateIssue(t *testing.T) {
	tests := []struct {
		name    string
		issue   *models.Issue
		actor   Actor
		action  Action
		allowed bool
		reason  Reason
	}{
		{"create allowed for any user", nil, other, ActionIssueCreate, true, ""},
		{"create denied anonymous", nil, nobody, ActionIssueCreate, false, ReasonAnonymous},
		{"read allowed for non-reporter", testIssue(), other, ActionIssueRead, true, ""},
		{"read denied anonymous", testIssue(), nobody, ActionIssueRead, false, ReasonAnonymous},

		{"edit allowed for reporter", testIssue(), reporter, ActionIssueEdit, true, ""},
		{"edit denied for assignee", testIssue(assigned), assignee, ActionIssueEdit, false, ReasonNotOwner},
		{"edit denied for other", testIssue(), other, ActionIssueEdit, false, ReasonNotOwner},
		{"edit denied archived even for reporter", testIssue(archived), reporter, ActionIssueEdit, false, ReasonArchived},

		{"assign allowed for reporter", testIssue(), reporter, ActionIssueAssign, true, ""},
		{"assign denied for assignee", testIssue(assigned), assignee, ActionIssueAssign, false, ReasonNotOwner},
		{"assign denied archived", testIssue(archived), reporter, ActionIssueAssign, false, ReasonArchived},

		{"status allowed for assignee", testIssue(assigned), assignee, ActionIssueStatus, true, ""},
		{"status denied for reporter", testIssue(assigned), reporter, ActionIssueStatus, false, ReasonNotAssignee},
		{"status denied unassigned", testIssue(), assignee, ActionIssueStatus, false, ReasonNoAssignee},
		{"status unassigned wins over actor identity", testIssue(), reporter, ActionIssueStatus, false, ReasonNoAssignee},
		{"status denied archived", testIssue(assigned, archived), assignee, ActionIssueStatus, false, ReasonArchived},
		{"status denied anonymous", testIssue(assigned), nobody, ActionIssueStatus, false, ReasonAnonymous},

		{"archive allowed for reporter", testIssue(), reporter, ActionIssueArchive, true, ""},
		{"archive denied for assignee", testIssue(assigned), assignee, ActionIssueArchive, false, ReasonNotOwner},
		{"unarchive allowed for reporter by default", testIssue(archived), reporter, ActionIssueArchive, true, ""},

		{"delete allowed for reporter", testIssue(), reporter, ActionIssueDelete, true, ""},
		{"delete denied for other", testIssue(), other, ActionIssueDelete, false, ReasonNotOwner},
		{"delete denied archived", testIssue(archived), reporter, ActionIssueDelete, false, ReasonArchived},
	}

	e := NewEvaluator(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.EvaluateIssue(tt.issue, tt.actor, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluateIssue_UnarchiveDisabled(t *testing.T) {
	e := NewEvaluator(Config{AllowUnarchive: false})

	d := e.EvaluateIssue(testIssue(archived), reporter, ActionIssueArchive)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonArchived, d.Reason)

	// Archiving a live issue is unaffected by the toggle.
	d = e.EvaluateIssue(testIssue(), reporter, ActionIssueArchive)
	assert.True(t, d.Allowed)
}

func TestEvaluateComment(t *testing.T) {
	author := Actor{ID: "u-author"}
	comment := &models.Comment{ID: "c-1", IssueID: "i-1", AuthorID: author.ID, Body: "same here"}

	tests := []struct {
		name    string
		comment *models.Comment
		parent  *models.Issue
		actor   Actor
		action  Action
		allowed bool
		reason  Reason
	}{
		{"create allowed for any user", nil, testIssue(), other, ActionCommentCreate, true, ""},
		{"create denied archived parent", nil, testIssue(archived), reporter, ActionCommentCreate, false, ReasonArchived},
		{"create denied anonymous", nil, testIssue(), nobody, ActionCommentCreate, false, ReasonAnonymous},

		{"read allowed", comment, testIssue(), other, ActionCommentRead, true, ""},
		{"read denied anonymous", comment, testIssue(), nobody, ActionCommentRead, false, ReasonAnonymous},

		{"edit allowed for author", comment, testIssue(), author, ActionCommentEdit, true, ""},
		{"edit denied for issue reporter", comment, testIssue(), reporter, ActionCommentEdit, false, ReasonNotOwner},
		{"edit denied archived parent wins over ownership", comment, testIssue(archived), author, ActionCommentEdit, false, ReasonArchived},

		{"delete allowed for author", comment, testIssue(), author, ActionCommentDelete, true, ""},
		{"delete denied for other", comment, testIssue(), other, ActionCommentDelete, false, ReasonNotOwner},
		{"delete denied archived parent", comment, testIssue(archived), author, ActionCommentDelete, false, ReasonArchived},
	}

	e := NewEvaluator(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.EvaluateComment(tt.comment, tt.parent, tt.actor, tt.action)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluateListUsers(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	assert.True(t, e.EvaluateListUsers(other).Allowed)

	d := e.EvaluateListUsers(nobody)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonAnonymous, d.Reason)
}
