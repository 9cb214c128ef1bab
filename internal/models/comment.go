package models

import "time"

// Comment is a discussion entry on an issue. IssueID and AuthorID
// are set once at creation and never change.
type Comment struct {
	ID        string
	IssueID   string
	AuthorID  string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
