package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/trk-project/trk/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// which also makes each MutateIssue transaction a true atomic
	// read-modify-write against the row.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Users ---

func (s *SQLiteStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newULID()
	}
	u.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, email, display_name, password_hash, superuser, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Handle, u.Email, u.DisplayName, u.PasswordHash, boolToInt(u.Superuser), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const userColumns = "id, handle, email, display_name, password_hash, superuser, created_at"

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Handle, &u.Email, &u.DisplayName, &u.PasswordHash, &u.Superuser, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE handle = ?", handle))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %s: %w", handle, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by handle: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE superuser = 0 ORDER BY handle"
	var args []any
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// --- Tokens ---

func (s *SQLiteStore) CreateToken(ctx context.Context, userID, tokenHash string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tokens (token_hash, user_id, created_at) VALUES (?, ?, ?)",
		tokenHash, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT u.id, u.handle, u.email, u.display_name, u.password_hash, u.superuser, u.created_at
		FROM users u JOIN tokens t ON t.user_id = u.id
		WHERE t.token_hash = ?`, tokenHash))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get user by token: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) RevokeTokens(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM tokens WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	return nil
}

// --- Issues ---

const issueColumns = "id, title, description, reporter_id, assignee_id, status, priority, archived, created_at, updated_at"

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority string
	err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &issue.ReporterID,
		&issue.AssigneeID, &status, &priority, &issue.Archived,
		&issue.CreatedAt, &issue.UpdatedAt)
	if err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	return issue, nil
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	now := time.Now().UTC()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (id, title, description, reporter_id, assignee_id, status, priority, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Title, issue.Description, issue.ReporterID, issue.AssigneeID,
		string(issue.Status), string(issue.Priority), boolToInt(issue.Archived),
		issue.CreatedAt, issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	issue, err := scanIssue(s.db.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	query := "SELECT " + issueColumns + " FROM issues"
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}
	if filter.AssigneeID != "" {
		conditions = append(conditions, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.ReporterID != "" {
		conditions = append(conditions, "reporter_id = ?")
		args = append(args, filter.ReporterID)
	}
	if filter.Archived != nil {
		conditions = append(conditions, "archived = ?")
		args = append(args, boolToInt(*filter.Archived))
	}
	if filter.Search != "" {
		conditions = append(conditions, "(title LIKE ? OR description LIKE ?)")
		term := "%" + filter.Search + "%"
		args = append(args, term, term)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	switch filter.OrderBy {
	case "updated_at":
		query += " ORDER BY updated_at DESC"
	case "priority":
		query += ` ORDER BY
			CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 WHEN 'low' THEN 2 ELSE 3 END,
			created_at DESC`
	default:
		query += " ORDER BY created_at DESC"
	}

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// MutateIssue applies fn to a freshly read issue row and writes it
// back, all inside one transaction. Concurrent mutations of the same
// issue therefore never observe a stale assignee or archive flag.
func (s *SQLiteStore) MutateIssue(ctx context.Context, id string, fn IssueMutator) (*models.Issue, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := scanIssue(tx.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	if err := fn(issue); err != nil {
		return nil, err
	}

	issue.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, assignee_id=?, status=?, priority=?, archived=?, updated_at=?
		WHERE id=?`,
		issue.Title, issue.Description, issue.AssigneeID, string(issue.Status),
		string(issue.Priority), boolToInt(issue.Archived), issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return issue, nil
}

// DeleteIssue removes an issue and (via FK cascade) its comments.
// fn runs against the current row first; a non-nil error aborts the
// delete.
func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string, fn IssueMutator) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := scanIssue(tx.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return fmt.Errorf("issue %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get issue: %w", err)
	}

	if fn != nil {
		if err := fn(issue); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Comments ---

const commentColumns = "id, issue_id, author_id, body, created_at, updated_at"

func scanComment(row interface{ Scan(...any) error }) (*models.Comment, error) {
	c := &models.Comment{}
	err := row.Scan(&c.ID, &c.IssueID, &c.AuthorID, &c.Body, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateComment inserts a comment after running guard against the
// parent issue in the same transaction, so the archive freeze cannot
// race an archive toggle.
func (s *SQLiteStore) CreateComment(ctx context.Context, c *models.Comment, guard CommentGuard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	parent, err := scanIssue(tx.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = ?", c.IssueID))
	if err == sql.ErrNoRows {
		return fmt.Errorf("issue %s: %w", c.IssueID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get issue: %w", err)
	}

	if guard != nil {
		if err := guard(nil, parent); err != nil {
			return err
		}
	}

	if c.ID == "" {
		c.ID = newULID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO comments (id, issue_id, author_id, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.IssueID, c.AuthorID, c.Body, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	c, err := scanComment(s.db.QueryRowContext(ctx,
		"SELECT "+commentColumns+" FROM comments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListComments(ctx context.Context, issueID string, limit, offset int) ([]*models.Comment, error) {
	query := "SELECT " + commentColumns + " FROM comments WHERE issue_id = ? ORDER BY created_at"
	args := []any{issueID}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var comments []*models.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// commentWithParent reads a comment and its parent issue inside tx.
func commentWithParent(ctx context.Context, tx *sql.Tx, id string) (*models.Comment, *models.Issue, error) {
	c, err := scanComment(tx.QueryRowContext(ctx,
		"SELECT "+commentColumns+" FROM comments WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("comment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get comment: %w", err)
	}

	parent, err := scanIssue(tx.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE id = ?", c.IssueID))
	if err != nil {
		return nil, nil, fmt.Errorf("get parent issue: %w", err)
	}
	return c, parent, nil
}

// MutateComment applies guard to the comment and its parent issue,
// then writes the (possibly modified) comment back, in one transaction.
func (s *SQLiteStore) MutateComment(ctx context.Context, id string, guard CommentGuard) (*models.Comment, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, parent, err := commentWithParent(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := guard(c, parent); err != nil {
		return nil, err
	}

	c.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		"UPDATE comments SET body=?, updated_at=? WHERE id=?",
		c.Body, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) DeleteComment(ctx context.Context, id string, guard CommentGuard) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, parent, err := commentWithParent(ctx, tx, id)
	if err != nil {
		return err
	}

	if guard != nil {
		if err := guard(c, parent); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM comments WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
