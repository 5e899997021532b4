package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/trackflow/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes all DB access through Go's connection pool.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	return ulid.Make().String()
}

// touch returns the current time, never earlier than prev.
func touch(prev time.Time) time.Time {
	now := time.Now().UTC()
	if now.Before(prev) {
		return prev
	}
	return now
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

// --- Issues ---

const issueColumns = `id, title, description, status, priority, assignee, created_at, updated_at`

func scanIssue(row interface{ Scan(...any) error }) (*models.Issue, error) {
	issue := &models.Issue{}
	var status, priority string
	if err := row.Scan(&issue.ID, &issue.Title, &issue.Description, &status, &priority,
		&issue.Assignee, &issue.CreatedAt, &issue.UpdatedAt); err != nil {
		return nil, err
	}
	issue.Status = models.IssueStatus(status)
	issue.Priority = models.IssuePriority(priority)
	issue.LabelIDs = []int64{}
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+issueColumns+` FROM issues ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*models.Issue
	byID := make(map[string]*models.Issue)
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
		byID[issue.ID] = issue
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	_ = rows.Close()

	// Load all label references in one pass
	lrows, err := s.db.QueryContext(ctx, "SELECT issue_id, label_id FROM issue_labels ORDER BY issue_id, position")
	if err != nil {
		return nil, fmt.Errorf("list issue labels: %w", err)
	}
	defer func() { _ = lrows.Close() }()
	for lrows.Next() {
		var issueID string
		var labelID int64
		if err := lrows.Scan(&issueID, &labelID); err != nil {
			return nil, fmt.Errorf("scan issue label: %w", err)
		}
		if issue, ok := byID[issueID]; ok {
			issue.LabelIDs = append(issue.LabelIDs, labelID)
		}
	}
	return issues, lrows.Err()
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	return getIssue(ctx, s.db, id)
}

func getIssue(ctx context.Context, q querier, id string) (*models.Issue, error) {
	issue, err := scanIssue(q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "issue", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}

	labels, err := issueLabelIDs(ctx, q, id)
	if err != nil {
		return nil, err
	}
	issue.LabelIDs = labels
	return issue, nil
}

func issueLabelIDs(ctx context.Context, q querier, issueID string) ([]int64, error) {
	rows, err := q.QueryContext(ctx, "SELECT label_id FROM issue_labels WHERE issue_id = ? ORDER BY position", issueID)
	if err != nil {
		return nil, fmt.Errorf("get issue labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan issue label: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func setIssueLabels(ctx context.Context, q querier, issueID string, labelIDs []int64) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM issue_labels WHERE issue_id = ?", issueID); err != nil {
		return fmt.Errorf("clear issue labels: %w", err)
	}
	for pos, labelID := range labelIDs {
		if _, err := q.ExecContext(ctx,
			"INSERT OR IGNORE INTO issue_labels (issue_id, label_id, position) VALUES (?, ?, ?)",
			issueID, labelID, pos); err != nil {
			return fmt.Errorf("set issue label: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	created := issue.Clone()
	if err := prepareIssue(created); err != nil {
		return nil, err
	}
	if created.ID == "" {
		created.ID = newULID()
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Title, created.Description, string(created.Status), string(created.Priority),
		created.Assignee, created.CreatedAt, created.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	if err := setIssueLabels(ctx, tx, created.ID, created.LabelIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	issue, err := getIssue(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(issue)
	issue.UpdatedAt = touch(issue.UpdatedAt)

	_, err = tx.ExecContext(ctx,
		`UPDATE issues SET title=?, description=?, status=?, priority=?, assignee=?, updated_at=? WHERE id=?`,
		issue.Title, issue.Description, string(issue.Status), string(issue.Priority),
		issue.Assignee, issue.UpdatedAt, issue.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update issue: %w", err)
	}
	if patch.LabelIDs != nil {
		if err := setIssueLabels(ctx, tx, issue.ID, issue.LabelIDs); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &models.NotFoundError{Entity: "issue", ID: id}
	}
	return nil
}

// --- Users ---

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, email, avatar, role FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		u := &models.User{}
		var role string
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &role); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Role = models.UserRole(role)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	u := &models.User{}
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email, avatar, role FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Avatar, &role)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "user", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = models.UserRole(role)
	return u, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	created := *user
	if err := prepareUser(&created); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO users (name, email, avatar, role) VALUES (?, ?, ?, ?)",
		created.Name, created.Email, created.Avatar, string(created.Role),
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	created.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(u)

	_, err = s.db.ExecContext(ctx,
		"UPDATE users SET name=?, email=?, avatar=?, role=? WHERE id=?",
		u.Name, u.Email, u.Avatar, string(u.Role), u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &models.NotFoundError{Entity: "user", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}

// --- Labels ---

func (s *SQLiteStore) ListLabels(ctx context.Context) ([]*models.Label, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, color, description FROM labels ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []*models.Label
	for rows.Next() {
		l := &models.Label{}
		if err := rows.Scan(&l.ID, &l.Name, &l.Color, &l.Description); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

func (s *SQLiteStore) GetLabel(ctx context.Context, id int64) (*models.Label, error) {
	l := &models.Label{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, color, description FROM labels WHERE id = ?", id,
	).Scan(&l.ID, &l.Name, &l.Color, &l.Description)
	if err == sql.ErrNoRows {
		return nil, &models.NotFoundError{Entity: "label", ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return nil, fmt.Errorf("get label: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) CreateLabel(ctx context.Context, label *models.Label) (*models.Label, error) {
	created := *label
	if err := prepareLabel(&created); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT INTO labels (name, color, description) VALUES (?, ?, ?)",
		created.Name, created.Color, created.Description,
	)
	if err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	created.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create label: %w", err)
	}
	return &created, nil
}

func (s *SQLiteStore) UpdateLabel(ctx context.Context, id int64, patch models.LabelPatch) (*models.Label, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	l, err := s.GetLabel(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(l)

	_, err = s.db.ExecContext(ctx,
		"UPDATE labels SET name=?, color=?, description=? WHERE id=?",
		l.Name, l.Color, l.Description, l.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update label: %w", err)
	}
	return l, nil
}

func (s *SQLiteStore) DeleteLabel(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM labels WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete label: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return &models.NotFoundError{Entity: "label", ID: strconv.FormatInt(id, 10)}
	}
	return nil
}
