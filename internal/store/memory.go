package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/joescharf/trackflow/internal/models"
)

// MemoryStore is an in-process Store. Every value handed out is a copy, so
// callers can never mutate stored records behind the store's back.
type MemoryStore struct {
	mu         sync.RWMutex
	issues     map[string]*models.Issue
	users      map[int64]*models.User
	labels     map[int64]*models.Label
	nextUser   int64
	nextLabel  int64
	issueOrder []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		issues: make(map[string]*models.Issue),
		users:  make(map[int64]*models.User),
		labels: make(map[int64]*models.Label),
	}
}

func (m *MemoryStore) Close() error { return nil }

// --- Issues ---

func (m *MemoryStore) ListIssues(ctx context.Context) ([]*models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	issues := make([]*models.Issue, 0, len(m.issueOrder))
	for _, id := range m.issueOrder {
		issues = append(issues, m.issues[id].Clone())
	}
	return issues, nil
}

func (m *MemoryStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	issue, ok := m.issues[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "issue", ID: id}
	}
	return issue.Clone(), nil
}

func (m *MemoryStore) CreateIssue(ctx context.Context, issue *models.Issue) (*models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := issue.Clone()
	if err := prepareIssue(created); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if created.ID == "" {
		created.ID = newULID()
	}
	if _, exists := m.issues[created.ID]; exists {
		return nil, &models.FieldError{Field: "id", Msg: "issue already exists: " + created.ID}
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	m.issues[created.ID] = created
	m.issueOrder = append(m.issueOrder, created.ID)
	return created.Clone(), nil
}

func (m *MemoryStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) (*models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	issue, ok := m.issues[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "issue", ID: id}
	}
	patch.Apply(issue)
	issue.UpdatedAt = touch(issue.UpdatedAt)
	return issue.Clone(), nil
}

func (m *MemoryStore) DeleteIssue(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.issues[id]; !ok {
		return &models.NotFoundError{Entity: "issue", ID: id}
	}
	delete(m.issues, id)
	for i, oid := range m.issueOrder {
		if oid == id {
			m.issueOrder = append(m.issueOrder[:i], m.issueOrder[i+1:]...)
			break
		}
	}
	return nil
}

// --- Users ---

func (m *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for _, u := range m.users {
		c := *u
		users = append(users, &c)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "user", ID: strconv.FormatInt(id, 10)}
	}
	c := *u
	return &c, nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := *user
	if err := prepareUser(&created); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUser++
	created.ID = m.nextUser
	stored := created
	m.users[created.ID] = &stored
	return &created, nil
}

func (m *MemoryStore) UpdateUser(ctx context.Context, id int64, patch models.UserPatch) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "user", ID: strconv.FormatInt(id, 10)}
	}
	patch.Apply(u)
	c := *u
	return &c, nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return &models.NotFoundError{Entity: "user", ID: strconv.FormatInt(id, 10)}
	}
	delete(m.users, id)
	return nil
}

// --- Labels ---

func (m *MemoryStore) ListLabels(ctx context.Context) ([]*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	labels := make([]*models.Label, 0, len(m.labels))
	for _, l := range m.labels {
		c := *l
		labels = append(labels, &c)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].ID < labels[j].ID })
	return labels, nil
}

func (m *MemoryStore) GetLabel(ctx context.Context, id int64) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	l, ok := m.labels[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "label", ID: strconv.FormatInt(id, 10)}
	}
	c := *l
	return &c, nil
}

func (m *MemoryStore) CreateLabel(ctx context.Context, label *models.Label) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := *label
	if err := prepareLabel(&created); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLabel++
	created.ID = m.nextLabel
	stored := created
	m.labels[created.ID] = &stored
	return &created, nil
}

func (m *MemoryStore) UpdateLabel(ctx context.Context, id int64, patch models.LabelPatch) (*models.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.labels[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "label", ID: strconv.FormatInt(id, 10)}
	}
	patch.Apply(l)
	c := *l
	return &c, nil
}

func (m *MemoryStore) DeleteLabel(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.labels[id]; !ok {
		return &models.NotFoundError{Entity: "label", ID: strconv.FormatInt(id, 10)}
	}
	delete(m.labels, id)
	return nil
}
