package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/trackflow/internal/models"
)

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateIssue(ctx, &models.Issue{Title: "x"})
	require.NoError(t, err)

	got, err := s.GetIssue(ctx, created.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.GetIssue(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Title)
}

func TestMemoryStore_ListKeepsInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"a", "b", "c", "d"} {
		i, err := s.CreateIssue(ctx, &models.Issue{Title: title})
		require.NoError(t, err)
		ids = append(ids, i.ID)
	}
	require.NoError(t, s.DeleteIssue(ctx, ids[1]))

	list, err := s.ListIssues(ctx)
	require.NoError(t, err)
	var got []string
	for _, i := range list {
		got = append(got, i.Title)
	}
	assert.Equal(t, []string{"a", "c", "d"}, got)
}

func TestMemoryStore_DuplicateID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.CreateIssue(ctx, &models.Issue{ID: "fixed", Title: "one"})
	require.NoError(t, err)
	_, err = s.CreateIssue(ctx, &models.Issue{ID: "fixed", Title: "two"})
	assert.True(t, models.IsValidation(err))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ListIssues(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_ConcurrentUpdates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.CreateIssue(ctx, &models.Issue{Title: "x"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, st := range models.Statuses() {
		wg.Add(1)
		go func(st models.IssueStatus) {
			defer wg.Done()
			_, err := s.UpdateIssue(ctx, created.ID, models.IssuePatch{Status: &st})
			assert.NoError(t, err)
		}(st)
	}
	wg.Wait()

	got, err := s.GetIssue(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Valid())
}
