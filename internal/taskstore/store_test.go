package taskstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeIsAdditive(t *testing.T) {
	task := Empty()
	task.Merge(map[string]string{"specialty": "Cardiologist"})
	task.Merge(map[string]string{"location": "Pune"})
	assert.Equal(t, map[string]string{"specialty": "Cardiologist", "location": "Pune"}, task.TaskData)

	task.Reset()
	assert.True(t, task.IsEmpty())
}

func TestCloneIsDeep(t *testing.T) {
	task := Empty()
	task.Merge(map[string]string{"a": "1"})
	c := task.Clone()
	c.TaskData["a"] = "2"
	assert.Equal(t, "1", task.TaskData["a"])
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))

	task := Empty()
	task.ActiveTask = TaskBookingFlow
	task.Awaiting = AwaitYesNo
	task.PendingNavigation = "resource-finder"
	task.Merge(map[string]string{"specialty": "Cardiologist"})
	require.NoError(t, s.Save(ctx, "local", task))

	got, err := s.Load(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, TaskBookingFlow, got.ActiveTask)
	assert.Equal(t, AwaitYesNo, got.Awaiting)
	assert.Equal(t, "resource-finder", got.PendingNavigation)
	assert.Equal(t, "Cardiologist", got.TaskData["specialty"])
	assert.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, s.Clear(ctx, "local"))
	_, err = s.Load(ctx, "local")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInMemoryStore(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgresStore(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}
