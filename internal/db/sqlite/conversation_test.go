package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thebtf/hearme/pkg/models"
)

// testStore opens a store in a temporary directory.
func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(StoreConfig{Path: filepath.Join(t.TempDir(), "nested", "conversations.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.db")

	first, err := NewStore(StoreConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewStore(StoreConfig{Path: path})
	require.NoError(t, err)
	defer second.Close()

	applied, err := NewMigrationManager(second.db).GetAppliedVersions()
	require.NoError(t, err)
	assert.Len(t, applied, len(Migrations))
}

func TestAppend_AndListByUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	entries := []*models.ConversationEntry{
		{UserID: "u1", Message: "أنا حزين", Prediction: models.LabelDepressed, Symptoms: map[string]int{"sadness": 1}, CreatedAt: base},
		{UserID: "u2", Message: "hello", Prediction: models.LabelNotDepressed, CreatedAt: base.Add(time.Minute)},
		{UserID: "u1", Message: "أنا بخير", Prediction: models.LabelNotDepressed, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		id, err := store.Append(ctx, e)
		require.NoError(t, err)
		assert.Equal(t, id, e.ID)
	}

	got, err := store.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "أنا بخير", got[0].Message)
	assert.Equal(t, "أنا حزين", got[1].Message)
	assert.Equal(t, map[string]int{"sadness": 1}, got[1].Symptoms)
	assert.True(t, base.Equal(got[1].CreatedAt))

	limited, err := store.ListByUser(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := store.ListByUser(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAppend_Defaults(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	entry := &models.ConversationEntry{Message: "hi", Prediction: models.LabelNotDepressed}
	_, err := store.Append(ctx, entry)
	require.NoError(t, err)

	assert.Equal(t, "anonymous", entry.UserID)
	assert.False(t, entry.CreatedAt.IsZero())

	got, err := store.ListByUser(ctx, "anonymous", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Symptoms)
}

func TestCountByPrediction(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, label := range []string{models.LabelDepressed, models.LabelNotDepressed, models.LabelDepressed} {
		_, err := store.Append(ctx, &models.ConversationEntry{UserID: "u", Message: "m", Prediction: label})
		require.NoError(t, err)
	}

	counts, err := store.CountByPrediction(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.LabelDepressed: 2, models.LabelNotDepressed: 1}, counts)
}

func TestPing(t *testing.T) {
	store := testStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestPruneBefore(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := range 3 {
		_, err := store.Append(ctx, &models.ConversationEntry{
			UserID:     "u1",
			Message:    "msg",
			Prediction: models.LabelNotDepressed,
			CreatedAt:  base.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}

	removed, err := store.PruneBefore(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, err := store.ListByUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, base.AddDate(0, 0, 2).Equal(left[0].CreatedAt))

	require.NoError(t, store.Optimize(ctx))
}
