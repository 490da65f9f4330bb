package sensor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-sensornode/migrations"
)

func newTestOutbox(t *testing.T) *SQLiteOutbox {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "outbox.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS, migrations.Dir))
	return NewSQLiteOutbox(db.DB)
}

func TestOutboxOrdering(t *testing.T) {
	ctx := context.Background()
	o := newTestOutbox(t)
	base := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, o.Enqueue(ctx, Entry{
			ID:        id,
			Topic:     "t",
			Payload:   []byte(id),
			QoS:       1,
			Boundary:  base.Add(time.Duration(i) * 5 * time.Minute),
			CreatedAt: base.Add(time.Duration(i) * 5 * time.Minute),
		}))
	}

	n, err := o.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := o.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, []byte("c"), got[0].Payload)
	assert.Equal(t, byte(1), got[0].QoS)
	assert.True(t, got[0].Boundary.Equal(base))
	assert.True(t, got[1].CreatedAt.Equal(base.Add(5*time.Minute)))
}

func TestOutboxDeleteAndMarkFailed(t *testing.T) {
	ctx := context.Background()
	o := newTestOutbox(t)

	require.NoError(t, o.Enqueue(ctx, Entry{ID: "x", Topic: "t", Payload: []byte("1")}))
	require.NoError(t, o.MarkFailed(ctx, "x", errors.New("broker gone")))
	require.NoError(t, o.MarkFailed(ctx, "x", errors.New("still gone")))

	got, err := o.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Attempts)
	assert.Equal(t, "still gone", got[0].LastError)
	assert.False(t, got[0].CreatedAt.IsZero())
	assert.True(t, got[0].Boundary.IsZero())

	require.NoError(t, o.Delete(ctx, "x"))
	n, err := o.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxDuplicateID(t *testing.T) {
	ctx := context.Background()
	o := newTestOutbox(t)

	require.NoError(t, o.Enqueue(ctx, Entry{ID: "dup", Topic: "t", Payload: []byte("1")}))
	assert.Error(t, o.Enqueue(ctx, Entry{ID: "dup", Topic: "t", Payload: []byte("2")}))
}
