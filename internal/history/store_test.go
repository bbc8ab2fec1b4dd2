package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DataDir: t.TempDir(), RetentionDays: -1})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(ctx, Entry{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			RequestID: "req-" + string(rune('a'+i)),
			Email:     "a@x.com",
			Trigger:   "verify",
			Outcome:   "applied",
			Roles:     "Bot Suite,Member",
		}))
	}
	require.NoError(t, s.Append(ctx, Entry{
		Timestamp: base.Add(10 * time.Minute),
		RequestID: "req-other",
		Email:     "b@x.com",
		Trigger:   "grant",
		Outcome:   "failed",
		Detail:    "find_rows failed",
	}))

	all, err := s.Recent(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "req-other", all[0].RequestID, "newest first")
	assert.NotEmpty(t, all[0].ID)

	filtered, err := s.Recent(ctx, "a@x.com", 0)
	require.NoError(t, err)
	require.Len(t, filtered, 3)
	for _, entry := range filtered {
		assert.Equal(t, "a@x.com", entry.Email)
	}
	assert.Equal(t, "req-c", filtered[0].RequestID)
	assert.Equal(t, "Bot Suite,Member", filtered[0].Roles)
}

func TestRecentLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(ctx, Entry{
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
			RequestID: "req",
			Email:     "a@x.com",
			Trigger:   "verify",
			Outcome:   "applied",
		}))
	}

	entries, err := s.Recent(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNewStoreRequiresDataDir(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	assert.Error(t, err)
}
