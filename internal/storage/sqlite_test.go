package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "executions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, lang := range []string{"python", "ruby", "python"} {
		id, err := s.RecordExecution(ctx, &Execution{
			SessionID: "s1",
			Language:  lang,
			Code:      "print(1)",
			ExitCode:  i,
			Stdout:    "1",
			Duration:  int64(10 * i),
			StartedAt: started.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), id)
	}
	_, err := s.RecordExecution(ctx, &Execution{SessionID: "s2", Language: "bash", Code: "sleep 9", ExitCode: -1, TimedOut: true, StartedAt: started})
	require.NoError(t, err)

	list, err := s.ListExecutions(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, int64(3), list[0].ID, "newest first")
	assert.Equal(t, "python", list[0].Language)
	assert.Equal(t, 2, list[0].ExitCode)
	assert.WithinDuration(t, started.Add(2*time.Second), list[0].StartedAt, time.Second)

	limited, err := s.ListExecutions(ctx, "s1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	all, err := s.ListExecutions(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.True(t, all[0].TimedOut)
}

func TestLanguageStats(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	records := []Execution{
		{Language: "python", ExitCode: 0},
		{Language: "python", ExitCode: 1},
		{Language: "bash", ExitCode: -1, TimedOut: true},
	}
	for i := range records {
		records[i].StartedAt = now
		_, err := s.RecordExecution(ctx, &records[i])
		require.NoError(t, err)
	}

	stats, err := s.LanguageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Stats{
		{Language: "bash", Executions: 1, Failures: 1, Timeouts: 1},
		{Language: "python", Executions: 2, Failures: 1, Timeouts: 0},
	}, stats)
}

func TestDeleteSession(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "a", "b"} {
		_, err := s.RecordExecution(ctx, &Execution{SessionID: id, Language: "ruby", StartedAt: time.Now()})
		require.NoError(t, err)
	}

	n, err := s.DeleteSession(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	rest, err := s.ListExecutions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "b", rest[0].SessionID)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executions.db")
	s, err := New(path)
	require.NoError(t, err)
	_, err = s.RecordExecution(context.Background(), &Execution{Language: "lua", StartedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()
	list, err := s.ListExecutions(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
