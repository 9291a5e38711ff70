package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smoothbdr/internal/logs"
	"smoothbdr/internal/testsupport"
)

func TestPathAcceptsSupervisorAndStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	path, err := logs.Path(cfg, "research")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Paths.LogDir, "research.log"), path)

	_, err = logs.Path(cfg, logs.SupervisorLog)
	require.NoError(t, err)

	_, err = logs.Path(cfg, "../etc/passwd")
	assert.Error(t, err)
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "draft.log")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\npartial"), 0o644))

	lines, offset, err := logs.Last(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, lines)
	assert.Equal(t, int64(len("a\nb\nc\n")), offset, "a partial line is not consumed")

	lines, _, err = logs.Last(path, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, lines)
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "none.log"), 5)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Zero(t, offset)
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reply.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))
	_, offset, err := logs.Last(path, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	got := make(chan string, 8)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, func(line string) error {
			got <- line
			return nil
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("first\nsecond\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Equal(t, "first", receive(t, got))
	assert.Equal(t, "second", receive(t, got))

	require.NoError(t, os.WriteFile(path, []byte("fresh\n"), 0o644))
	assert.Equal(t, "fresh", receive(t, got), "truncation restarts from the beginning")

	cancel()
	require.NoError(t, <-done)
}

func TestFollowStopsWhenEmitFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delivery.log")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\n"), 0o644))

	stop := errors.New("stop")
	err := logs.Follow(context.Background(), path, 0, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func receive(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a followed line")
		return ""
	}
}
