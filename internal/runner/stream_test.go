package runner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	events []Event
}

func (l *eventLog) emit(e Event) {
	l.events = append(l.events, e)
}

func (l *eventLog) outputs(role Role) []string {
	var out []string
	for _, e := range l.events {
		if e.Kind == KindContent && e.Content.Role == role && e.Content.Streamed {
			out = append(out, e.Content.Text)
		}
	}
	return out
}

func (l *eventLog) summary(t *testing.T) Summary {
	t.Helper()
	for _, e := range l.events {
		if e.IsFinal() {
			var s Summary
			require.NoError(t, json.Unmarshal([]byte(e.Content.Text), &s))
			return s
		}
	}
	t.Fatal("no final result event")
	return Summary{}
}

func TestExecuteStreaming_EventOrder(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog
	code := "echo one\necho err1 >&2\necho two\necho err2 >&2\nexit 2\n"

	res, err := r.ExecuteStreaming(context.Background(), Request{Language: "sh", Code: code}, log.emit)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(log.events), 4)

	first := log.events[0]
	assert.Equal(t, KindContent, first.Kind)
	assert.Equal(t, RoleCode, first.Content.Role)
	assert.Equal(t, code, first.Content.Text)
	assert.Equal(t, "application/x-sh", first.Content.MimeType)

	assert.Equal(t, KindProgress, log.events[1].Kind)
	assert.Equal(t, "executing", log.events[1].Progress.Operation)
	assert.Equal(t, "sh", log.events[1].Progress.Language)

	n := len(log.events)
	assert.True(t, log.events[n-2].IsFinal())
	assert.Equal(t, "application/json", log.events[n-2].Content.MimeType)
	last := log.events[n-1]
	assert.Equal(t, KindComplete, last.Kind)
	assert.Equal(t, 2, last.Complete.ExitCode)

	assert.Equal(t, []string{"one", "two"}, log.outputs(RoleStdout))
	assert.Equal(t, []string{"err1", "err2"}, log.outputs(RoleStderr))

	s := log.summary(t)
	assert.Equal(t, 2, s.ExitCode)
	assert.Equal(t, 2, s.OutputLineCount)
	assert.Equal(t, 2, s.ErrorLineCount)
	_, err = time.Parse(time.RFC3339, s.Timestamp)
	assert.NoError(t, err)

	assert.Equal(t, "one\ntwo", res.Stdout)
	assert.Equal(t, "err1\nerr2", res.Stderr)
	assert.Equal(t, 2, res.ExitCode)
}

func TestExecuteStreaming_Timeout(t *testing.T) {
	r := newTestRunner(t, WithTimeout(300*time.Millisecond))
	var log eventLog

	start := time.Now()
	res, err := r.ExecuteStreaming(context.Background(), Request{Language: "sh", Code: "echo started\nsleep 5\n"}, log.emit)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, res.TimedOut())
	assert.Contains(t, log.outputs(RoleStdout), "started")

	var sawTimeout bool
	for _, e := range log.events {
		if e.Kind == KindContent && e.Content.Timeout {
			sawTimeout = true
			assert.Equal(t, RoleStderr, e.Content.Role)
			assert.Equal(t, "Execution timeout exceeded", e.Content.Text)
		}
	}
	assert.True(t, sawTimeout)
	assert.Equal(t, -1, log.summary(t).ExitCode)
	assert.Equal(t, KindComplete, log.events[len(log.events)-1].Kind)
}

func TestExecuteStreaming_SpawnFailure(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog

	res, err := r.ExecuteStreaming(context.Background(), Request{Language: "ghost", Code: "x"}, log.emit)
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.True(t, errors.Is(res.Failure, ErrSpawn))

	var sawError bool
	for _, e := range log.events {
		if e.Kind == KindContent && e.Content.Role == RoleError {
			sawError = true
			assert.Contains(t, e.Content.Text, "Execution error: ")
		}
	}
	assert.True(t, sawError)
	last := log.events[len(log.events)-1]
	assert.Equal(t, KindComplete, last.Kind)
	assert.Equal(t, -1, last.Complete.ExitCode)
}

func TestExecuteStreaming_UnsupportedLanguageEmitsNothing(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog

	_, err := r.ExecuteStreaming(context.Background(), Request{Language: "cobol", Code: "x"}, log.emit)
	assert.True(t, errors.Is(err, ErrUnsupportedLanguage))
	assert.Empty(t, log.events)
}

func TestExecuteStreaming_NoOutput(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog

	res, err := r.ExecuteStreaming(context.Background(), Request{Language: "sh", Code: "true\n"}, log.emit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Len(t, log.events, 4)
	s := log.summary(t)
	assert.Zero(t, s.OutputLineCount)
	assert.Zero(t, s.ErrorLineCount)
}

func TestExecuteStreaming_LongLineThenMore(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog
	code := "head -c 2097152 /dev/zero | tr '\\0' x\necho\necho after\n"

	res, err := r.ExecuteStreaming(context.Background(), Request{Language: "sh", Code: code}, log.emit)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	out := log.outputs(RoleStdout)
	require.Len(t, out, 2)
	assert.Equal(t, strings.Repeat("x", 2*1024*1024), out[0])
	assert.Equal(t, "after", out[1])
	assert.Equal(t, 2, log.summary(t).OutputLineCount)
}

func TestExecuteStreaming_FinalLineWithoutNewline(t *testing.T) {
	r := newTestRunner(t)
	var log eventLog

	_, err := r.ExecuteStreaming(context.Background(), Request{Language: "sh", Code: "echo first\nprintf last\n"}, log.emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "last"}, log.outputs(RoleStdout))
}
