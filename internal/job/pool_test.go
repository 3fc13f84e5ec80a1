package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger(t *testing.T) *zap.SugaredLogger {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	return log.Sugar()
}

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	return NewPool(context.Background(), testLogger(t))
}

func waitForStatus(t *testing.T, p *Pool, id uint64, want func(Status) bool, timeout time.Duration) Status {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var last Status
	for time.Now().Before(deadline) {
		st, ok := p.Status(id)
		require.True(t, ok)
		last = st
		if want(st) {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status, last seen: %+v", last)
	return last
}

func TestSubmitEchoCompletesWithOutput(t *testing.T) {
	p := newTestPool(t)
	id := p.Submit("echo", []string{"hello"})

	st := waitForStatus(t, p, id, Status.IsTerminal, time.Second)
	code, isCompleted := st.ExitCode()
	require.True(t, isCompleted)
	assert.EqualValues(t, 0, code)

	out, ok := p.Output(id)
	require.True(t, ok)
	assert.Equal(t, "hello\n", out.Stdout())
	assert.Empty(t, out.StderrLines)
}

func TestStatusOnUnknownCommandIsError(t *testing.T) {
	p := newTestPool(t)
	id := p.Submit("definitely-not-a-real-binary", nil)

	st, ok := p.Status(id)
	require.True(t, ok)
	_, isErr := st.Err()
	assert.True(t, isErr)
}

func TestDeleteRunningJobTerminatesIt(t *testing.T) {
	p := newTestPool(t)
	id := p.Submit("sleep", []string{"5"})

	st, ok := p.Status(id)
	require.True(t, ok)
	assert.True(t, st.IsRunning())

	errMsg, ok := p.Delete(id)
	require.True(t, ok)
	assert.Empty(t, errMsg)

	_, ok = p.Status(id)
	assert.False(t, ok, "a deleted job is no longer addressable")
}

func TestOutputAccumulatesAcrossRepeatedReads(t *testing.T) {
	p := newTestPool(t)
	id := p.Submit("sh", []string{"-c", "echo one; sleep 0.05; echo two"})

	waitForStatus(t, p, id, Status.IsTerminal, time.Second)

	out, ok := p.Output(id)
	require.True(t, ok)
	assert.Equal(t, []string{"one\n", "two\n"}, out.StdoutLines)
}

func TestListReportsEverySubmittedJob(t *testing.T) {
	p := newTestPool(t)
	first := p.Submit("echo", []string{"a"})
	second := p.Submit("echo", []string{"b"})

	jobs := p.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, []string{"a"}, jobs[first].Arguments)
	assert.Equal(t, []string{"b"}, jobs[second].Arguments)
}

func TestDeleteUnknownJobNotFound(t *testing.T) {
	p := newTestPool(t)
	_, ok := p.Delete(999)
	assert.False(t, ok)
}

func TestStatusUnknownJobNotFound(t *testing.T) {
	p := newTestPool(t)
	_, ok := p.Status(999)
	assert.False(t, ok)
}
