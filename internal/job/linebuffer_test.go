package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainUntilStopsAfterOneLinePastCutoff(t *testing.T) {
	in, out := newLineChannel()

	t0 := time.Now()
	in <- line{text: "a\n", at: t0}
	in <- line{text: "b\n", at: t0.Add(time.Millisecond)}
	in <- line{text: "c\n", at: t0.Add(2 * time.Millisecond)}
	time.Sleep(5 * time.Millisecond) // let the relay goroutine catch up

	got := drainUntil(out, t0)
	require.Equal(t, []string{"a\n", "b\n"}, got,
		"drain-until includes exactly one line past the cutoff")

	close(in)
	rest := drainAll(out)
	assert.Equal(t, []string{"c\n"}, rest)
}

func TestDrainUntilOnEmptyChannelReturnsNothing(t *testing.T) {
	_, out := newLineChannel()
	got := drainUntil(out, time.Now())
	assert.Empty(t, got)
}

func TestDrainAllBlocksUntilClosed(t *testing.T) {
	in, out := newLineChannel()
	in <- line{text: "x\n", at: time.Now()}
	close(in)

	got := drainAll(out)
	assert.Equal(t, []string{"x\n"}, got)
}

func TestNewLineChannelNeverBlocksProducer(t *testing.T) {
	in, out := newLineChannel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			in <- line{text: "l\n", at: time.Now()}
		}
		close(in)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked writing to an unbounded line channel")
	}

	got := drainAll(out)
	assert.Len(t, got, 1000)
}
